package router

import (
	"bufio"
	"context"
	"errors"
	"math"
	"net"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/probectl/internal/auth"
	"github.com/danmuck/probectl/internal/control"
	"github.com/danmuck/probectl/internal/device"
	"github.com/danmuck/probectl/internal/protocol/frame"
	"github.com/danmuck/probectl/internal/protocol/schema"
	"github.com/danmuck/probectl/internal/protocol/session"
	logs "github.com/danmuck/smplog"
	"golang.org/x/sync/errgroup"
)

// Router endpoint configuration.
type ServiceConfig struct {
	ListenAddr        string
	DeviceAddr        string
	GatewayTimeout    time.Duration
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	HistoryLimit      int
	// HeartbeatTail is how many recent decisions each heartbeat logs.
	HeartbeatTail int
	// AuthToken, when set, must arrive in the auth block of every client frame.
	AuthToken string
	Session   session.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:        ":9100",
		DeviceAddr:        "127.0.0.1:9200",
		GatewayTimeout:    control.DefaultGatewayTimeout,
		HeartbeatInterval: 10 * time.Second,
		PollInterval:      250 * time.Millisecond,
		HistoryLimit:      control.DefaultHistoryLimit,
		HeartbeatTail:     4,
		Session:           session.DefaultConfig(),
	}
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	def := DefaultServiceConfig()
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = def.ListenAddr
	}
	if strings.TrimSpace(c.DeviceAddr) == "" {
		c.DeviceAddr = def.DeviceAddr
	}
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = def.GatewayTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	c.Session = c.Session.WithDefaults()
	return c
}

// Service exposes one control.Router to clients over TCP.
type Service struct {
	cfg    ServiceConfig
	router *control.Router
	device control.Device
	auth   auth.Validator

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	clientCount atomic.Int64
}

// NewService builds a service with default configuration.
func NewService() (*Service, error) {
	return NewServiceWithConfig(DefaultServiceConfig())
}

// NewServiceWithConfig builds a service that reaches the device over TCP.
func NewServiceWithConfig(cfg ServiceConfig) (*Service, error) {
	cfg = cfg.withDefaults()
	link, err := device.NewLink(device.LinkConfig{Address: cfg.DeviceAddr, Session: cfg.Session})
	if err != nil {
		return nil, err
	}
	return NewServiceWithDevice(cfg, link), nil
}

// NewServiceWithDevice builds a service over an existing device boundary.
func NewServiceWithDevice(cfg ServiceConfig, dev control.Device) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:    cfg,
		device: dev,
		auth:   auth.ForToken(cfg.AuthToken),
		router: control.NewRouterWithConfig(control.RouterConfig{
			Gateway:      control.NewGateway(dev, cfg.GatewayTimeout),
			HistoryLimit: cfg.HistoryLimit,
		}),
		conns: make(map[net.Conn]struct{}),
	}
}

// Router returns the arbitration core.
func (s *Service) Router() *control.Router {
	return s.router
}

// Run listens on the configured address and blocks until signal shutdown.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	logs.Warnf(
		"router.Service.Run listening addr=%q device=%q gateway_timeout=%s",
		ln.Addr().String(), s.cfg.DeviceAddr, s.cfg.GatewayTimeout,
	)
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop, heartbeat and device poller until ctx ends
// or the listener fails.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeDevice()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return s.acceptLoop(gctx, ln)
	})
	g.Go(func() error {
		s.heartbeatLoop(gctx)
		return nil
	})
	g.Go(func() error {
		s.pollLoop(gctx)
		return nil
	})
	err := g.Wait()
	s.router.LogSnapshot(logs.WarnLevel, "router.Service stopped", s.cfg.HeartbeatTail)
	return err
}

func (s *Service) acceptLoop(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeAllConns()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.trackConn(conn)
		go s.handleConn(ctx, conn)
	}
}

// handleConn answers each request frame with exactly one reply frame.
func (s *Service) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer s.untrackConn(conn)
	remote := conn.RemoteAddr().String()
	active := s.clientCount.Add(1)
	logs.Infof("router.Service client connected remote=%q active_clients=%d", remote, active)
	defer func() {
		remaining := s.clientCount.Add(-1)
		logs.Infof("router.Service client disconnected remote=%q active_clients=%d", remote, remaining)
	}()

	reader := bufio.NewReader(conn)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.Session.ReadTimeout))
		fr, err := session.ReadFrame(reader, frame.DefaultLimits())
		if err != nil {
			return
		}
		reply, err := s.reply(ctx, fr)
		if err != nil {
			logs.Warnf(
				"router.Service.handleConn rejected frame remote=%q message_type=%d err=%v",
				remote, fr.Header.MessageType, err,
			)
			reply, err = session.EncodeErrorFrame(fr.Header.MessageID, err.Error())
			if err != nil {
				return
			}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.Session.WriteTimeout))
		if err := session.WriteFrame(conn, reply); err != nil {
			logs.Warnf("router.Service.handleConn write failed remote=%q err=%v", remote, err)
			return
		}
	}
}

func (s *Service) reply(ctx context.Context, fr frame.Frame) ([]byte, error) {
	if err := s.auth.Validate(fr.Auth); err != nil {
		return nil, err
	}
	switch fr.Header.MessageType {
	case schema.MsgControlRequest:
		req, err := session.DecodeControlRequestFrame(fr)
		if err != nil {
			return nil, err
		}
		resp := s.router.Handle(ctx, req)
		return session.EncodeControlResponseFrame(fr.Header.MessageID, session.ControlReply{Kind: req.Kind, Response: resp})
	case schema.MsgStateQuery:
		if _, err := session.DecodeStateQueryFrame(fr); err != nil {
			return nil, err
		}
		return session.EncodeStateReplyFrame(fr.Header.MessageID, s.router.Snapshot())
	case schema.MsgHistoryQuery:
		q, err := session.DecodeHistoryQueryFrame(fr)
		if err != nil {
			return nil, err
		}
		return session.EncodeHistoryReplyFrame(fr.Header.MessageID, s.router.Recent(historyLimit(q.Limit)))
	default:
		return nil, session.ErrUnexpectedMessage
	}
}

// historyLimit clamps a wire limit; 0 asks for the whole window.
func historyLimit(limit uint64) int {
	if limit > math.MaxInt32 {
		return 0
	}
	return int(limit)
}

func (s *Service) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.router.LogSnapshot(logs.InfoLevel, "router.Service heartbeat", s.cfg.HeartbeatTail)
		}
	}
}

// pollLoop asks the device for its scan state while a scan is marked in
// flight and clears the marker once the device is idle.
func (s *Service) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Service) pollOnce(ctx context.Context) {
	snap := s.router.Snapshot()
	if !snap.Scanning || snap.Forwarding {
		return
	}
	status, err := s.router.Gateway().Status(ctx)
	if err != nil {
		logs.Debugf("router.Service device poll failed err=%v", err)
		return
	}
	if !status.Scanning {
		s.router.MarkScanFinished(snap.ScanSeq)
	}
}

func (s *Service) closeDevice() {
	if closer, ok := s.device.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func (s *Service) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
