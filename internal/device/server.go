package device

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/probectl/internal/protocol/frame"
	"github.com/danmuck/probectl/internal/protocol/schema"
	"github.com/danmuck/probectl/internal/protocol/session"
	logs "github.com/danmuck/smplog"
)

// Simulated device endpoint configuration.
type ServerConfig struct {
	ListenAddr   string
	ScanDuration time.Duration
	// ReplyDelay holds every reply back, to exercise router timeouts.
	ReplyDelay time.Duration
	Session    session.Config
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:   ":9200",
		ScanDuration: DefaultScanDuration,
		Session:      session.DefaultConfig(),
	}
}

// Server answers device frames from the router against one Scanner.
type Server struct {
	cfg     ServerConfig
	scanner *Scanner

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	clientCount atomic.Int64
	replyDelay  atomic.Int64
}

func NewServer() *Server {
	return NewServerWithConfig(DefaultServerConfig())
}

func NewServerWithConfig(cfg ServerConfig) *Server {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultServerConfig().ListenAddr
	}
	cfg.Session = cfg.Session.WithDefaults()
	s := &Server{
		cfg:     cfg,
		scanner: NewScanner(cfg.ScanDuration),
		conns:   make(map[net.Conn]struct{}),
	}
	s.replyDelay.Store(int64(cfg.ReplyDelay))
	return s
}

func (s *Server) Scanner() *Scanner {
	return s.scanner
}

// SetReplyDelay changes the reply delay for subsequent frames.
func (s *Server) SetReplyDelay(d time.Duration) {
	s.replyDelay.Store(int64(d))
}

// Run listens on the configured address and blocks until signal shutdown.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	logs.Warnf("device.Server.Run listening addr=%q scan_duration=%s", ln.Addr().String(), s.scanner.duration)
	return s.Serve(ctx, ln)
}

// Serve accepts router connections on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
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

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer s.untrackConn(conn)
	remote := conn.RemoteAddr().String()
	active := s.clientCount.Add(1)
	logs.Infof("device.Server client connected remote=%q active_clients=%d", remote, active)
	defer func() {
		remaining := s.clientCount.Add(-1)
		logs.Infof("device.Server client disconnected remote=%q active_clients=%d", remote, remaining)
	}()

	reader := bufio.NewReader(conn)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.Session.ReadTimeout))
		fr, err := session.ReadFrame(reader, frame.DefaultLimits())
		if err != nil {
			return
		}
		reply, err := s.reply(fr)
		if err != nil {
			logs.Warnf("device.Server.handleConn bad frame message_type=%d err=%v", fr.Header.MessageType, err)
			reply, err = session.EncodeErrorFrame(fr.Header.MessageID, err.Error())
			if err != nil {
				return
			}
		}
		if delay := time.Duration(s.replyDelay.Load()); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.Session.WriteTimeout))
		if err := session.WriteFrame(conn, reply); err != nil {
			logs.Warnf("device.Server.handleConn write failed err=%v", err)
			return
		}
	}
}

func (s *Server) reply(fr frame.Frame) ([]byte, error) {
	switch fr.Header.MessageType {
	case schema.MsgDeviceCommand:
		cmd, err := session.DecodeDeviceCommandFrame(fr)
		if err != nil {
			return nil, err
		}
		status := s.scanner.Apply(cmd)
		logs.Debugf("device.Server command request=%s status=%q", cmd.Kind, status)
		return session.EncodeDeviceResultFrame(fr.Header.MessageID, session.DeviceReply{Kind: cmd.Kind, Status: status})
	case schema.MsgDeviceStatusQuery:
		return session.EncodeDeviceStatusFrame(fr.Header.MessageID, s.scanner.Status())
	default:
		return nil, session.ErrUnexpectedMessage
	}
}

func (s *Server) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
