package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/probectl/internal/control"
	"github.com/danmuck/probectl/internal/protocol/frame"
	"github.com/danmuck/probectl/internal/protocol/schema"
	"github.com/danmuck/probectl/internal/protocol/session"
	logs "github.com/danmuck/smplog"
)

var (
	ErrDeviceAddressRequired = errors.New("device: address required")
	ErrReplyMismatch         = errors.New("device: reply does not match request")
	ErrLinkClosed            = errors.New("device: link closed")
)

type LinkConfig struct {
	Address string
	Session session.Config
}

func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		Address: "127.0.0.1:9200",
		Session: session.DefaultConfig(),
	}
}

// Link is a single-connection client to the device server. Calls are
// serialized; a failed exchange drops the connection and the next call
// redials.
type Link struct {
	cfg LinkConfig

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID uint64
	closed bool
}

func NewLink(cfg LinkConfig) (*Link, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, ErrDeviceAddressRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	return &Link{cfg: cfg}, nil
}

func (l *Link) Address() string {
	return l.cfg.Address
}

// Send forwards one command and reports whether the device accepted it.
func (l *Link) Send(ctx context.Context, cmd control.DeviceCommand) (bool, error) {
	fr, err := l.roundTrip(ctx, schema.MsgDeviceResult, func(id uint64) ([]byte, error) {
		return session.EncodeDeviceCommandFrame(id, cmd)
	})
	if err != nil {
		return false, err
	}
	reply, err := session.DecodeDeviceResultFrame(fr)
	if err != nil {
		return false, err
	}
	if reply.Kind != cmd.Kind {
		return false, fmt.Errorf("%w: kind %s want %s", ErrReplyMismatch, reply.Kind, cmd.Kind)
	}
	if !reply.OK() {
		logs.Debugf("device.Link.Send rejected request=%s status=%q", cmd.Kind, reply.Status)
	}
	return reply.OK(), nil
}

// Status polls the device scan state.
func (l *Link) Status(ctx context.Context) (control.DeviceStatus, error) {
	fr, err := l.roundTrip(ctx, schema.MsgDeviceStatus, session.EncodeDeviceStatusQueryFrame)
	if err != nil {
		return control.DeviceStatus{}, err
	}
	return session.DecodeDeviceStatusFrame(fr)
}

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return l.dropLocked()
}

func (l *Link) roundTrip(ctx context.Context, want uint32, encode func(id uint64) ([]byte, error)) (frame.Frame, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return frame.Frame{}, ErrLinkClosed
	}
	if err := l.ensureConnLocked(ctx); err != nil {
		return frame.Frame{}, err
	}

	l.nextID++
	id := l.nextID
	payload, err := encode(id)
	if err != nil {
		return frame.Frame{}, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(l.cfg.Session.RequestTimeout)
	}
	conn := l.conn
	_ = conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := session.WriteFrame(conn, payload); err != nil {
		_ = l.dropLocked()
		return frame.Frame{}, err
	}
	fr, err := session.ReadFrame(l.reader, frame.DefaultLimits())
	if err != nil {
		_ = l.dropLocked()
		if ctx.Err() != nil {
			return frame.Frame{}, ctx.Err()
		}
		return frame.Frame{}, err
	}
	_ = conn.SetDeadline(time.Time{})

	if fr.Header.MessageID != id {
		_ = l.dropLocked()
		return frame.Frame{}, fmt.Errorf("%w: message_id %d want %d", ErrReplyMismatch, fr.Header.MessageID, id)
	}
	if !fr.Header.IsResponse() {
		_ = l.dropLocked()
		return frame.Frame{}, fmt.Errorf("%w: message_type %d is not a reply", ErrReplyMismatch, fr.Header.MessageType)
	}
	if fr.Header.MessageType == schema.MsgError {
		return frame.Frame{}, session.RemoteError(fr)
	}
	if fr.Header.MessageType != want {
		_ = l.dropLocked()
		return frame.Frame{}, fmt.Errorf("%w: message_type %d want %d", ErrReplyMismatch, fr.Header.MessageType, want)
	}
	return fr, nil
}

func (l *Link) ensureConnLocked(ctx context.Context) error {
	if l.conn != nil {
		return nil
	}
	dialer := net.Dialer{Timeout: l.cfg.Session.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", l.cfg.Address)
	if err != nil {
		logs.Warnf("device.Link dial failed addr=%q err=%v", l.cfg.Address, err)
		return err
	}
	logs.Debugf("device.Link connected addr=%q", l.cfg.Address)
	l.conn = conn
	l.reader = bufio.NewReader(conn)
	return nil
}

func (l *Link) dropLocked() error {
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	l.reader = nil
	return err
}
