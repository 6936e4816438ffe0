// Package client talks to the control router. A request that gets no
// reply in time drops the connection, waits out a backoff and is resent
// on a fresh one; when retries run out the caller gets NO_RESPONSE.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/probectl/internal/control"
	"github.com/danmuck/probectl/internal/protocol/frame"
	"github.com/danmuck/probectl/internal/protocol/schema"
	"github.com/danmuck/probectl/internal/protocol/session"
	"github.com/danmuck/probectl/internal/scan"
	logs "github.com/danmuck/smplog"
	"github.com/google/uuid"
)

var (
	ErrRouterAddressRequired = errors.New("client: router address required")
	ErrNoResponse            = errors.New("client: no response from router")
	ErrClosed                = errors.New("client: closed")
)

type Config struct {
	Address  string
	Identity control.ClientID
	// AuthToken is sent in the auth block of every frame when set.
	AuthToken string
	Session   session.Config
}

func DefaultConfig() Config {
	return Config{
		Address: "127.0.0.1:9100",
		Session: session.DefaultConfig(),
	}
}

// Client issues control requests under one identity.
type Client struct {
	cfg Config
	rng *rand.Rand

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID uint64
	closed bool
}

// New builds a client. An empty identity is replaced by a random UUID.
func New(cfg Config) (*Client, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, ErrRouterAddressRequired
	}
	if strings.TrimSpace(string(cfg.Identity)) == "" {
		cfg.Identity = control.ClientID(uuid.NewString())
	}
	cfg.Session = cfg.Session.WithDefaults()
	return &Client{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (c *Client) ID() control.ClientID {
	return c.cfg.Identity
}

func (c *Client) StartScan(ctx context.Context) control.Response {
	return c.Request(ctx, control.Request{Kind: control.RequestStartScan})
}

func (c *Client) StopScan(ctx context.Context) control.Response {
	return c.Request(ctx, control.Request{Kind: control.RequestStopScan})
}

// SetScanParams encodes p and forwards it. Invalid parameters never
// leave the client.
func (c *Client) SetScanParams(ctx context.Context, p scan.Params2D) (control.Response, error) {
	data, err := scan.Encode(p)
	if err != nil {
		return control.ResponseUndefined, err
	}
	return c.Request(ctx, control.Request{Kind: control.RequestSetScanParams, Params: data}), nil
}

func (c *Client) RequestControl(ctx context.Context) control.Response {
	return c.Request(ctx, control.Request{Kind: control.RequestRequestCtrl})
}

func (c *Client) ReleaseControl(ctx context.Context) control.Response {
	return c.Request(ctx, control.Request{Kind: control.RequestReleaseCtrl})
}

func (c *Client) AddProblem(ctx context.Context, p control.Problem) control.Response {
	return c.Request(ctx, control.Request{Kind: control.RequestAddProblem, Problem: p})
}

func (c *Client) RemoveProblem(ctx context.Context, p control.Problem) control.Response {
	return c.Request(ctx, control.Request{Kind: control.RequestRemoveProblem, Problem: p})
}

// Request sends req under this client's identity. Transport failures
// after every retry come back as ResponseNoResponse; a router error frame
// comes back as ResponseFailure.
func (c *Client) Request(ctx context.Context, req control.Request) control.Response {
	req.Client = c.cfg.Identity
	fr, err := c.exchange(ctx, schema.MsgControlResponse, func(id uint64) ([]byte, error) {
		return session.EncodeControlRequestFrame(id, req)
	})
	if err != nil {
		if errors.Is(err, session.ErrRemote) {
			logs.Warnf("client.Request router error request=%s err=%v", req.Kind, err)
			return control.ResponseFailure
		}
		if !errors.Is(err, ErrNoResponse) {
			logs.Warnf("client.Request failed request=%s err=%v", req.Kind, err)
		}
		return control.ResponseNoResponse
	}
	reply, err := session.DecodeControlResponseFrame(fr)
	if err != nil {
		logs.Warnf("client.Request bad reply request=%s err=%v", req.Kind, err)
		return control.ResponseFailure
	}
	return reply.Response
}

// State fetches the router's current control state.
func (c *Client) State(ctx context.Context) (control.Snapshot, error) {
	fr, err := c.exchange(ctx, schema.MsgStateReply, func(id uint64) ([]byte, error) {
		return session.EncodeStateQueryFrame(id, c.cfg.Identity)
	})
	if err != nil {
		return control.Snapshot{}, err
	}
	return session.DecodeStateReplyFrame(fr)
}

// History fetches up to limit of the router's most recent decisions,
// oldest first. A zero limit returns every decision the router retains.
func (c *Client) History(ctx context.Context, limit int) ([]control.Decision, error) {
	q := session.HistoryQuery{Client: c.cfg.Identity}
	if limit > 0 {
		q.Limit = uint64(limit)
	}
	fr, err := c.exchange(ctx, schema.MsgHistoryReply, func(id uint64) ([]byte, error) {
		return session.EncodeHistoryQueryFrame(id, q)
	})
	if err != nil {
		return nil, err
	}
	return session.DecodeHistoryReplyFrame(fr)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.dropLocked()
}

// exchange performs one request/reply with lazy-pirate retries.
func (c *Client) exchange(ctx context.Context, want uint32, encode func(id uint64) ([]byte, error)) (frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return frame.Frame{}, ErrClosed
	}

	attempts := c.cfg.Session.Retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		fr, err := c.attemptLocked(ctx, want, encode)
		if err == nil {
			return fr, nil
		}
		if errors.Is(err, session.ErrRemote) || errors.Is(err, session.ErrMissingClientID) {
			return frame.Frame{}, err
		}
		_ = c.dropLocked()
		if ctx.Err() != nil {
			return frame.Frame{}, ctx.Err()
		}
		logs.Warnf(
			"client.exchange no reply addr=%q attempt=%d/%d err=%v",
			c.cfg.Address, attempt, attempts, err,
		)
		if attempt == attempts {
			break
		}
		if err := c.sleepBackoff(ctx, attempt); err != nil {
			return frame.Frame{}, err
		}
	}
	return frame.Frame{}, ErrNoResponse
}

func (c *Client) attemptLocked(ctx context.Context, want uint32, encode func(id uint64) ([]byte, error)) (frame.Frame, error) {
	if err := c.ensureConnLocked(ctx); err != nil {
		return frame.Frame{}, err
	}
	c.nextID++
	id := c.nextID
	payload, err := encode(id)
	if err != nil {
		return frame.Frame{}, err
	}
	if c.cfg.AuthToken != "" {
		if payload, err = session.AttachAuth(payload, []byte(c.cfg.AuthToken)); err != nil {
			return frame.Frame{}, err
		}
	}

	deadline := time.Now().Add(c.cfg.Session.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn := c.conn
	_ = conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := session.WriteFrame(conn, payload); err != nil {
		return frame.Frame{}, err
	}
	fr, err := session.ReadFrame(c.reader, frame.DefaultLimits())
	if err != nil {
		return frame.Frame{}, err
	}
	_ = conn.SetDeadline(time.Time{})
	if fr.Header.MessageID != id {
		return frame.Frame{}, fmt.Errorf("client: reply message_id %d want %d", fr.Header.MessageID, id)
	}
	if !fr.Header.IsResponse() {
		return frame.Frame{}, fmt.Errorf("%w: message_type %d is not a reply", session.ErrUnexpectedMessage, fr.Header.MessageType)
	}
	if fr.Header.MessageType == schema.MsgError {
		return frame.Frame{}, session.RemoteError(fr)
	}
	if fr.Header.MessageType != want {
		return frame.Frame{}, fmt.Errorf("%w: got %d want %d", session.ErrUnexpectedMessage, fr.Header.MessageType, want)
	}
	return fr, nil
}

func (c *Client) ensureConnLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	dialer := net.Dialer{Timeout: c.cfg.Session.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return err
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

func (c *Client) dropLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	delay := session.NextBackoffDelay(c.cfg.Session.Backoff, attempt, c.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
