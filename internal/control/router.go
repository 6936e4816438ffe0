package control

import (
	"context"
	"sync"
	"time"

	logs "github.com/danmuck/smplog"
)

// RouterConfig configures the arbitration core.
type RouterConfig struct {
	Gateway      *Gateway
	HistoryLimit int
}

// Router serializes every client request against one State. Checks and
// the resulting mutation happen under one lock; the lock is released
// while a device command is outstanding so problem reports still land.
type Router struct {
	mu      sync.Mutex
	state   *State
	gateway *Gateway
	history *History
}

func NewRouter(gateway *Gateway) *Router {
	return NewRouterWithConfig(RouterConfig{Gateway: gateway})
}

func NewRouterWithConfig(cfg RouterConfig) *Router {
	return &Router{
		state:   NewState(),
		gateway: cfg.Gateway,
		history: NewHistory(cfg.HistoryLimit),
	}
}

// Gateway returns the device gateway the router forwards through.
func (r *Router) Gateway() *Gateway {
	return r.gateway
}

// Snapshot returns a copy of the current control state.
func (r *Router) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Snapshot()
}

// Recent returns up to limit handled requests, oldest first.
func (r *Router) Recent(limit int) []Decision {
	return r.history.Recent(limit)
}

// Handle processes one request and returns its response.
func (r *Router) Handle(ctx context.Context, req Request) Response {
	start := time.Now()
	out := r.dispatch(ctx, req)

	logf := logs.Debugf
	switch out.resp {
	case ResponseCmdNotSupported, ResponseNoResponse:
		logf = logs.Warnf
	case ResponseSuccess:
		if !req.Kind.DeviceAffecting() {
			logf = logs.Infof
		}
	}
	logf(
		"control.Router.Handle client=%q request=%s response=%s mode=%s owner=%q elapsed=%s",
		req.Client, req.Kind, out.resp, out.mode, out.owner, time.Since(start),
	)
	return out.resp
}

// outcome is a response plus the state it left behind, read under the
// same lock that produced it.
type outcome struct {
	resp  Response
	mode  Mode
	owner ClientID
}

// settle records the decision for req and captures the resulting state.
// Caller holds r.mu, so history order is the order requests were decided.
func (r *Router) settle(req Request, resp Response) outcome {
	out := outcome{resp: resp, mode: r.state.Mode(), owner: r.state.owner}
	r.history.Record(Decision{
		Client:   req.Client,
		Kind:     req.Kind,
		Response: resp,
		Mode:     out.mode,
	})
	return out
}

func (r *Router) dispatch(ctx context.Context, req Request) outcome {
	switch req.Kind {
	case RequestRequestCtrl:
		return r.requestControl(req)
	case RequestReleaseCtrl:
		return r.releaseControl(req)
	case RequestAddProblem:
		return r.addProblem(req)
	case RequestRemoveProblem:
		return r.removeProblem(req)
	case RequestStartScan, RequestStopScan, RequestSetScanParams:
		return r.forward(ctx, req)
	default:
		// Admin kinds land here too: mode is only ever derived.
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.settle(req, ResponseCmdNotSupported)
	}
}

func (r *Router) requestControl(req Request) outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Mode() == ModeProblem {
		return r.settle(req, ResponseWrongControlMode)
	}
	if _, held := r.state.Owner(); held {
		return r.settle(req, ResponseAlreadyUnderControl)
	}
	r.state.setOwner(req.Client)
	return r.settle(req, ResponseSuccess)
}

func (r *Router) releaseControl(req Request) outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.isOwner(req.Client) {
		return r.settle(req, ResponseNotInControl)
	}
	r.state.clearOwner()
	return r.settle(req, ResponseSuccess)
}

func (r *Router) addProblem(req Request) outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := req.Problem
	if p == ProblemNone {
		logs.Warnf("control.Router.addProblem ignoring none sentinel client=%q", req.Client)
		return r.settle(req, ResponseSuccess)
	}
	if r.state.addProblem(p) {
		logs.Warnf(
			"control.Router problem raised problem=%s active=%d mode=%s",
			p, r.state.problems.Len(), r.state.Mode(),
		)
	}
	return r.settle(req, ResponseSuccess)
}

func (r *Router) removeProblem(req Request) outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := req.Problem
	if r.state.removeProblem(p) {
		logs.Infof(
			"control.Router problem cleared problem=%s active=%d mode=%s",
			p, r.state.problems.Len(), r.state.Mode(),
		)
	}
	return r.settle(req, ResponseSuccess)
}

// admitDevice runs the ordered checks for a device-affecting request.
// Caller holds r.mu.
func (r *Router) admitDevice(req Request) (Response, bool) {
	if !r.state.isOwner(req.Client) {
		return ResponseNotInControl, false
	}
	if r.state.Mode() != ModeAutomated {
		return ResponseWrongControlMode, false
	}
	if r.state.forwarding {
		return ResponsePerformingScan, false
	}
	if r.state.scanning && req.Kind != RequestStopScan {
		return ResponsePerformingScan, false
	}
	return ResponseUndefined, true
}

func (r *Router) forward(ctx context.Context, req Request) outcome {
	r.mu.Lock()
	if resp, ok := r.admitDevice(req); !ok {
		out := r.settle(req, resp)
		r.mu.Unlock()
		return out
	}
	r.state.forwarding = true
	r.mu.Unlock()

	cmd := DeviceCommand{Kind: req.Kind}
	if len(req.Params) > 0 {
		cmd.Params = append([]byte(nil), req.Params...)
	}
	result := r.gateway.Forward(ctx, cmd)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.forwarding = false
	switch req.Kind {
	case RequestStartScan:
		// A problem raised mid-forward already moved the mode away from
		// automated; the owner must reissue start_scan once it clears.
		if result == DeviceOK && r.state.Mode() == ModeAutomated {
			r.state.markScanning()
		}
	case RequestStopScan:
		r.state.scanning = false
	}
	if result == DeviceTimeout {
		logs.Warnf(
			"control.Router device did not respond client=%q request=%s timeout=%s",
			req.Client, req.Kind, r.gateway.Timeout(),
		)
	}
	return r.settle(req, result.Response())
}

// MarkScanFinished clears the scan marker once the device reports idle.
// seq is the Snapshot.ScanSeq observed before polling the device; a scan
// started after that poll is left alone. It reports whether the marker
// was cleared.
func (r *Router) MarkScanFinished(seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.scanning || r.state.scanSeq != seq || r.state.forwarding {
		return false
	}
	r.state.scanning = false
	logs.Infof("control.Router scan finished owner=%q", r.state.owner)
	return true
}

// LogSnapshot writes the current snapshot and the last tail decisions
// at the given level.
func (r *Router) LogSnapshot(level logs.Level, msg string, tail int) {
	snap := r.Snapshot()
	problems := make([]string, 0, len(snap.Problems))
	for _, p := range snap.Problems {
		problems = append(problems, p.String())
	}
	logs.AtLevel(level).
		Str("mode", snap.Mode.String()).
		Str("owner", string(snap.Owner)).
		Strs("problems", problems).
		Bool("scanning", snap.Scanning).
		Bool("forwarding", snap.Forwarding).
		Int("decisions", r.history.Len()).
		Msg(msg)
	if tail <= 0 {
		return
	}
	for _, d := range r.history.Recent(tail) {
		logs.AtLevel(level).Msgf("%s %s", msg, d)
	}
}
