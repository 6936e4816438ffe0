package device

import (
	"sync"
	"time"

	"github.com/danmuck/probectl/internal/control"
	"github.com/danmuck/probectl/internal/protocol/session"
	"github.com/danmuck/probectl/internal/scan"
	logs "github.com/danmuck/smplog"
)

// DefaultScanDuration is how long a simulated scan runs.
const DefaultScanDuration = 2 * time.Second

// Scanner simulates one microscope scan head. A started scan runs for the configured
// duration unless stopped. While it runs only stop_scan is accepted.
type Scanner struct {
	mu        sync.Mutex
	duration  time.Duration
	now       func() time.Time
	scanning  bool
	startedAt time.Time
	params    []byte
	completed uint64
}

func NewScanner(duration time.Duration) *Scanner {
	if duration <= 0 {
		duration = DefaultScanDuration
	}
	return &Scanner{duration: duration, now: time.Now}
}

// Apply executes one command and returns the device result status.
func (s *Scanner) Apply(cmd control.DeviceCommand) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	busy := s.busyLocked()

	switch cmd.Kind {
	case control.RequestStartScan:
		if busy {
			return session.DeviceStatusBusy
		}
		s.scanning = true
		s.startedAt = s.now()
		logs.Infof("device.Scanner scan started duration=%s", s.duration)
		return session.DeviceStatusOK
	case control.RequestStopScan:
		if busy {
			logs.Infof("device.Scanner scan stopped")
		}
		s.scanning = false
		return session.DeviceStatusOK
	case control.RequestSetScanParams:
		if busy {
			return session.DeviceStatusBusy
		}
		p, err := scan.Decode(cmd.Params)
		if err != nil {
			logs.Warnf("device.Scanner rejected scan params err=%v", err)
			return session.DeviceStatusError
		}
		s.params = append([]byte(nil), cmd.Params...)
		logs.Infof("device.Scanner scan params set params=%s", p)
		return session.DeviceStatusOK
	default:
		logs.Warnf("device.Scanner unsupported command request=%s", cmd.Kind)
		return session.DeviceStatusError
	}
}

// Status reports whether a scan is running and the current parameters.
func (s *Scanner) Status() control.DeviceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := control.DeviceStatus{Scanning: s.busyLocked()}
	if len(s.params) > 0 {
		status.Params = append([]byte(nil), s.params...)
	}
	return status
}

// Completed returns the number of scans that ran to completion.
func (s *Scanner) Completed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busyLocked()
	return s.completed
}

// busyLocked settles an elapsed scan. Caller holds s.mu.
func (s *Scanner) busyLocked() bool {
	if !s.scanning {
		return false
	}
	if s.now().Sub(s.startedAt) < s.duration {
		return true
	}
	s.scanning = false
	s.completed++
	logs.Infof("device.Scanner scan finished completed=%d", s.completed)
	return false
}
