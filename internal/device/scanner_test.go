package device

import (
	"testing"
	"time"

	"github.com/danmuck/probectl/internal/control"
	"github.com/danmuck/probectl/internal/protocol/session"
	"github.com/danmuck/probectl/internal/scan"
	"github.com/danmuck/probectl/internal/testutil/testlog"
)

type fakeClock struct{ at time.Time }

func (c *fakeClock) now() time.Time { return c.at }

func newClockedScanner(d time.Duration) (*Scanner, *fakeClock) {
	clock := &fakeClock{at: time.Unix(1700000000, 0)}
	s := NewScanner(d)
	s.now = clock.now
	return s, clock
}

func mustParams(t *testing.T) []byte {
	t.Helper()
	data, err := scan.Encode(scan.Params2D{SizeX: 100, SizeY: 100, ResolutionX: 64, ResolutionY: 64})
	if err != nil {
		t.Fatalf("encode params: %v", err)
	}
	return data
}

func TestScannerBusyWhileScanning(t *testing.T) {
	testlog.Start(t)
	s, clock := newClockedScanner(time.Second)

	if got := s.Apply(control.DeviceCommand{Kind: control.RequestStartScan}); got != session.DeviceStatusOK {
		t.Fatalf("start: %s", got)
	}
	if !s.Status().Scanning {
		t.Fatalf("expected scanning")
	}
	if got := s.Apply(control.DeviceCommand{Kind: control.RequestStartScan}); got != session.DeviceStatusBusy {
		t.Fatalf("second start: %s", got)
	}
	if got := s.Apply(control.DeviceCommand{Kind: control.RequestSetScanParams, Params: mustParams(t)}); got != session.DeviceStatusBusy {
		t.Fatalf("params while busy: %s", got)
	}

	clock.at = clock.at.Add(2 * time.Second)
	if s.Status().Scanning {
		t.Fatalf("scan should have completed")
	}
	if s.Completed() != 1 {
		t.Fatalf("expected one completed scan, got %d", s.Completed())
	}
}

func TestScannerStopAlwaysAllowed(t *testing.T) {
	testlog.Start(t)
	s, _ := newClockedScanner(time.Minute)

	if got := s.Apply(control.DeviceCommand{Kind: control.RequestStopScan}); got != session.DeviceStatusOK {
		t.Fatalf("stop while idle: %s", got)
	}
	s.Apply(control.DeviceCommand{Kind: control.RequestStartScan})
	if got := s.Apply(control.DeviceCommand{Kind: control.RequestStopScan}); got != session.DeviceStatusOK {
		t.Fatalf("stop while scanning: %s", got)
	}
	if s.Status().Scanning || s.Completed() != 0 {
		t.Fatalf("stopped scan must not count as completed")
	}
}

func TestScannerParams(t *testing.T) {
	testlog.Start(t)
	s, _ := newClockedScanner(time.Second)

	if got := s.Apply(control.DeviceCommand{Kind: control.RequestSetScanParams, Params: []byte{0x01}}); got != session.DeviceStatusError {
		t.Fatalf("garbage params: %s", got)
	}
	params := mustParams(t)
	if got := s.Apply(control.DeviceCommand{Kind: control.RequestSetScanParams, Params: params}); got != session.DeviceStatusOK {
		t.Fatalf("valid params: %s", got)
	}
	if string(s.Status().Params) != string(params) {
		t.Fatalf("status params mismatch")
	}
	if got := s.Apply(control.DeviceCommand{Kind: control.RequestReleaseCtrl}); got != session.DeviceStatusError {
		t.Fatalf("non-device command: %s", got)
	}
}
