package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/probectl/internal/testutil/testlog"
)

func TestGatewayForwardMapsDeviceOutcomes(t *testing.T) {
	testlog.Start(t)
	dev := newFakeDevice()
	gw := NewGateway(dev, 50*time.Millisecond)

	if got := gw.Forward(context.Background(), DeviceCommand{Kind: RequestStartScan}); got != DeviceOK {
		t.Fatalf("expected ok, got %s", got)
	}

	dev.set(false, nil)
	if got := gw.Forward(context.Background(), DeviceCommand{Kind: RequestStartScan}); got != DeviceError {
		t.Fatalf("expected error, got %s", got)
	}

	dev.set(true, errors.New("connection refused"))
	if got := gw.Forward(context.Background(), DeviceCommand{Kind: RequestStartScan}); got != DeviceTimeout {
		t.Fatalf("transport failure should map to timeout, got %s", got)
	}
}

func TestGatewayForwardTimesOut(t *testing.T) {
	testlog.Start(t)
	dev := newFakeDevice()
	dev.block = make(chan struct{})
	defer close(dev.block)
	gw := NewGateway(dev, 20*time.Millisecond)

	start := time.Now()
	got := gw.Forward(context.Background(), DeviceCommand{Kind: RequestStopScan})
	if got != DeviceTimeout {
		t.Fatalf("expected timeout, got %s", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout not bounded: %v", elapsed)
	}
}

func TestGatewayDefaultsAndNilDevice(t *testing.T) {
	testlog.Start(t)
	gw := NewGateway(nil, 0)
	if gw.Timeout() != DefaultGatewayTimeout {
		t.Fatalf("unexpected default timeout: %v", gw.Timeout())
	}
	if got := gw.Forward(context.Background(), DeviceCommand{Kind: RequestStartScan}); got != DeviceTimeout {
		t.Fatalf("nil device should report timeout, got %s", got)
	}
	if _, err := gw.Status(context.Background()); err == nil {
		t.Fatalf("expected status error without device")
	}
}

func TestDeviceResultResponseMapping(t *testing.T) {
	testlog.Start(t)
	cases := map[DeviceResult]Response{
		DeviceOK:      ResponseSuccess,
		DeviceError:   ResponseFailure,
		DeviceTimeout: ResponseNoResponse,
	}
	for in, want := range cases {
		if got := in.Response(); got != want {
			t.Fatalf("%s -> %s want %s", in, got, want)
		}
	}
}
