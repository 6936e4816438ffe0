package control

import (
	"context"
	"errors"
	"time"

	logs "github.com/danmuck/smplog"
)

// DefaultGatewayTimeout bounds one forwarded device command.
const DefaultGatewayTimeout = time.Second

// DeviceResult is the gateway outcome for one forwarded command.
type DeviceResult uint8

const (
	DeviceOK DeviceResult = iota + 1
	DeviceError
	DeviceTimeout
)

func (r DeviceResult) String() string {
	switch r {
	case DeviceOK:
		return "ok"
	case DeviceError:
		return "error"
	case DeviceTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Response maps a device outcome onto the client response.
func (r DeviceResult) Response() Response {
	switch r {
	case DeviceOK:
		return ResponseSuccess
	case DeviceError:
		return ResponseFailure
	default:
		return ResponseNoResponse
	}
}

// DeviceStatus is what the device reports when polled.
type DeviceStatus struct {
	Scanning bool
	Params   []byte
}

// Device is the boundary to the physical device server. Send returns
// true for device-reported success and false for device-reported failure;
// a non-nil error means no usable reply arrived.
type Device interface {
	Send(ctx context.Context, cmd DeviceCommand) (bool, error)
	Status(ctx context.Context) (DeviceStatus, error)
}

// Gateway forwards validated device commands with a bounded wait. It
// never retries.
type Gateway struct {
	device  Device
	timeout time.Duration
}

func NewGateway(device Device, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultGatewayTimeout
	}
	return &Gateway{device: device, timeout: timeout}
}

func (g *Gateway) Timeout() time.Duration {
	if g == nil {
		return 0
	}
	return g.timeout
}

// Forward sends cmd and blocks until the device answers or the timeout
// elapses. Transport failures are reported as DeviceTimeout.
func (g *Gateway) Forward(ctx context.Context, cmd DeviceCommand) DeviceResult {
	if g == nil || g.device == nil {
		return DeviceTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ok, err := g.device.Send(callCtx, cmd)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			logs.Warnf("control.Gateway.Forward timeout request=%s err=%v", cmd.Kind, err)
		} else {
			logs.Warnf("control.Gateway.Forward transport failure request=%s err=%v", cmd.Kind, err)
		}
		return DeviceTimeout
	}
	if !ok {
		return DeviceError
	}
	return DeviceOK
}

// Status polls the device scan state with the same bound as Forward.
func (g *Gateway) Status(ctx context.Context) (DeviceStatus, error) {
	if g == nil || g.device == nil {
		return DeviceStatus{}, errors.New("control: gateway has no device")
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.device.Status(callCtx)
}
