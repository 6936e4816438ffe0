package control

import (
	"context"
	"sync"
)

// fakeDevice is a scriptable Device. When block is set, Send parks until
// block is closed or the call context ends.
type fakeDevice struct {
	mu      sync.Mutex
	ok      bool
	err     error
	block   chan struct{}
	entered chan DeviceCommand
	sent    []DeviceCommand
	status  DeviceStatus
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{ok: true}
}

func (d *fakeDevice) Send(ctx context.Context, cmd DeviceCommand) (bool, error) {
	d.mu.Lock()
	d.sent = append(d.sent, cmd)
	ok, err, block, entered := d.ok, d.err, d.block, d.entered
	d.mu.Unlock()

	if entered != nil {
		entered <- cmd
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return ok, err
}

func (d *fakeDevice) Status(ctx context.Context) (DeviceStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status, nil
}

func (d *fakeDevice) set(ok bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ok = ok
	d.err = err
}

func (d *fakeDevice) commands() []DeviceCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeviceCommand, len(d.sent))
	copy(out, d.sent)
	return out
}
