package client

import (
	"context"

	"github.com/danmuck/probectl/internal/control"
)

// AdminClient adds the experiment-administration requests. The router
// decodes both but does not act on them.
type AdminClient struct {
	*Client
}

func NewAdmin(cfg Config) (*AdminClient, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return &AdminClient{Client: c}, nil
}

func (a *AdminClient) SetControlMode(ctx context.Context, mode control.Mode) control.Response {
	return a.Request(ctx, control.Request{Kind: control.RequestSetControlMode, Mode: mode})
}

func (a *AdminClient) EndExperiment(ctx context.Context) control.Response {
	return a.Request(ctx, control.Request{Kind: control.RequestEndExperiment})
}
