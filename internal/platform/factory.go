package platform

import (
	"context"

	"github.com/aretw0/flashpad/pkg/core"
)

// New wires a repository into a ready, initialized Service.
//
//	svc, err := flashpad.New("./vault", flashpad.WithAutoInit(true))
func New(uri string, opts ...Option) (*core.Service, error) {
	repo, err := Init(uri, opts...)
	if err != nil {
		return nil, err
	}

	o := buildOptions(opts)

	var svcOpts []core.ServiceOption
	if o.logger != nil {
		svcOpts = append(svcOpts, core.WithLogger(o.logger))
	}
	if o.now != nil {
		svcOpts = append(svcOpts, core.WithClock(o.now))
	}
	if o.newID != nil {
		svcOpts = append(svcOpts, core.WithIDGenerator(o.newID))
	}

	service := core.NewService(repo, svcOpts...)
	if err := service.Init(context.Background()); err != nil {
		return nil, err
	}
	return service, nil
}
