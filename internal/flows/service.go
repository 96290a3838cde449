package flows

import (
	"context"

	"github.com/MrEthical07/pveauth/transport"
)

// Service is the centralized flow runner built once by the root client.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Dispatch.Transport != nil && s.deps.Dispatch.Session != nil && s.deps.Dispatch.Limiter != nil
}

func (s Service) Dispatch(ctx context.Context, req *transport.Request) DispatchResult {
	return RunDispatch(ctx, req, s.deps.Dispatch)
}
