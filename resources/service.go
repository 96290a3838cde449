package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// ErrPartialListing is returned alongside the collected items when some nodes could not
// be listed. The error also carries a *multierror.Error with one entry per node.
var ErrPartialListing = errors.New("partial listing")

const defaultFanOut = 4

// Result describes a mutating operation. TaskID is the UPID Proxmox returns for
// asynchronous tasks, when present.
type Result struct {
	Message string
	TaskID  string
	DryRun  bool
}

// Option configures a Service.
type Option func(*Service)

func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithLogger(logger hclog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFanOut bounds concurrent per-node requests in cluster-wide listings.
func WithFanOut(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fanOut = n
		}
	}
}

// Service exposes node, guest, and storage operations.
type Service struct {
	api    Requester
	policy Policy
	logger hclog.Logger
	fanOut int
}

func New(api Requester, opts ...Option) *Service {
	s := &Service{
		api:    api,
		logger: hclog.NewNullLogger(),
		fanOut: defaultFanOut,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) get(ctx context.Context, op Operation, path string, query url.Values, out any) error {
	if err := s.policy.Check(op); err != nil {
		return err
	}
	data, err := s.api.Do(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (s *Service) mutate(ctx context.Context, op Operation, method, path string, params url.Values, message string) (Result, error) {
	if err := s.policy.Check(op); err != nil {
		return Result{}, err
	}
	if s.policy.DryRun {
		s.logger.Info("dry run", "operation", string(op), "method", method, "path", path)
		return Result{Message: "dry run: " + message, DryRun: true}, nil
	}

	data, err := s.api.Do(ctx, method, path, params)
	if err != nil {
		return Result{}, err
	}
	res := Result{Message: message}
	var upid string
	if json.Unmarshal(data, &upid) == nil {
		res.TaskID = upid
	}
	return res, nil
}

// fanOutNodes runs fn for every node with bounded concurrency. Results keep node order;
// failed nodes are skipped and reported through ErrPartialListing.
func fanOutNodes[T any](ctx context.Context, s *Service, nodes []Node, fn func(ctx context.Context, node string) ([]T, error)) ([]T, error) {
	perNode := make([][]T, len(nodes))
	var (
		mu   sync.Mutex
		errs *multierror.Error
	)

	var g errgroup.Group
	g.SetLimit(s.fanOut)
	for i, n := range nodes {
		g.Go(func() error {
			items, err := fn(ctx, n.Node)
			if err != nil {
				s.logger.Warn("node listing failed", "node", n.Node, "error", err)
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("node %s: %w", n.Node, err))
				mu.Unlock()
				return nil
			}
			perNode[i] = items
			return nil
		})
	}
	_ = g.Wait()

	var out []T
	for _, items := range perNode {
		out = append(out, items...)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return out, fmt.Errorf("%w: %w", ErrPartialListing, err)
	}
	return out, nil
}
