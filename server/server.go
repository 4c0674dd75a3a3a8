package server

import (
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/loupe/pkg/eval"
	"github.com/chazu/loupe/pkg/metadata"
)

// Procedure paths of the DebugService. There is no generated schema; clients
// address the procedures by path with the CBOR codec.
const (
	ProcedureEvaluate      = "/loupe.v1.DebugService/Evaluate"
	ProcedureAddWatch      = "/loupe.v1.DebugService/AddWatch"
	ProcedureRemoveWatch   = "/loupe.v1.DebugService/RemoveWatch"
	ProcedureListWatches   = "/loupe.v1.DebugService/ListWatches"
	ProcedureCapture       = "/loupe.v1.DebugService/Capture"
	ProcedureReadStack     = "/loupe.v1.DebugService/ReadStack"
	ProcedureResolveFrame  = "/loupe.v1.DebugService/ResolveFrame"
	ProcedureDescribeClass = "/loupe.v1.DebugService/DescribeClass"
	ProcedureReleaseHandle = "/loupe.v1.DebugService/ReleaseHandle"
	ProcedureListSnapshots = "/loupe.v1.DebugService/ListSnapshots"
	ProcedureGetSnapshot   = "/loupe.v1.DebugService/GetSnapshot"
)

// Server is the debug RPC endpoint wrapping a stopped debuggee.
type Server struct {
	worker  *Worker
	service *DebugService
	handles *HandleStore
	mux     *http.ServeMux

	stopSweeper func()
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	evalOpts   eval.Options
	maxRetries int
	policy     *Policy
	stack      *metadata.CallStackCache
	classes    *metadata.ClassMetadataCache
	intro      metadata.Introspector
	store      SnapshotStore
	sinks      []SnapshotSink
}

// WithEvalOptions sets the expression compilation limits.
func WithEvalOptions(opts eval.Options) Option {
	return func(c *serverConfig) { c.evalOpts = opts }
}

// WithMaxDeferredRetries caps how often a deferred watch is recompiled on
// class-load notifications.
func WithMaxDeferredRetries(n int) Option {
	return func(c *serverConfig) { c.maxRetries = n }
}

// WithPolicy applies the configured safety policy: blocked methods drop out
// of overload resolution and hidden fields never enter class metadata.
func WithPolicy(p *Policy) Option {
	return func(c *serverConfig) { c.policy = p }
}

// WithIntrospector builds the class-metadata cache over the given
// introspection seam, filtered by the configured policy. WithClassMetadata
// takes precedence when both are set.
func WithIntrospector(intro metadata.Introspector) Option {
	return func(c *serverConfig) { c.intro = intro }
}

// WithCallStack sets the call-stack cache used by ReadStack, ResolveFrame
// and snapshot captures.
func WithCallStack(stack *metadata.CallStackCache) Option {
	return func(c *serverConfig) { c.stack = stack }
}

// WithClassMetadata sets the class-metadata cache used by DescribeClass.
func WithClassMetadata(classes *metadata.ClassMetadataCache) Option {
	return func(c *serverConfig) { c.classes = classes }
}

// WithSnapshotStore serves archived snapshots through the browse procedures.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(c *serverConfig) { c.store = store }
}

// WithSinks adds snapshot sinks consulted after every capture.
func WithSinks(sinks ...SnapshotSink) Option {
	return func(c *serverConfig) { c.sinks = append(c.sinks, sinks...) }
}

// New creates a Server over the given evaluation environment.
func New(env *Env, opts ...Option) *Server {
	cfg := &serverConfig{
		evalOpts:   eval.DefaultOptions(),
		maxRetries: 10,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.classes == nil && cfg.intro != nil {
		var vis metadata.VisibilityPolicy
		if cfg.policy != nil {
			vis = cfg.policy
		}
		cfg.classes = metadata.NewClassMetadataCache(cfg.intro, vis)
	}

	worker := NewWorker(env)
	handles := NewHandleStore()
	service := NewDebugService(worker, handles, cfg)

	s := &Server{
		worker:  worker,
		service: service,
		handles: handles,
		mux:     http.NewServeMux(),
	}

	codec := connect.WithCodec(cborCodec{})
	s.mux.Handle(ProcedureEvaluate, connect.NewUnaryHandler(ProcedureEvaluate, service.Evaluate, codec))
	s.mux.Handle(ProcedureAddWatch, connect.NewUnaryHandler(ProcedureAddWatch, service.AddWatch, codec))
	s.mux.Handle(ProcedureRemoveWatch, connect.NewUnaryHandler(ProcedureRemoveWatch, service.RemoveWatch, codec))
	s.mux.Handle(ProcedureListWatches, connect.NewUnaryHandler(ProcedureListWatches, service.ListWatches, codec))
	s.mux.Handle(ProcedureCapture, connect.NewUnaryHandler(ProcedureCapture, service.Capture, codec))
	s.mux.Handle(ProcedureReadStack, connect.NewUnaryHandler(ProcedureReadStack, service.ReadStack, codec))
	s.mux.Handle(ProcedureResolveFrame, connect.NewUnaryHandler(ProcedureResolveFrame, service.ResolveFrame, codec))
	s.mux.Handle(ProcedureDescribeClass, connect.NewUnaryHandler(ProcedureDescribeClass, service.DescribeClass, codec))
	s.mux.Handle(ProcedureReleaseHandle, connect.NewUnaryHandler(ProcedureReleaseHandle, service.ReleaseHandle, codec))
	s.mux.Handle(ProcedureListSnapshots, connect.NewUnaryHandler(ProcedureListSnapshots, service.ListSnapshots, codec))
	s.mux.Handle(ProcedureGetSnapshot, connect.NewUnaryHandler(ProcedureGetSnapshot, service.GetSnapshot, codec))

	// Result handles expire if the client stops referencing them.
	s.stopSweeper = handles.StartSweeper(5*time.Minute, 30*time.Minute)

	return s
}

// Service returns the DebugService, for in-process callers like the
// class-prepare and method-unload hooks.
func (s *Server) Service() *DebugService {
	return s.service
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	commonlog.NewInfoMessage(0, fmt.Sprintf("loupe debug server listening on %s", addr))
	return http.ListenAndServe(addr, s.mux)
}

// Handler returns the HTTP handler, for callers managing their own listener.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Stop shuts down the server.
func (s *Server) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.worker.Stop()
}

// logSinkFailure records a snapshot sink failure. Capture results are still
// returned to the caller; losing one sink is not a capture failure.
func logSinkFailure(snapshotID string, err error) {
	commonlog.NewErrorMessage(0, fmt.Sprintf("snapshot %s: sink failed: %v", snapshotID, err))
}
