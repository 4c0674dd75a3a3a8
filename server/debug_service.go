package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/loupe/pkg/eval"
	"github.com/chazu/loupe/pkg/jvm"
	"github.com/chazu/loupe/pkg/metadata"
	"github.com/chazu/loupe/wire"
)

// EvaluateRequest asks for one expression to be compiled and run against the
// current stop point.
type EvaluateRequest struct {
	Source string `cbor:"source" json:"source"`
}

// EvaluateResponse carries the rendered result or the structured failure.
// Reference results additionally get a handle the client can release later.
type EvaluateResponse struct {
	Value    string             `cbor:"value,omitempty" json:"value,omitempty"`
	Type     string             `cbor:"type,omitempty" json:"type,omitempty"`
	HandleID string             `cbor:"handle-id,omitempty" json:"handle-id,omitempty"`
	Error    *wire.ErrorMessage `cbor:"error,omitempty" json:"error,omitempty"`

	// Deferred marks the soft failure mode: the expression references a class
	// that is not loaded yet and would be retried if registered as a watch.
	Deferred bool `cbor:"deferred,omitempty" json:"deferred,omitempty"`
}

// AddWatchRequest registers an expression for evaluation at every capture.
type AddWatchRequest struct {
	Source string `cbor:"source" json:"source"`
}

// AddWatchResponse reports the watch ID and the initial compile outcome.
type AddWatchResponse struct {
	ID       string             `cbor:"id" json:"id"`
	Error    *wire.ErrorMessage `cbor:"error,omitempty" json:"error,omitempty"`
	Deferred bool               `cbor:"deferred,omitempty" json:"deferred,omitempty"`
}

// RemoveWatchRequest drops a watch by ID.
type RemoveWatchRequest struct {
	ID string `cbor:"id" json:"id"`
}

// RemoveWatchResponse is empty; an unknown ID is reported as an RPC error.
type RemoveWatchResponse struct{}

// WatchInfo describes one registered watch.
type WatchInfo struct {
	ID       string             `cbor:"id" json:"id"`
	Source   string             `cbor:"source" json:"source"`
	Error    *wire.ErrorMessage `cbor:"error,omitempty" json:"error,omitempty"`
	Deferred bool               `cbor:"deferred,omitempty" json:"deferred,omitempty"`
}

// ListWatchesRequest has no parameters.
type ListWatchesRequest struct{}

// ListWatchesResponse lists watches in registration order.
type ListWatchesResponse struct {
	Watches []WatchInfo `cbor:"watches,omitempty" json:"watches,omitempty"`
}

// CaptureRequest triggers a snapshot at the current stop point.
type CaptureRequest struct{}

// CaptureResponse carries the captured snapshot.
type CaptureResponse struct {
	Snapshot *wire.Snapshot `cbor:"snapshot" json:"snapshot"`
}

// ReadStackRequest has no parameters; the stack of the stopped thread is read.
type ReadStackRequest struct{}

// ReadStackResponse lists one resolvable key per frame, innermost first.
type ReadStackResponse struct {
	Keys []int `cbor:"keys,omitempty" json:"keys,omitempty"`
}

// ResolveFrameRequest resolves one key from ReadStackResponse.
type ResolveFrameRequest struct {
	Key int `cbor:"key" json:"key"`
}

// ResolveFrameResponse carries the symbolic frame location.
type ResolveFrameResponse struct {
	Frame wire.Frame `cbor:"frame" json:"frame"`
}

// DescribeClassRequest asks for the visible members of a loaded class.
type DescribeClassRequest struct {
	Class string `cbor:"class" json:"class"` // internal name, e.g. com/prod/MyClass1
}

// MemberInfo describes one field or method of a class.
type MemberInfo struct {
	Name      string `cbor:"name" json:"name"`
	Signature string `cbor:"signature" json:"signature"`
}

// DescribeClassResponse lists instance fields base-class-first, then statics
// and methods. Truncated is set when the visibility policy hid fields.
type DescribeClassResponse struct {
	Class          string       `cbor:"class" json:"class"`
	InstanceFields []MemberInfo `cbor:"instance-fields,omitempty" json:"instance-fields,omitempty"`
	StaticFields   []MemberInfo `cbor:"static-fields,omitempty" json:"static-fields,omitempty"`
	Methods        []MemberInfo `cbor:"methods,omitempty" json:"methods,omitempty"`
	Truncated      bool         `cbor:"truncated,omitempty" json:"truncated,omitempty"`
}

// ReleaseHandleRequest drops one result handle.
type ReleaseHandleRequest struct {
	ID string `cbor:"id" json:"id"`
}

// ReleaseHandleResponse is empty; releasing an unknown handle is not an error.
type ReleaseHandleResponse struct{}

// ListSnapshotsRequest has no parameters.
type ListSnapshotsRequest struct{}

// ListSnapshotsResponse lists archived snapshot IDs, newest first.
type ListSnapshotsResponse struct {
	IDs []string `cbor:"ids,omitempty" json:"ids,omitempty"`
}

// GetSnapshotRequest fetches one archived snapshot by ID.
type GetSnapshotRequest struct {
	ID string `cbor:"id" json:"id"`
}

// GetSnapshotResponse carries the archived snapshot.
type GetSnapshotResponse struct {
	Snapshot *wire.Snapshot `cbor:"snapshot" json:"snapshot"`
}

// SnapshotStore is the read side of the snapshot archive, served by the
// browse procedures. The archive package implements it.
type SnapshotStore interface {
	List() ([]string, error)
	Load(id string) (*wire.Snapshot, error)
}

// SnapshotSink consumes captured snapshots. The archive and the forwarder
// both implement it; a sink failure is logged, never surfaced to the capture
// caller.
type SnapshotSink interface {
	Consume(ctx context.Context, snap *wire.Snapshot) error
}

// SinkFunc adapts a function to the SnapshotSink interface.
type SinkFunc func(ctx context.Context, snap *wire.Snapshot) error

// Consume calls f.
func (f SinkFunc) Consume(ctx context.Context, snap *wire.Snapshot) error {
	return f(ctx, snap)
}

// watch is one registered expression. compiled and err mirror the two states
// of a CompiledExpression; retries counts deferred recompilations.
type watch struct {
	id       string
	source   string
	compiled *eval.CompiledExpression
	err      *eval.Message
	retries  int
}

func (w *watch) deferred() bool {
	return w.compiled == nil && w.err.IsDeferred()
}

// DebugService implements the loupe.v1.DebugService procedures. All debuggee
// access funnels through the worker goroutine; the service itself only
// guards its watch registry.
type DebugService struct {
	worker     *Worker
	handles    *HandleStore
	stack      *metadata.CallStackCache
	classes    *metadata.ClassMetadataCache
	store      SnapshotStore
	opts       eval.Options
	policy     *Policy
	maxRetries int
	sinks      []SnapshotSink

	now         func() time.Time
	newID       func() string
	logInternal func(text string)

	mu      sync.Mutex
	watches map[string]*watch
	order   []string
}

// NewDebugService creates a DebugService.
func NewDebugService(worker *Worker, handles *HandleStore, cfg *serverConfig) *DebugService {
	return &DebugService{
		worker:     worker,
		handles:    handles,
		stack:      cfg.stack,
		classes:    cfg.classes,
		store:      cfg.store,
		opts:       cfg.evalOpts,
		policy:     cfg.policy,
		maxRetries: cfg.maxRetries,
		sinks:      cfg.sinks,
		now:        time.Now,
		newID:      uuid.NewString,
		logInternal: func(text string) {
			commonlog.NewErrorMessage(0, text)
		},
		watches: make(map[string]*watch),
	}
}

// readers applies the configured policy over the attached factory.
func (s *DebugService) readers(env *Env) eval.ReadersFactory {
	if s.policy == nil {
		return env.Factory
	}
	return &guardedFactory{ReadersFactory: env.Factory, policy: s.policy}
}

// reportFailure logs internal-error evaluations loudly; they indicate a bug
// in the agent, not in the expression.
func (s *DebugService) reportFailure(source string, msg *eval.Message) {
	if msg.Is(eval.InternalErrorMessage) {
		s.logInternal(fmt.Sprintf("internal error evaluating %q: %s", source, msg.String()))
	}
}

// Evaluate compiles and runs one expression at the current stop point.
func (s *DebugService) Evaluate(
	ctx context.Context,
	req *connect.Request[EvaluateRequest],
) (*connect.Response[EvaluateResponse], error) {
	source := req.Msg.Source
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	result, err := s.worker.Do(func(env *Env) interface{} {
		if env.Factory == nil {
			return nil
		}
		return s.evaluate(env, source)
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	resp, ok := result.(*EvaluateResponse)
	if !ok {
		return nil, errNoDebuggee()
	}
	return connect.NewResponse(resp), nil
}

// evaluate compiles and runs source. Must be called on the worker goroutine.
func (s *DebugService) evaluate(env *Env, source string) *EvaluateResponse {
	compiler := eval.NewCompiler(s.readers(env), s.opts)
	ce := compiler.Compile(source)
	defer ce.Release()

	if msg := ce.Err(); msg != nil {
		s.reportFailure(source, msg)
		return &EvaluateResponse{
			Error:    wire.NewErrorMessage(msg),
			Deferred: ce.IsDeferred(),
		}
	}

	value, msg := ce.Evaluate(&eval.EvaluationContext{
		Caller:    env.Caller,
		FrameData: env.FrameData,
	})
	if msg != nil {
		s.reportFailure(source, msg)
		msg.ExceptionObject.Release()
		return &EvaluateResponse{Error: wire.NewErrorMessage(msg)}
	}
	defer value.Release()

	resp := &EvaluateResponse{
		Value: value.ToString(true),
		Type:  ce.StaticType().DisplayName(),
	}
	if value.Type() == jvm.Object && !value.IsNull() {
		resp.HandleID = s.handles.Create(value, ce.StaticType().DisplayName(), resp.Value)
	}
	return resp
}

// AddWatch registers an expression for every future capture. A deferred
// compile failure keeps the watch alive; it is recompiled when classes load.
func (s *DebugService) AddWatch(
	ctx context.Context,
	req *connect.Request[AddWatchRequest],
) (*connect.Response[AddWatchResponse], error) {
	source := req.Msg.Source
	if source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	w := &watch{id: s.newID(), source: source}
	attached, err := s.worker.Do(func(env *Env) interface{} {
		if env.Factory == nil {
			return false
		}
		s.compileWatch(env, w)
		return true
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if !attached.(bool) {
		return nil, errNoDebuggee()
	}

	s.mu.Lock()
	s.watches[w.id] = w
	s.order = append(s.order, w.id)
	s.mu.Unlock()

	return connect.NewResponse(&AddWatchResponse{
		ID:       w.id,
		Error:    wire.NewErrorMessage(w.err),
		Deferred: w.deferred(),
	}), nil
}

// compileWatch (re)compiles one watch. Must be called on the worker
// goroutine.
func (s *DebugService) compileWatch(env *Env, w *watch) {
	if w.compiled != nil {
		w.compiled.Release()
		w.compiled = nil
	}

	compiler := eval.NewCompiler(s.readers(env), s.opts)
	ce := compiler.Compile(w.source)
	if msg := ce.Err(); msg != nil {
		ce.Release()
		s.reportFailure(w.source, msg)
		w.err = msg
		return
	}
	w.compiled = ce
	w.err = nil
}

// RemoveWatch drops a watch.
func (s *DebugService) RemoveWatch(
	ctx context.Context,
	req *connect.Request[RemoveWatchRequest],
) (*connect.Response[RemoveWatchResponse], error) {
	s.mu.Lock()
	w, ok := s.watches[req.Msg.ID]
	if ok {
		delete(s.watches, req.Msg.ID)
		for i, id := range s.order {
			if id == req.Msg.ID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("watch %q not found", req.Msg.ID))
	}

	if w.compiled != nil {
		// Release on the worker: compiled trees may hold debuggee references.
		s.worker.Do(func(*Env) interface{} {
			w.compiled.Release()
			return nil
		})
	}
	return connect.NewResponse(&RemoveWatchResponse{}), nil
}

// ListWatches lists watches in registration order.
func (s *DebugService) ListWatches(
	ctx context.Context,
	req *connect.Request[ListWatchesRequest],
) (*connect.Response[ListWatchesResponse], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &ListWatchesResponse{}
	for _, id := range s.order {
		w := s.watches[id]
		resp.Watches = append(resp.Watches, WatchInfo{
			ID:       w.id,
			Source:   w.source,
			Error:    wire.NewErrorMessage(w.err),
			Deferred: w.deferred(),
		})
	}
	return connect.NewResponse(resp), nil
}

// Capture evaluates every watch and reads the call stack, then hands the
// snapshot to the configured sinks. Sink failures are reported to neither
// the caller nor the snapshot; the capture itself already succeeded.
func (s *DebugService) Capture(
	ctx context.Context,
	req *connect.Request[CaptureRequest],
) (*connect.Response[CaptureResponse], error) {
	s.mu.Lock()
	watches := make([]*watch, 0, len(s.order))
	for _, id := range s.order {
		watches = append(watches, s.watches[id])
	}
	s.mu.Unlock()

	result, err := s.worker.Do(func(env *Env) interface{} {
		return s.capture(env, watches)
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	snap := result.(*wire.Snapshot)

	for _, sink := range s.sinks {
		if err := sink.Consume(ctx, snap); err != nil {
			logSinkFailure(snap.ID, err)
		}
	}
	return connect.NewResponse(&CaptureResponse{Snapshot: snap}), nil
}

// capture builds one snapshot. Must be called on the worker goroutine.
func (s *DebugService) capture(env *Env, watches []*watch) *wire.Snapshot {
	snap := &wire.Snapshot{
		ID:            s.newID(),
		CreatedUnixMs: s.now().UnixMilli(),
	}

	for _, w := range watches {
		evaluated := wire.EvaluatedExpression{Source: w.source}
		switch {
		case w.compiled == nil:
			evaluated.Error = wire.NewErrorMessage(w.err)
		default:
			value, msg := w.compiled.Evaluate(&eval.EvaluationContext{
				Caller:    env.Caller,
				FrameData: env.FrameData,
			})
			if msg != nil {
				s.reportFailure(w.source, msg)
				msg.ExceptionObject.Release()
				evaluated.Error = wire.NewErrorMessage(msg)
			} else {
				evaluated.Value = value.ToString(true)
				value.Release()
			}
		}
		snap.Expressions = append(snap.Expressions, evaluated)
	}

	if s.stack != nil {
		keys, msg := s.stack.ReadStack(nil)
		if msg == nil {
			for _, key := range keys {
				info, ok, msg := s.stack.ResolveCallFrameKey(key)
				if msg != nil || !ok {
					continue
				}
				snap.Frames = append(snap.Frames, wire.FrameFromInfo(info))
			}
		}
	}
	return snap
}

// ReadStack reads the stopped thread's stack and returns resolvable keys.
func (s *DebugService) ReadStack(
	ctx context.Context,
	req *connect.Request[ReadStackRequest],
) (*connect.Response[ReadStackResponse], error) {
	if s.stack == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, fmt.Errorf("no stack source configured"))
	}

	result, err := s.worker.Do(func(*Env) interface{} {
		keys, msg := s.stack.ReadStack(nil)
		if msg != nil {
			return msg
		}
		return keys
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if msg, ok := result.(*eval.Message); ok {
		return nil, connect.NewError(connect.CodeUnavailable, fmt.Errorf("%s", msg.String()))
	}
	return connect.NewResponse(&ReadStackResponse{Keys: result.([]int)}), nil
}

// ResolveFrame resolves one frame key from a prior ReadStack.
func (s *DebugService) ResolveFrame(
	ctx context.Context,
	req *connect.Request[ResolveFrameRequest],
) (*connect.Response[ResolveFrameResponse], error) {
	if s.stack == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, fmt.Errorf("no stack source configured"))
	}

	result, err := s.worker.Do(func(*Env) interface{} {
		info, ok, msg := s.stack.ResolveCallFrameKey(req.Msg.Key)
		if msg != nil {
			return msg
		}
		if !ok {
			return nil
		}
		return info
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	switch v := result.(type) {
	case *eval.Message:
		return nil, connect.NewError(connect.CodeUnavailable, fmt.Errorf("%s", v.String()))
	case metadata.FrameInfo:
		return connect.NewResponse(&ResolveFrameResponse{Frame: wire.FrameFromInfo(v)}), nil
	default:
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("frame key %d not found", req.Msg.Key))
	}
}

// DescribeClass returns the visible members of a loaded class.
func (s *DebugService) DescribeClass(
	ctx context.Context,
	req *connect.Request[DescribeClassRequest],
) (*connect.Response[DescribeClassResponse], error) {
	if s.classes == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, fmt.Errorf("no class introspector configured"))
	}
	if req.Msg.Class == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("class is required"))
	}

	result, err := s.worker.Do(func(*Env) interface{} {
		entry, msg := s.classes.GetClassMetadata(jvm.Class(req.Msg.Class))
		if msg != nil {
			return msg
		}
		return entry
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if msg, ok := result.(*eval.Message); ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("%s", msg.String()))
	}

	entry := result.(*metadata.Entry)
	resp := &DescribeClassResponse{
		Class:     entry.Signature.ClassName,
		Truncated: entry.InstanceFieldsOmitted,
	}
	for _, r := range entry.InstanceFields {
		resp.InstanceFields = append(resp.InstanceFields, MemberInfo{
			Name:      r.Name(),
			Signature: r.StaticType().Descriptor(),
		})
	}
	for _, r := range entry.StaticFields {
		resp.StaticFields = append(resp.StaticFields, MemberInfo{
			Name:      r.Name(),
			Signature: r.StaticType().Descriptor(),
		})
	}
	for _, m := range entry.Methods {
		resp.Methods = append(resp.Methods, MemberInfo{
			Name:      m.Name,
			Signature: m.Signature,
		})
	}
	return connect.NewResponse(resp), nil
}

// ReleaseHandle drops a result handle from a previous Evaluate.
func (s *DebugService) ReleaseHandle(
	ctx context.Context,
	req *connect.Request[ReleaseHandleRequest],
) (*connect.Response[ReleaseHandleResponse], error) {
	s.handles.Release(req.Msg.ID)
	return connect.NewResponse(&ReleaseHandleResponse{}), nil
}

// ListSnapshots lists archived snapshot IDs, newest first.
func (s *DebugService) ListSnapshots(
	ctx context.Context,
	req *connect.Request[ListSnapshotsRequest],
) (*connect.Response[ListSnapshotsResponse], error) {
	if s.store == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, fmt.Errorf("no snapshot archive configured"))
	}
	ids, err := s.store.List()
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&ListSnapshotsResponse{IDs: ids}), nil
}

// GetSnapshot fetches one archived snapshot.
func (s *DebugService) GetSnapshot(
	ctx context.Context,
	req *connect.Request[GetSnapshotRequest],
) (*connect.Response[GetSnapshotResponse], error) {
	if s.store == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, fmt.Errorf("no snapshot archive configured"))
	}
	snap, err := s.store.Load(req.Msg.ID)
	if err != nil {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	return connect.NewResponse(&GetSnapshotResponse{Snapshot: snap}), nil
}

func errNoDebuggee() *connect.Error {
	return connect.NewError(connect.CodeUnavailable, fmt.Errorf("no debuggee attached"))
}

// NotifyClassLoaded recompiles deferred watches. Each watch is retried at
// most maxRetries times; after that its last error becomes permanent. Called
// from the class-prepare hook.
func (s *DebugService) NotifyClassLoaded(class string) {
	s.mu.Lock()
	var deferred []*watch
	for _, id := range s.order {
		w := s.watches[id]
		if w.deferred() && w.retries < s.maxRetries {
			deferred = append(deferred, w)
		}
	}
	s.mu.Unlock()

	if len(deferred) == 0 {
		return
	}
	s.worker.Do(func(env *Env) interface{} {
		for _, w := range deferred {
			w.retries++
			s.compileWatch(env, w)
		}
		return nil
	})
}

// NotifyClassUnloaded invalidates cached metadata for an unloaded class.
func (s *DebugService) NotifyClassUnloaded(class string) {
	if s.classes != nil {
		s.classes.OnClassUnload(jvm.Class(class))
	}
}

// NotifyMethodUnloaded invalidates cached frame resolutions for an unloaded
// compiled method.
func (s *DebugService) NotifyMethodUnloaded(method metadata.MethodID) {
	if s.stack != nil {
		s.stack.OnCompiledMethodUnload(method)
	}
}
