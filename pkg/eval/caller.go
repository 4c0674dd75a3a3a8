package eval

import (
	"github.com/chazu/loupe/pkg/jvm"
)

// MethodCallOutcome classifies the result of invoking a debuggee method.
type MethodCallOutcome int

const (
	// CallSuccess: the method returned normally; Value holds the result.
	CallSuccess MethodCallOutcome = iota
	// CallJavaException: the debuggee threw; Exception holds the thrown
	// object. The exception is data, never re-raised natively.
	CallJavaException
	// CallError: the call could not be made (policy block, invocation
	// failure); Err holds the structured message.
	CallError
)

// MethodCallResult is the three-way outcome of a method invocation. Success
// and exception outcomes may carry fresh object references which the
// receiver of the result owns thereafter.
type MethodCallResult struct {
	Outcome   MethodCallOutcome
	Value     jvm.Value
	Exception jvm.Value
	Err       *Message
}

// Release drops whatever references the result carries. Safe to call on any
// outcome.
func (r *MethodCallResult) Release() {
	r.Value.Release()
	r.Exception.Release()
}

// BoundMethod is a method descriptor resolved to a concrete invocable
// handle. Binding happens once per descriptor; a bind failure (unknown
// class, malformed signature, absent method) is reported by Bind, distinct
// from invoke-time failures reported through MethodCallResult.
type BoundMethod interface {
	// Call invokes the method. receiver is ignored for static methods;
	// nonVirtual forces invocation of the exact bound method rather than
	// the receiver's override.
	Call(nonVirtual bool, receiver jvm.Value, args []jvm.Value) MethodCallResult
}

// MethodCaller is the capability to execute debuggee methods, supplied per
// evaluation through the EvaluationContext. Implementations enforce the
// safety policy; a blocked call comes back as a CallError result with the
// policy's message, never as a crash.
type MethodCaller interface {
	Bind(m jvm.Method) (BoundMethod, *Message)
}

// EvaluationContext is the ephemeral per-evaluation state threaded by
// reference through every Evaluate call. It is never retained past one
// evaluation pass.
type EvaluationContext struct {
	// Caller executes debuggee methods for method-call nodes. May be nil
	// when the consumer forbids method calls outright.
	Caller MethodCaller

	// FrameData is opaque per-frame state for the reader implementations
	// supplied by the readers factory (the production JVMTI frame proxy,
	// or the synthetic frame in tests).
	FrameData any
}
