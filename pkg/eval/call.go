package eval

import (
	"github.com/chazu/loupe/pkg/jvm"
)

// methodCallEval invokes a resolved method against the live debuggee. The
// descriptor was chosen by overload resolution at compile time; binding to
// an invocable handle happens through the per-evaluation MethodCaller so
// the node itself stays stateless.
type methodCallEval struct {
	method    jvm.Method
	retSig    jvm.Signature
	paramSigs []jvm.Signature
	receiver  Evaluator // nil for static methods
	args      []Evaluator
}

func (e *methodCallEval) StaticType() jvm.Signature { return e.retSig }

func (e *methodCallEval) Evaluate(ctx *EvaluationContext) (jvm.Value, *Message) {
	if ctx.Caller == nil {
		return jvm.Value{}, NewMessage(MethodNotSafe, e.method.Name)
	}

	var receiver jvm.Value
	if e.receiver != nil {
		var msg *Message
		receiver, msg = e.receiver.Evaluate(ctx)
		if msg != nil {
			return jvm.Value{}, msg
		}
		if receiver.IsNull() {
			receiver.Release()
			return jvm.Value{}, NewMessage(NullPointerDereference)
		}
	}
	defer receiver.Release()

	// Arguments evaluate left to right before the call, mirroring Java.
	args := make([]jvm.Value, 0, len(e.args))
	releaseAll := func() {
		for i := range args {
			args[i].Release()
		}
	}
	for i, argEval := range e.args {
		value, msg := argEval.Evaluate(ctx)
		if msg != nil {
			releaseAll()
			return jvm.Value{}, msg
		}
		converted, msg := convertArgument(value, e.paramSigs[i])
		if msg != nil {
			value.Release()
			releaseAll()
			return jvm.Value{}, msg
		}
		args = append(args, converted)
	}
	defer releaseAll()

	bound, msg := ctx.Caller.Bind(e.method)
	if msg != nil {
		return jvm.Value{}, msg
	}

	result := bound.Call(false, receiver, args)
	switch result.Outcome {
	case CallSuccess:
		return result.Value, nil
	case CallJavaException:
		msg := NewMessage(MethodCallExceptionOccurred, e.method.Name, exceptionName(result.Exception))
		msg.ExceptionObject = result.Exception
		return jvm.Value{}, msg
	case CallError:
		if result.Err == nil {
			return jvm.Value{}, InternalError("methodCallEval", 1)
		}
		return jvm.Value{}, result.Err
	}
	return jvm.Value{}, InternalError("methodCallEval", 2)
}

// convertArgument applies the implicit method-invocation conversion chosen
// at compile time: primitive widening for primitive parameters, pass-through
// (including null) for reference parameters. Consumes value on success.
func convertArgument(value jvm.Value, param jvm.Signature) (jvm.Value, *Message) {
	if param.Kind == jvm.Object {
		return value, nil
	}
	if value.Type() == param.Kind {
		return value, nil
	}
	converted, ok := convertNumeric(value, param.Kind)
	if !ok {
		value.Release()
		return jvm.Value{}, InternalError("convertArgument", 1)
	}
	value.Release()
	return converted, nil
}

// exceptionName renders the thrown object's class for the message parameter;
// the object itself rides along for upstream formatting.
func exceptionName(exception jvm.Value) string {
	ref, ok := exception.Ref()
	if !ok || ref == nil {
		return "unknown exception"
	}
	return jvm.Dotted(ref.ClassSignature())
}
