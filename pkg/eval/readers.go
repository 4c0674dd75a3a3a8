package eval

import (
	"github.com/chazu/loupe/pkg/jvm"
)

// LocalVariableReader reads one local variable (or "this") from the frame
// the expression is being evaluated against.
type LocalVariableReader interface {
	Name() string
	StaticType() jvm.Signature
	ReadValue(ctx *EvaluationContext) (jvm.Value, *Message)
}

// InstanceFieldReader reads one instance field from a source object.
type InstanceFieldReader interface {
	Name() string
	StaticType() jvm.Signature
	ReadValue(source jvm.Value) (jvm.Value, *Message)
}

// StaticFieldReader reads one static field.
type StaticFieldReader interface {
	Name() string
	StaticType() jvm.Signature
	ReadValue() (jvm.Value, *Message)
}

// ArrayReader reads elements out of debuggee arrays of one element type.
// Access failures surface as the reader's own message text, verbatim.
type ArrayReader interface {
	ReadElement(array jvm.Value, index int64) (jvm.Value, *Message)
}

// ReadersFactory is the seam between the compiler and live JVM state. Given
// a compilation context (the method and class an expression is rooted in) it
// supplies every lookup the compiler needs, which is what makes the compiler
// testable without a JVM: production backs this with JVMTI/JNI, tests with a
// fully synthetic implementation (pkg/eval/evaltest).
type ReadersFactory interface {
	// GetEvaluationPointClassName returns the internal name of the class
	// containing the method the expression is rooted in.
	GetEvaluationPointClassName() string

	// FindClassByName resolves an internal class name ("com/prod/MyClass2",
	// "[I") to its signature. found is false when the class is not
	// currently loaded.
	FindClassByName(internalName string) (sig jvm.Signature, found bool)

	// IsAssignable reports whether a value of type from is assignable to a
	// variable of type to, per the debuggee's live class graph.
	IsAssignable(from, to jvm.Signature) bool

	// IsMethodCallAllowed applies the safety policy to a candidate method
	// at compile time. Blocked methods are filtered out of overload
	// resolution.
	IsMethodCallAllowed(m jvm.Method) bool

	// FindLocalInstanceMethods returns methods named name visible from the
	// evaluation point: instance methods of the enclosing class plus its
	// static methods.
	FindLocalInstanceMethods(name string) ([]jvm.Method, *Message)

	// FindInstanceMethods returns instance methods named name on the given
	// class or its supertypes.
	FindInstanceMethods(class jvm.Signature, name string) ([]jvm.Method, *Message)

	// FindStaticMethods returns static methods named name on the given
	// class.
	FindStaticMethods(class jvm.Signature, name string) ([]jvm.Method, *Message)

	// GetLocalVariableReader returns a reader for the named local variable
	// (including "this") at the evaluation point.
	GetLocalVariableReader(name string) (LocalVariableReader, bool)

	// GetInstanceFieldReader returns a reader for the named instance field
	// of the given class.
	GetInstanceFieldReader(classInternalName, fieldName string) (InstanceFieldReader, bool)

	// GetStaticFieldReader returns a reader for the named static field of
	// the given class.
	GetStaticFieldReader(classInternalName, fieldName string) (StaticFieldReader, bool)

	// CreateArrayReader returns a reader for arrays of the given array
	// signature, or nil if one cannot be constructed.
	CreateArrayReader(arraySignature jvm.Signature) ArrayReader

	// CreateStringObject materializes a java.lang.String in the debuggee
	// for a string literal. The returned value is owned by the caller.
	CreateStringObject(content string) (jvm.Value, *Message)
}
