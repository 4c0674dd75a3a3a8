// Package eval implements the expression engine: a compiler from a restricted
// Java expression language to a tree of evaluator nodes, and the runtime
// evaluation of that tree against live stack frames.
//
// Every failure crossing the package boundary is a Message: a format string
// with $N placeholders plus ordered positional parameters. Nothing in this
// package panics across the boundary or raises errors as Go error values;
// the formatting/serialization layer renders Messages uniformly.
package eval

import (
	"strconv"
	"strings"

	"github.com/chazu/loupe/pkg/jvm"
)

// Compile-time message formats. An expression failing with one of these never
// ran.
const (
	ExpressionTooLong      = "Expression exceeds the maximum length of $0 characters"
	ExpressionTreeTooDeep  = "Expression is too deeply nested"
	ExpressionParserError  = "Invalid expression syntax"
	BadNumericLiteral      = "Invalid numeric literal: $0"
	TypeMismatch           = "The operator $0 is undefined for the operand types"
	TypeCastCompileInvalid = "Cannot cast expression of type $0 to $1"
	TypeCastUnsupported    = "Type cast to $0 is not supported"
	InvalidIdentifier      = "Identifier $0 cannot be resolved"
	ClassNotLoaded         = "Class $0 has not been loaded yet"
	PrimitiveTypeField     = "Cannot access member $0 of a primitive type"
	ArrayTypeExpected      = "Expression of type $0 is not an array"
	ArrayIndexNotInteger   = "Array index is not an integer"
	OutOfMemory            = "Out of memory while compiling the expression"

	InstanceMethodNotFound                        = "Instance method $0 not found in class $1"
	StaticMethodNotFound                          = "Static method $0 not found in class $1"
	ImplicitMethodNotFound                        = "Method $0 not found in class $1"
	AmbiguousMethodCall                           = "Multiple methods named $0 in class $1 match the call"
	MethodCallArgumentsMismatchSingleCandidate    = "Method $0 cannot be called with the given arguments"
	MethodCallArgumentsMismatchMultipleCandidates = "No overload of method $0 accepts the given arguments"
	MethodCallOnPrimitiveType                     = "Cannot call method $0 on a value of primitive type $1"
)

// Evaluation-time message formats. The expression compiled; running it
// against the current frame failed.
const (
	DivisionByZero              = "Division by zero"
	IntegerDivisionOverflow     = "Integer arithmetic overflow"
	NullPointerDereference      = "Null pointer dereference"
	TypeCastEvaluateInvalid     = "Object of type $0 cannot be cast to $1"
	ReferenceTypeNotFound       = "Type $0 not found"
	MethodNotSafe               = "Method $0 is blocked by the call policy"
	MethodCallExceptionOccurred = "Method $0 threw $1"
)

// InternalErrorMessage is the collapse point for violated invariants. The
// parameters carry a location tag and line number; these paths log loudly
// because they indicate a bug in the agent, not user error.
const InternalErrorMessage = "Internal debugger agent error at $0:$1"

// Message is the structured failure value crossing the engine boundary.
type Message struct {
	Format     string   `cbor:"format" json:"format"`
	Parameters []string `cbor:"parameters,omitempty" json:"parameters,omitempty"`

	// ExceptionObject carries the debuggee-thrown exception for
	// MethodCallExceptionOccurred results. The formatting layer owns the
	// reference once it receives the Message. Never serialized.
	ExceptionObject jvm.Value `cbor:"-" json:"-"`
}

// NewMessage builds a Message from a format constant and its positional
// parameters.
func NewMessage(format string, params ...string) *Message {
	return &Message{Format: format, Parameters: params}
}

// InternalError builds the generic internal-error message for a location tag
// and source line.
func InternalError(where string, line int) *Message {
	return NewMessage(InternalErrorMessage, where, strconv.Itoa(line))
}

// Is reports whether the message was built from the given format constant.
func (m *Message) Is(format string) bool {
	return m != nil && m.Format == format
}

// IsDeferred reports whether the message is the soft class-not-loaded
// condition: the caller should retry compilation once the named class loads
// rather than treat the expression as permanently broken.
func (m *Message) IsDeferred() bool {
	return m.Is(ClassNotLoaded)
}

// String substitutes the positional parameters into the format for logs and
// tests. Wire consumers transmit the parts separately and never rely on this
// rendering.
func (m *Message) String() string {
	if m == nil {
		return ""
	}
	out := m.Format
	for i, p := range m.Parameters {
		out = strings.ReplaceAll(out, "$"+strconv.Itoa(i), p)
	}
	return out
}
