// Package wire defines the serialized snapshot format shared by the archive,
// the forwarder, and the RPC surface. Encoding is canonical CBOR so the same
// snapshot always produces the same bytes.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/loupe/pkg/eval"
	"github.com/chazu/loupe/pkg/metadata"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ErrorMessage is the serializable part of an evaluation failure: the format
// string with $N placeholders and its positional parameters. Consumers
// substitute the parameters themselves so they can localize the format.
type ErrorMessage struct {
	Format     string   `cbor:"format" json:"format"`
	Parameters []string `cbor:"parameters,omitempty" json:"parameters,omitempty"`
}

// NewErrorMessage strips an evaluation message down to its serializable part.
// Returns nil for a nil message.
func NewErrorMessage(m *eval.Message) *ErrorMessage {
	if m == nil {
		return nil
	}
	return &ErrorMessage{Format: m.Format, Parameters: m.Parameters}
}

// String substitutes the positional parameters into the format.
func (e *ErrorMessage) String() string {
	if e == nil {
		return ""
	}
	return (&eval.Message{Format: e.Format, Parameters: e.Parameters}).String()
}

// EvaluatedExpression is one watch expression and its outcome. Exactly one of
// Value and Error is meaningful: a successful evaluation carries the rendered
// value, a failed one carries the error.
type EvaluatedExpression struct {
	Source string        `cbor:"source" json:"source"`
	Value  string        `cbor:"value,omitempty" json:"value,omitempty"`
	Error  *ErrorMessage `cbor:"error,omitempty" json:"error,omitempty"`
}

// Frame is one resolved call-stack frame, innermost first in a snapshot.
type Frame struct {
	Class  string `cbor:"class" json:"class"`
	Method string `cbor:"method" json:"method"`
	File   string `cbor:"file,omitempty" json:"file,omitempty"`
	Line   int    `cbor:"line,omitempty" json:"line,omitempty"`
}

// FrameFromInfo converts a resolved frame to its wire form.
func FrameFromInfo(info metadata.FrameInfo) Frame {
	return Frame{
		Class:  info.Class.ClassName,
		Method: info.Method,
		File:   info.File,
		Line:   info.Line,
	}
}

// Snapshot is one captured debuggee state: the evaluated watch expressions
// and the call stack at the capture point.
type Snapshot struct {
	ID            string                `cbor:"id" json:"id"`
	CreatedUnixMs int64                 `cbor:"created-unix-ms" json:"created-unix-ms"`
	Expressions   []EvaluatedExpression `cbor:"expressions,omitempty" json:"expressions,omitempty"`
	Frames        []Frame               `cbor:"frames,omitempty" json:"frames,omitempty"`
}

// Marshal serializes any value to canonical CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

// Unmarshal deserializes CBOR bytes into v.
func Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

// MarshalSnapshot serializes a Snapshot to canonical CBOR bytes.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("wire: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
