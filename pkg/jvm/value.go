package jvm

import (
	"fmt"
	"strconv"
)

// Value is the runtime variant: one of the eight primitive kinds, void, or
// an object reference. The tag is fixed at construction; conversions produce
// a new Value. Object-kind values own their reference: Copy acquires a new
// same-kinded reference and Release gives it up, so callers never track raw
// handles.
type Value struct {
	kind Kind

	boolVal   bool
	charVal   uint16
	intVal    int64 // byte, short, int, long
	floatVal  float32
	doubleVal float64

	ref ObjectRef // Object kind only; nil means Java null
}

// VoidValue returns the unit value of a void expression.
func VoidValue() Value {
	return Value{kind: Void}
}

// FromBool wraps a Java boolean.
func FromBool(b bool) Value {
	return Value{kind: Boolean, boolVal: b}
}

// FromChar wraps a Java char (UTF-16 code unit).
func FromChar(c uint16) Value {
	return Value{kind: Char, charVal: c}
}

// FromByte wraps a Java byte.
func FromByte(b int8) Value {
	return Value{kind: Byte, intVal: int64(b)}
}

// FromShort wraps a Java short.
func FromShort(s int16) Value {
	return Value{kind: Short, intVal: int64(s)}
}

// FromInt wraps a Java int.
func FromInt(i int32) Value {
	return Value{kind: Int, intVal: int64(i)}
}

// FromLong wraps a Java long.
func FromLong(l int64) Value {
	return Value{kind: Long, intVal: l}
}

// FromFloat wraps a Java float.
func FromFloat(f float32) Value {
	return Value{kind: Float, floatVal: f}
}

// FromDouble wraps a Java double.
func FromDouble(d float64) Value {
	return Value{kind: Double, doubleVal: d}
}

// Null returns the Object-kind null value.
func Null() Value {
	return Value{kind: Object}
}

// FromRef wraps an object reference, taking ownership of ref. A nil ref is
// Java null.
func FromRef(ref ObjectRef) Value {
	return Value{kind: Object, ref: ref}
}

// Type returns the value's kind tag.
func (v Value) Type() Kind {
	return v.kind
}

// IsNull reports whether v is an Object-kind value holding null.
func (v Value) IsNull() bool {
	return v.kind == Object && v.ref == nil
}

// Copy returns an independently-owned copy. For Object-kind values this
// acquires a new reference of the same ref kind; the copy fails to a null
// value if a weak source object has been collected.
func (v Value) Copy() Value {
	if v.kind != Object || v.ref == nil {
		return v
	}
	ref := v.ref.NewRef(v.ref.RefKind())
	return Value{kind: Object, ref: ref}
}

// CopyAs acquires a copy whose reference has the given ownership kind.
func (v Value) CopyAs(kind RefKind) Value {
	if v.kind != Object || v.ref == nil {
		return v
	}
	return Value{kind: Object, ref: v.ref.NewRef(kind)}
}

// Release gives up the owned reference, if any. Safe on primitives.
func (v *Value) Release() {
	if v.kind == Object && v.ref != nil {
		v.ref.Release()
		v.ref = nil
	}
}

// AsBool extracts a boolean; ok is false on tag mismatch.
func (v Value) AsBool() (bool, bool) {
	if v.kind != Boolean {
		return false, false
	}
	return v.boolVal, true
}

// AsChar extracts a char; ok is false on tag mismatch.
func (v Value) AsChar() (uint16, bool) {
	if v.kind != Char {
		return 0, false
	}
	return v.charVal, true
}

// AsByte extracts a byte; ok is false on tag mismatch.
func (v Value) AsByte() (int8, bool) {
	if v.kind != Byte {
		return 0, false
	}
	return int8(v.intVal), true
}

// AsShort extracts a short; ok is false on tag mismatch.
func (v Value) AsShort() (int16, bool) {
	if v.kind != Short {
		return 0, false
	}
	return int16(v.intVal), true
}

// AsInt extracts an int; ok is false on tag mismatch.
func (v Value) AsInt() (int32, bool) {
	if v.kind != Int {
		return 0, false
	}
	return int32(v.intVal), true
}

// AsLong extracts a long; ok is false on tag mismatch.
func (v Value) AsLong() (int64, bool) {
	if v.kind != Long {
		return 0, false
	}
	return v.intVal, true
}

// AsFloat extracts a float; ok is false on tag mismatch.
func (v Value) AsFloat() (float32, bool) {
	if v.kind != Float {
		return 0, false
	}
	return v.floatVal, true
}

// AsDouble extracts a double; ok is false on tag mismatch.
func (v Value) AsDouble() (float64, bool) {
	if v.kind != Double {
		return 0, false
	}
	return v.doubleVal, true
}

// Ref returns the owned object reference; ok is false on tag mismatch.
// A true ok with a nil ref means Java null.
func (v Value) Ref() (ObjectRef, bool) {
	if v.kind != Object {
		return nil, false
	}
	return v.ref, true
}

// ToString renders the value for diagnostics and capture serialization:
// "<int>382", "<boolean>true", "null", "<Object>". String objects whose
// content is readable render as the content, quoted when quoteStrings is
// set.
func (v Value) ToString(quoteStrings bool) string {
	switch v.kind {
	case Void:
		return "<void>"
	case Boolean:
		return "<boolean>" + strconv.FormatBool(v.boolVal)
	case Char:
		return "<char>" + strconv.FormatUint(uint64(v.charVal), 10)
	case Byte:
		return "<byte>" + strconv.FormatInt(v.intVal, 10)
	case Short:
		return "<short>" + strconv.FormatInt(v.intVal, 10)
	case Int:
		return "<int>" + strconv.FormatInt(v.intVal, 10)
	case Long:
		return "<long>" + strconv.FormatInt(v.intVal, 10)
	case Float:
		return "<float>" + strconv.FormatFloat(float64(v.floatVal), 'g', -1, 32)
	case Double:
		return "<double>" + strconv.FormatFloat(v.doubleVal, 'g', -1, 64)
	case Object:
		if v.ref == nil {
			return "null"
		}
		if sc, ok := v.ref.(StringContent); ok {
			if content, ok := sc.StringContent(); ok {
				if quoteStrings {
					return "\"" + content + "\""
				}
				return content
			}
		}
		return "<Object>"
	default:
		return fmt.Sprintf("<unknown:%d>", int(v.kind))
	}
}
