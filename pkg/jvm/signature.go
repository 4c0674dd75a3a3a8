// Package jvm models the debuggee's runtime values: the tagged variant over
// Java's primitive kinds plus object references, and the (Kind, class name)
// signature representation of static Java types.
package jvm

import (
	"fmt"
	"strings"
)

// Kind identifies one of the nine Java value kinds plus void.
type Kind int

const (
	Void Kind = iota
	Boolean
	Char
	Byte
	Short
	Int
	Long
	Float
	Double
	Object
)

// String returns the Java source name for the kind.
func (k Kind) String() string {
	switch k {
	case Void:
		return "void"
	case Boolean:
		return "boolean"
	case Char:
		return "char"
	case Byte:
		return "byte"
	case Short:
		return "short"
	case Int:
		return "int"
	case Long:
		return "long"
	case Float:
		return "float"
	case Double:
		return "double"
	case Object:
		return "Object"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// IsNumeric returns true for kinds that participate in binary numeric
// promotion (char counts; boolean does not).
func (k Kind) IsNumeric() bool {
	switch k {
	case Char, Byte, Short, Int, Long, Float, Double:
		return true
	}
	return false
}

// IsIntegral returns true for kinds valid as array indexes and shift counts.
func (k Kind) IsIntegral() bool {
	switch k {
	case Char, Byte, Short, Int, Long:
		return true
	}
	return false
}

// Signature describes a static Java type as (kind, optional class name).
// Class names use the JVM internal form ("java/lang/String"); array types
// are Object-kind with a '['-prefixed descriptor name ("[I",
// "[Ljava/lang/String;"). Signatures compare structurally.
type Signature struct {
	Kind      Kind
	ClassName string
}

// Primitive returns the signature of a primitive (or void) kind.
func Primitive(k Kind) Signature {
	return Signature{Kind: k}
}

// Class returns an Object-kind signature for the given internal class name.
func Class(internalName string) Signature {
	return Signature{Kind: Object, ClassName: internalName}
}

// WellKnown object signatures the compiler needs by name.
var (
	ObjectSig = Class("java/lang/Object")
	StringSig = Class("java/lang/String")
	NullSig   = Signature{Kind: Object} // typeless null; assignable anywhere
)

// IsArray reports whether the signature denotes an array type.
func (s Signature) IsArray() bool {
	return s.Kind == Object && strings.HasPrefix(s.ClassName, "[")
}

// IsNullType reports whether this is the typeless null signature.
func (s Signature) IsNullType() bool {
	return s.Kind == Object && s.ClassName == ""
}

// Element returns the element signature of an array type.
// ok is false if the signature is not an array.
func (s Signature) Element() (Signature, bool) {
	if !s.IsArray() {
		return Signature{}, false
	}
	return FromDescriptor(s.ClassName[1:])
}

// FromDescriptor parses a JVM type descriptor ("I", "[I", "Ljava/lang/String;")
// into a signature. ok is false on malformed input.
func FromDescriptor(desc string) (Signature, bool) {
	if desc == "" {
		return Signature{}, false
	}
	switch desc[0] {
	case 'V':
		return Primitive(Void), len(desc) == 1
	case 'Z':
		return Primitive(Boolean), len(desc) == 1
	case 'C':
		return Primitive(Char), len(desc) == 1
	case 'B':
		return Primitive(Byte), len(desc) == 1
	case 'S':
		return Primitive(Short), len(desc) == 1
	case 'I':
		return Primitive(Int), len(desc) == 1
	case 'J':
		return Primitive(Long), len(desc) == 1
	case 'F':
		return Primitive(Float), len(desc) == 1
	case 'D':
		return Primitive(Double), len(desc) == 1
	case 'L':
		if !strings.HasSuffix(desc, ";") || len(desc) < 3 {
			return Signature{}, false
		}
		return Class(desc[1 : len(desc)-1]), true
	case '[':
		if _, ok := FromDescriptor(desc[1:]); !ok {
			return Signature{}, false
		}
		return Signature{Kind: Object, ClassName: desc}, true
	}
	return Signature{}, false
}

// Descriptor returns the JVM descriptor string for the signature.
func (s Signature) Descriptor() string {
	switch s.Kind {
	case Void:
		return "V"
	case Boolean:
		return "Z"
	case Char:
		return "C"
	case Byte:
		return "B"
	case Short:
		return "S"
	case Int:
		return "I"
	case Long:
		return "J"
	case Float:
		return "F"
	case Double:
		return "D"
	case Object:
		if s.IsArray() {
			return s.ClassName
		}
		if s.ClassName == "" {
			return "Ljava/lang/Object;"
		}
		return "L" + s.ClassName + ";"
	}
	return ""
}

// DisplayName returns the user-facing dotted name of the type, for error
// messages ("java.lang.String", "int[]", "int").
func (s Signature) DisplayName() string {
	if s.Kind != Object {
		return s.Kind.String()
	}
	if s.IsArray() {
		elem, ok := s.Element()
		if !ok {
			return Dotted(s.ClassName)
		}
		return elem.DisplayName() + "[]"
	}
	if s.ClassName == "" {
		return "null"
	}
	return Dotted(s.ClassName)
}

// Dotted converts an internal class name to source form
// ("java/lang/String" -> "java.lang.String").
func Dotted(internalName string) string {
	return strings.ReplaceAll(internalName, "/", ".")
}

// Internal converts a source-form class name to internal form.
func Internal(dottedName string) string {
	return strings.ReplaceAll(dottedName, ".", "/")
}
