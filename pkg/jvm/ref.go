package jvm

// RefKind distinguishes the three ownership disciplines for debuggee object
// references. Local references are scoped to the frame that created them,
// global references outlive the acquiring scope until released, and weak
// global references may be invalidated asynchronously by the collector.
type RefKind int

const (
	LocalRef RefKind = iota
	GlobalRef
	WeakGlobalRef
)

// String returns a short name for the ref kind.
func (k RefKind) String() string {
	switch k {
	case LocalRef:
		return "local"
	case GlobalRef:
		return "global"
	case WeakGlobalRef:
		return "weak"
	default:
		return "unknown"
	}
}

// ObjectRef is a single owned reference to a debuggee object. The production
// implementation wraps a JNI reference; tests supply synthetic objects.
//
// Ownership is scoped: whoever holds an ObjectRef must Release it exactly
// once. NewRef acquires an additional, independently-owned reference to the
// same underlying object.
type ObjectRef interface {
	// RefKind returns the ownership kind this reference was acquired with.
	RefKind() RefKind

	// NewRef acquires another reference to the same object with the given
	// kind. Returns nil if the object is no longer alive (weak source).
	NewRef(kind RefKind) ObjectRef

	// Release gives up this reference. The ObjectRef must not be used
	// afterwards.
	Release()

	// IsAlive re-validates the reference. Always true for local and global
	// references; weak references report false once collected. Callers must
	// check before every dereference of a weak reference.
	IsAlive() bool

	// SameObject reports whether other refers to the same debuggee object.
	SameObject(other ObjectRef) bool

	// ClassSignature returns the internal name of the object's runtime
	// class ("java/lang/String", "[I").
	ClassSignature() string
}

// StringContent is implemented by references to java.lang.String objects
// whose content the binding layer can read out. Rendering uses it when
// available; absence just means the value prints as an opaque object.
type StringContent interface {
	StringContent() (string, bool)
}
