// Package metadata caches per-class structure (field readers, method
// descriptors) and resolved call-stack locations. Both caches are explicit
// components owned by the agent: created at attach, invalidated from unload
// notifications, destroyed at detach. They are the only state in the engine
// core shared across threads.
package metadata

import (
	"sync"

	"github.com/chazu/loupe/pkg/eval"
	"github.com/chazu/loupe/pkg/jvm"
)

// Field is one raw field as reported by class introspection, before
// visibility filtering.
type Field struct {
	Name      string
	Signature jvm.Signature
	Modifiers int
}

// IsStatic reports whether the field is declared static.
func (f Field) IsStatic() bool {
	return f.Modifiers&jvm.ModStatic != 0
}

// Introspector reads raw class structure from the live class graph. The
// production implementation sits on JVMTI; tests substitute a synthetic one.
type Introspector interface {
	// Superclass returns the direct superclass. ok is false at the root of
	// the hierarchy.
	Superclass(class jvm.Signature) (jvm.Signature, bool)

	// DeclaredFields lists the fields declared directly on class, in
	// declaration order, without inherited fields.
	DeclaredFields(class jvm.Signature) ([]Field, *eval.Message)

	// DeclaredMethods lists the methods declared directly on class.
	DeclaredMethods(class jvm.Signature) ([]jvm.Method, *eval.Message)

	// InstanceFieldReader and StaticFieldReader construct readers for one
	// visible field.
	InstanceFieldReader(class jvm.Signature, f Field) (eval.InstanceFieldReader, *eval.Message)
	StaticFieldReader(class jvm.Signature, f Field) (eval.StaticFieldReader, *eval.Message)
}

// VisibilityPolicy filters class members at metadata load time. Members the
// policy hides never enter an Entry.
type VisibilityPolicy interface {
	IsFieldVisible(class jvm.Signature, f Field) bool
	IsMethodVisible(m jvm.Method) bool
}

// AllVisible is the permissive policy.
type AllVisible struct{}

func (AllVisible) IsFieldVisible(jvm.Signature, Field) bool { return true }
func (AllVisible) IsMethodVisible(jvm.Method) bool          { return true }

// Entry is the cached metadata of one class. Entries are immutable after
// construction and their pointers stay valid until the entry is invalidated
// or the cache torn down.
type Entry struct {
	Signature jvm.Signature

	// Field readers in base-class-first order: fields declared in a
	// superclass precede subclass fields.
	InstanceFields []eval.InstanceFieldReader
	StaticFields   []eval.StaticFieldReader

	// Methods deduplicated by name plus erased argument signature: a
	// subclass override replaces the superclass method, same-name overloads
	// with different arguments all survive.
	Methods []jvm.Method

	// InstanceFieldsOmitted records that the visibility policy hid at least
	// one instance field, without enumerating which. Captures built from
	// this entry may be incomplete.
	InstanceFieldsOmitted bool
}

// FindMethods returns the entry's methods with the given name.
func (e *Entry) FindMethods(name string) []jvm.Method {
	var out []jvm.Method
	for _, m := range e.Methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// ClassMetadataCache lazily builds and retains one Entry per class identity.
//
// Lookups take a read lock; a miss builds the entry outside any lock and
// inserts under the write lock, re-checking for a racing insert. Duplicate
// builds can race but only one is retained, and the retained pointer stays
// stable for the cache's lifetime.
type ClassMetadataCache struct {
	intro  Introspector
	policy VisibilityPolicy

	mu      sync.RWMutex
	entries map[string]*Entry // keyed by internal class name
}

// NewClassMetadataCache creates an empty cache over the given introspection
// seam. A nil policy means everything is visible.
func NewClassMetadataCache(intro Introspector, policy VisibilityPolicy) *ClassMetadataCache {
	if policy == nil {
		policy = AllVisible{}
	}
	return &ClassMetadataCache{
		intro:   intro,
		policy:  policy,
		entries: map[string]*Entry{},
	}
}

// GetClassMetadata returns the cached entry for class, building it on first
// lookup. Repeated calls for the same class identity return the same Entry
// pointer.
func (c *ClassMetadataCache) GetClassMetadata(class jvm.Signature) (*Entry, *eval.Message) {
	c.mu.RLock()
	entry, ok := c.entries[class.ClassName]
	c.mu.RUnlock()
	if ok {
		return entry, nil
	}

	built, msg := c.build(class)
	if msg != nil {
		return nil, msg
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if racer, ok := c.entries[class.ClassName]; ok {
		// A concurrent build won the insert; keep it, drop ours.
		return racer, nil
	}
	c.entries[class.ClassName] = built
	return built, nil
}

// OnClassUnload drops the entry for class. Outstanding Entry pointers held
// by callers remain readable; new lookups rebuild.
func (c *ClassMetadataCache) OnClassUnload(class jvm.Signature) {
	c.mu.Lock()
	delete(c.entries, class.ClassName)
	c.mu.Unlock()
}

// Reset drops every entry, for agent detach.
func (c *ClassMetadataCache) Reset() {
	c.mu.Lock()
	c.entries = map[string]*Entry{}
	c.mu.Unlock()
}

// build assembles the entry for class: superclass chain walked root-first so
// base members come first, visibility filtered, methods deduplicated.
func (c *ClassMetadataCache) build(class jvm.Signature) (*Entry, *eval.Message) {
	chain := []jvm.Signature{class}
	cur := class
	for {
		super, ok := c.intro.Superclass(cur)
		if !ok {
			break
		}
		chain = append(chain, super)
		cur = super
	}

	entry := &Entry{Signature: class}
	methodIndex := map[string]int{} // name + erased args -> position in Methods

	for i := len(chain) - 1; i >= 0; i-- {
		owner := chain[i]

		fields, msg := c.intro.DeclaredFields(owner)
		if msg != nil {
			return nil, msg
		}
		for _, f := range fields {
			if !c.policy.IsFieldVisible(owner, f) {
				if !f.IsStatic() {
					entry.InstanceFieldsOmitted = true
				}
				continue
			}
			if f.IsStatic() {
				reader, msg := c.intro.StaticFieldReader(owner, f)
				if msg != nil {
					return nil, msg
				}
				entry.StaticFields = append(entry.StaticFields, reader)
			} else {
				reader, msg := c.intro.InstanceFieldReader(owner, f)
				if msg != nil {
					return nil, msg
				}
				entry.InstanceFields = append(entry.InstanceFields, reader)
			}
		}

		methods, msg := c.intro.DeclaredMethods(owner)
		if msg != nil {
			return nil, msg
		}
		for _, m := range methods {
			if !c.policy.IsMethodVisible(m) {
				continue
			}
			key := m.Name + erasedArguments(m.Signature)
			if pos, seen := methodIndex[key]; seen {
				// Walking base-first, a later hit is the override.
				entry.Methods[pos] = m
				continue
			}
			methodIndex[key] = len(entry.Methods)
			entry.Methods = append(entry.Methods, m)
		}
	}
	return entry, nil
}

// erasedArguments cuts the argument part out of an erased JVM signature,
// "(IJ)V" -> "(IJ)". Return types do not participate in override identity.
func erasedArguments(signature string) string {
	for i := 0; i < len(signature); i++ {
		if signature[i] == ')' {
			return signature[:i+1]
		}
	}
	return signature
}
