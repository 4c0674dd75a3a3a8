// Package evaltest is the fully synthetic implementation of the expression
// engine's JVM-facing seams: objects, references, readers factory and method
// caller, with no JVM anywhere. Production backs the same interfaces with
// JVMTI/JNI; tests for eval, metadata and server build on this package.
package evaltest

import (
	"fmt"

	"github.com/chazu/loupe/pkg/eval"
	"github.com/chazu/loupe/pkg/jvm"
)

// ---------------------------------------------------------------------------
// Synthetic objects and references
// ---------------------------------------------------------------------------

// Object is a synthetic debuggee object. Fields, string content and array
// elements are optional facets; Alive=false simulates collection observed
// through weak references.
type Object struct {
	Class    string // internal class name, "com/prod/MyClass2"
	IsString bool
	Content  string
	Alive    bool

	// ElementAt supplies array elements when the object plays an array.
	ElementAt func(index int64) (jvm.Value, *eval.Message)

	// Fields holds instance field values by name.
	Fields map[string]jvm.Value

	// Refs counts outstanding references, for leak assertions.
	Refs int
}

// NewObject creates a live synthetic object of the given class.
func NewObject(class string) *Object {
	return &Object{Class: class, Alive: true, Fields: map[string]jvm.Value{}}
}

// NewString creates a synthetic java.lang.String.
func NewString(content string) *Object {
	o := NewObject("java/lang/String")
	o.IsString = true
	o.Content = content
	return o
}

// NewRef acquires a reference to the object.
func (o *Object) NewRef(kind jvm.RefKind) jvm.ObjectRef {
	o.Refs++
	return &objectRef{obj: o, kind: kind}
}

// Value wraps a fresh local reference to the object.
func (o *Object) Value() jvm.Value {
	return jvm.FromRef(o.NewRef(jvm.LocalRef))
}

type objectRef struct {
	obj      *Object
	kind     jvm.RefKind
	released bool
}

func (r *objectRef) RefKind() jvm.RefKind { return r.kind }

func (r *objectRef) NewRef(kind jvm.RefKind) jvm.ObjectRef {
	if !r.obj.Alive {
		return nil
	}
	return r.obj.NewRef(kind)
}

func (r *objectRef) Release() {
	if r.released {
		panic("evaltest: double release")
	}
	r.released = true
	r.obj.Refs--
}

func (r *objectRef) IsAlive() bool { return r.obj.Alive }

func (r *objectRef) SameObject(other jvm.ObjectRef) bool {
	o, ok := other.(*objectRef)
	return ok && o.obj == r.obj
}

func (r *objectRef) ClassSignature() string { return r.obj.Class }

func (r *objectRef) StringContent() (string, bool) {
	return r.obj.Content, r.obj.IsString
}

// Unwrap returns the synthetic object behind a value, if any.
func Unwrap(v jvm.Value) (*Object, bool) {
	ref, ok := v.Ref()
	if !ok || ref == nil {
		return nil, false
	}
	or, ok := ref.(*objectRef)
	if !ok {
		return nil, false
	}
	return or.obj, true
}

// ---------------------------------------------------------------------------
// Readers factory
// ---------------------------------------------------------------------------

// MethodImpl is the synthetic body of one debuggee method.
type MethodImpl func(receiver jvm.Value, args []jvm.Value) eval.MethodCallResult

type methodEntry struct {
	desc jvm.Method
	impl MethodImpl
}

// Factory is the synthetic ReadersFactory. Populate it with fake locals,
// fields, classes and methods, then hand it to eval.NewCompiler.
type Factory struct {
	EvalPointClass string

	locals        map[string]jvm.Value
	instanceField map[string]map[string]func(source jvm.Value) (jvm.Value, *eval.Message)
	instanceSig   map[string]map[string]jvm.Signature
	staticField   map[string]map[string]jvm.Value
	classes       map[string]bool
	supers        map[string][]string
	methods       []methodEntry
	blocked       map[string]bool

	// FindClassCalls counts class lookups, for cache assertions.
	FindClassCalls int
}

// NewFactory creates an empty factory rooted at the given evaluation point
// class (internal name). The class itself is registered as loaded.
func NewFactory(evalPointClass string) *Factory {
	f := &Factory{
		EvalPointClass: evalPointClass,
		locals:         map[string]jvm.Value{},
		instanceField:  map[string]map[string]func(jvm.Value) (jvm.Value, *eval.Message){},
		instanceSig:    map[string]map[string]jvm.Signature{},
		staticField:    map[string]map[string]jvm.Value{},
		classes:        map[string]bool{},
		supers:         map[string][]string{},
		blocked:        map[string]bool{},
	}
	f.AddClass(evalPointClass)
	f.AddClass("java/lang/Object")
	f.AddClass("java/lang/String")
	return f
}

// AddFakeLocal registers a local variable holding the given value. The
// factory keeps its own reference; readers hand out copies.
func (f *Factory) AddFakeLocal(name string, value jvm.Value) {
	f.locals[name] = value
}

// AddThis registers the implicit "this" local pointing at obj.
func (f *Factory) AddThis(obj *Object) {
	f.AddFakeLocal("this", obj.Value())
}

// AddClass marks a class as loaded.
func (f *Factory) AddClass(internalName string) {
	f.classes[internalName] = true
}

// AddSuper records that class is assignable to super (both internal names).
func (f *Factory) AddSuper(class, super string) {
	f.supers[class] = append(f.supers[class], super)
}

// AddFakeInstanceField registers an instance field on a class whose value is
// read out of the synthetic object's field map.
func (f *Factory) AddFakeInstanceField(class, name string, sig jvm.Signature) {
	f.addInstanceField(class, name, sig, func(source jvm.Value) (jvm.Value, *eval.Message) {
		obj, ok := Unwrap(source)
		if !ok {
			return jvm.Value{}, eval.InternalError("evaltest.instanceField", 1)
		}
		stored, ok := obj.Fields[name]
		if !ok {
			return jvm.Value{}, eval.NewMessage("Field $0 is unreadable", name)
		}
		return stored.Copy(), nil
	})
}

func (f *Factory) addInstanceField(class, name string, sig jvm.Signature,
	read func(jvm.Value) (jvm.Value, *eval.Message)) {
	if f.instanceField[class] == nil {
		f.instanceField[class] = map[string]func(jvm.Value) (jvm.Value, *eval.Message){}
		f.instanceSig[class] = map[string]jvm.Signature{}
	}
	f.instanceField[class][name] = read
	f.instanceSig[class][name] = sig
}

// AddFakeStaticField registers a static field with a fixed value.
func (f *Factory) AddFakeStaticField(class, name string, value jvm.Value) {
	if f.staticField[class] == nil {
		f.staticField[class] = map[string]jvm.Value{}
	}
	f.staticField[class][name] = value
}

// AddMethod registers a callable method with a synthetic body.
func (f *Factory) AddMethod(desc jvm.Method, impl MethodImpl) {
	f.methods = append(f.methods, methodEntry{desc: desc, impl: impl})
}

// BlockMethod excludes a method name from the allowed-call policy.
func (f *Factory) BlockMethod(name string) {
	f.blocked[name] = true
}

func (f *Factory) GetEvaluationPointClassName() string { return f.EvalPointClass }

func (f *Factory) FindClassByName(internalName string) (jvm.Signature, bool) {
	f.FindClassCalls++
	if !f.classes[internalName] {
		return jvm.Signature{}, false
	}
	return jvm.Class(internalName), true
}

func (f *Factory) IsAssignable(from, to jvm.Signature) bool {
	if from.IsNullType() {
		return true
	}
	if from.ClassName == to.ClassName {
		return true
	}
	if to.ClassName == "java/lang/Object" {
		return true
	}
	seen := map[string]bool{}
	queue := []string{from.ClassName}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for _, super := range f.supers[cur] {
			if super == to.ClassName {
				return true
			}
			queue = append(queue, super)
		}
	}
	return false
}

func (f *Factory) IsMethodCallAllowed(m jvm.Method) bool {
	return !f.blocked[m.Name]
}

func (f *Factory) FindLocalInstanceMethods(name string) ([]jvm.Method, *eval.Message) {
	var out []jvm.Method
	for _, e := range f.methods {
		if e.desc.Name == name && e.desc.Class.ClassName == f.EvalPointClass {
			out = append(out, e.desc)
		}
	}
	return out, nil
}

func (f *Factory) FindInstanceMethods(class jvm.Signature, name string) ([]jvm.Method, *eval.Message) {
	var out []jvm.Method
	for _, e := range f.methods {
		if e.desc.Name == name && !e.desc.IsStatic() &&
			f.IsAssignable(class, e.desc.Class) {
			out = append(out, e.desc)
		}
	}
	return out, nil
}

func (f *Factory) FindStaticMethods(class jvm.Signature, name string) ([]jvm.Method, *eval.Message) {
	var out []jvm.Method
	for _, e := range f.methods {
		if e.desc.Name == name && e.desc.IsStatic() && e.desc.Class.ClassName == class.ClassName {
			out = append(out, e.desc)
		}
	}
	return out, nil
}

func (f *Factory) GetLocalVariableReader(name string) (eval.LocalVariableReader, bool) {
	value, ok := f.locals[name]
	if !ok {
		return nil, false
	}
	return &localReader{name: name, value: value}, true
}

func (f *Factory) GetInstanceFieldReader(class, field string) (eval.InstanceFieldReader, bool) {
	read, ok := f.instanceField[class][field]
	if !ok {
		return nil, false
	}
	return &instanceFieldReader{
		name: field,
		sig:  f.instanceSig[class][field],
		read: read,
	}, true
}

func (f *Factory) GetStaticFieldReader(class, field string) (eval.StaticFieldReader, bool) {
	value, ok := f.staticField[class][field]
	if !ok {
		return nil, false
	}
	return &staticFieldReader{name: field, value: value}, true
}

func (f *Factory) CreateArrayReader(arraySignature jvm.Signature) eval.ArrayReader {
	return arrayReader{}
}

func (f *Factory) CreateStringObject(content string) (jvm.Value, *eval.Message) {
	return NewString(content).Value(), nil
}

// ---------------------------------------------------------------------------
// Readers
// ---------------------------------------------------------------------------

type localReader struct {
	name  string
	value jvm.Value
}

func (r *localReader) Name() string { return r.name }

func (r *localReader) StaticType() jvm.Signature {
	return staticTypeOf(r.value)
}

func (r *localReader) ReadValue(ctx *eval.EvaluationContext) (jvm.Value, *eval.Message) {
	return r.value.Copy(), nil
}

type instanceFieldReader struct {
	name string
	sig  jvm.Signature
	read func(jvm.Value) (jvm.Value, *eval.Message)
}

func (r *instanceFieldReader) Name() string              { return r.name }
func (r *instanceFieldReader) StaticType() jvm.Signature { return r.sig }

func (r *instanceFieldReader) ReadValue(source jvm.Value) (jvm.Value, *eval.Message) {
	return r.read(source)
}

type staticFieldReader struct {
	name  string
	value jvm.Value
}

func (r *staticFieldReader) Name() string              { return r.name }
func (r *staticFieldReader) StaticType() jvm.Signature { return staticTypeOf(r.value) }

func (r *staticFieldReader) ReadValue() (jvm.Value, *eval.Message) {
	return r.value.Copy(), nil
}

// arrayReader serves element reads for synthetic arrays via their
// ElementAt function.
type arrayReader struct{}

func (arrayReader) ReadElement(array jvm.Value, index int64) (jvm.Value, *eval.Message) {
	obj, ok := Unwrap(array)
	if !ok || obj.ElementAt == nil {
		return jvm.Value{}, eval.NewMessage("Array is unreadable")
	}
	return obj.ElementAt(index)
}

// staticTypeOf derives a reader's declared type from its fixed value.
func staticTypeOf(v jvm.Value) jvm.Signature {
	if v.Type() != jvm.Object {
		return jvm.Primitive(v.Type())
	}
	ref, _ := v.Ref()
	if ref == nil {
		return jvm.NullSig
	}
	return jvm.Class(ref.ClassSignature())
}

// ---------------------------------------------------------------------------
// Method caller
// ---------------------------------------------------------------------------

// Caller is the synthetic MethodCaller: it dispatches to the registered
// MethodImpl bodies and can simulate policy blocks per method name.
type Caller struct {
	Factory *Factory

	// BlockedAtCall simulates the runtime safety policy rejecting a call
	// that static filtering let through.
	BlockedAtCall map[string]bool

	// Calls records invoked method names in order.
	Calls []string
}

// NewCaller creates a caller over the factory's registered methods.
func NewCaller(f *Factory) *Caller {
	return &Caller{Factory: f, BlockedAtCall: map[string]bool{}}
}

func (c *Caller) Bind(m jvm.Method) (eval.BoundMethod, *eval.Message) {
	for _, e := range c.Factory.methods {
		if e.desc.Class == m.Class && e.desc.Name == m.Name && e.desc.Signature == m.Signature {
			return &boundMethod{caller: c, entry: e}, nil
		}
	}
	return nil, eval.NewMessage("Method $0 could not be bound", fmt.Sprintf("%s.%s", m.Class.DisplayName(), m.Name))
}

type boundMethod struct {
	caller *Caller
	entry  methodEntry
}

func (b *boundMethod) Call(nonVirtual bool, receiver jvm.Value, args []jvm.Value) eval.MethodCallResult {
	b.caller.Calls = append(b.caller.Calls, b.entry.desc.Name)
	if b.caller.BlockedAtCall[b.entry.desc.Name] {
		return eval.MethodCallResult{
			Outcome: eval.CallError,
			Err:     eval.NewMessage(eval.MethodNotSafe, b.entry.desc.Name),
		}
	}
	return b.entry.impl(receiver, args)
}
