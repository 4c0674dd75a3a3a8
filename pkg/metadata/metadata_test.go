package metadata

import (
	"sync"
	"testing"

	"github.com/chazu/loupe/pkg/eval"
	"github.com/chazu/loupe/pkg/jvm"
)

// fakeIntrospector serves a small class hierarchy and counts introspection
// calls for cache-hit assertions.
type fakeIntrospector struct {
	mu      sync.Mutex
	supers  map[string]string
	fields  map[string][]Field
	methods map[string][]jvm.Method

	declaredFieldCalls map[string]int
}

func newFakeIntrospector() *fakeIntrospector {
	return &fakeIntrospector{
		supers:             map[string]string{},
		fields:             map[string][]Field{},
		methods:            map[string][]jvm.Method{},
		declaredFieldCalls: map[string]int{},
	}
}

func (f *fakeIntrospector) Superclass(class jvm.Signature) (jvm.Signature, bool) {
	super, ok := f.supers[class.ClassName]
	if !ok {
		return jvm.Signature{}, false
	}
	return jvm.Class(super), true
}

func (f *fakeIntrospector) DeclaredFields(class jvm.Signature) ([]Field, *eval.Message) {
	f.mu.Lock()
	f.declaredFieldCalls[class.ClassName]++
	f.mu.Unlock()
	return f.fields[class.ClassName], nil
}

func (f *fakeIntrospector) DeclaredMethods(class jvm.Signature) ([]jvm.Method, *eval.Message) {
	return f.methods[class.ClassName], nil
}

func (f *fakeIntrospector) InstanceFieldReader(class jvm.Signature, fd Field) (eval.InstanceFieldReader, *eval.Message) {
	return instanceReader{name: fd.Name, sig: fd.Signature}, nil
}

func (f *fakeIntrospector) StaticFieldReader(class jvm.Signature, fd Field) (eval.StaticFieldReader, *eval.Message) {
	return staticReader{name: fd.Name, sig: fd.Signature}, nil
}

type instanceReader struct {
	name string
	sig  jvm.Signature
}

func (r instanceReader) Name() string              { return r.name }
func (r instanceReader) StaticType() jvm.Signature { return r.sig }

func (r instanceReader) ReadValue(source jvm.Value) (jvm.Value, *eval.Message) {
	return jvm.Value{}, nil
}

type staticReader struct {
	name string
	sig  jvm.Signature
}

func (r staticReader) Name() string              { return r.name }
func (r staticReader) StaticType() jvm.Signature { return r.sig }

func (r staticReader) ReadValue() (jvm.Value, *eval.Message) {
	return jvm.Value{}, nil
}

// hierarchy builds Base <- Derived with a field and method spread.
func hierarchy() *fakeIntrospector {
	intro := newFakeIntrospector()
	intro.supers["com/prod/Derived"] = "com/prod/Base"

	intro.fields["com/prod/Base"] = []Field{
		{Name: "baseField", Signature: jvm.Primitive(jvm.Int)},
		{Name: "COUNT", Signature: jvm.Primitive(jvm.Long), Modifiers: jvm.ModStatic},
	}
	intro.fields["com/prod/Derived"] = []Field{
		{Name: "derivedField", Signature: jvm.Primitive(jvm.Double)},
		{Name: "secret", Signature: jvm.Primitive(jvm.Int)},
	}

	intro.methods["com/prod/Base"] = []jvm.Method{
		{Class: jvm.Class("com/prod/Base"), Name: "run", Signature: "()V"},
		{Class: jvm.Class("com/prod/Base"), Name: "get", Signature: "(I)I"},
	}
	intro.methods["com/prod/Derived"] = []jvm.Method{
		// Override of run()V plus a new overload of get.
		{Class: jvm.Class("com/prod/Derived"), Name: "run", Signature: "()V"},
		{Class: jvm.Class("com/prod/Derived"), Name: "get", Signature: "(J)I"},
	}
	return intro
}

func TestFieldOrderBaseClassFirst(t *testing.T) {
	cache := NewClassMetadataCache(hierarchy(), nil)
	entry, msg := cache.GetClassMetadata(jvm.Class("com/prod/Derived"))
	if msg != nil {
		t.Fatal(msg)
	}

	var names []string
	for _, r := range entry.InstanceFields {
		names = append(names, r.Name())
	}
	want := []string{"baseField", "derivedField", "secret"}
	if len(names) != len(want) {
		t.Fatalf("instance fields %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("instance fields %v, want %v", names, want)
		}
	}
	if len(entry.StaticFields) != 1 || entry.StaticFields[0].Name() != "COUNT" {
		t.Errorf("static fields missing COUNT")
	}
	if entry.InstanceFieldsOmitted {
		t.Error("nothing was hidden")
	}
}

func TestMethodOverrideReplacesOverloadSurvives(t *testing.T) {
	cache := NewClassMetadataCache(hierarchy(), nil)
	entry, msg := cache.GetClassMetadata(jvm.Class("com/prod/Derived"))
	if msg != nil {
		t.Fatal(msg)
	}

	runs := entry.FindMethods("run")
	if len(runs) != 1 {
		t.Fatalf("run methods = %d, want 1", len(runs))
	}
	if runs[0].Class.ClassName != "com/prod/Derived" {
		t.Errorf("override not applied: declared in %s", runs[0].Class.ClassName)
	}

	gets := entry.FindMethods("get")
	if len(gets) != 2 {
		t.Fatalf("get overloads = %d, want 2", len(gets))
	}
}

// hideSecret hides the "secret" instance field and every private method.
type hideSecret struct{}

func (hideSecret) IsFieldVisible(class jvm.Signature, f Field) bool {
	return f.Name != "secret"
}

func (hideSecret) IsMethodVisible(m jvm.Method) bool {
	return m.Modifiers&jvm.ModPrivate == 0
}

func TestVisibilityPolicyFiltersAtLoad(t *testing.T) {
	intro := hierarchy()
	intro.methods["com/prod/Derived"] = append(intro.methods["com/prod/Derived"],
		jvm.Method{Class: jvm.Class("com/prod/Derived"), Name: "hidden", Signature: "()V", Modifiers: jvm.ModPrivate})

	cache := NewClassMetadataCache(intro, hideSecret{})
	entry, msg := cache.GetClassMetadata(jvm.Class("com/prod/Derived"))
	if msg != nil {
		t.Fatal(msg)
	}

	for _, r := range entry.InstanceFields {
		if r.Name() == "secret" {
			t.Error("hidden field leaked into entry")
		}
	}
	if !entry.InstanceFieldsOmitted {
		t.Error("InstanceFieldsOmitted not set")
	}
	if len(entry.FindMethods("hidden")) != 0 {
		t.Error("hidden method leaked into entry")
	}
}

func TestMetadataIdempotence(t *testing.T) {
	intro := hierarchy()
	cache := NewClassMetadataCache(intro, nil)
	class := jvm.Class("com/prod/Derived")

	first, msg := cache.GetClassMetadata(class)
	if msg != nil {
		t.Fatal(msg)
	}
	second, msg := cache.GetClassMetadata(class)
	if msg != nil {
		t.Fatal(msg)
	}
	if first != second {
		t.Error("repeated lookups returned different entries")
	}
	if calls := intro.declaredFieldCalls["com/prod/Derived"]; calls != 1 {
		t.Errorf("DeclaredFields called %d times, want 1", calls)
	}
}

func TestMetadataConcurrentLookups(t *testing.T) {
	cache := NewClassMetadataCache(hierarchy(), nil)
	class := jvm.Class("com/prod/Derived")

	const n = 16
	entries := make([]*Entry, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, msg := cache.GetClassMetadata(class)
			if msg != nil {
				t.Error(msg)
				return
			}
			entries[i] = entry
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if entries[i] != entries[0] {
			t.Fatal("concurrent lookups returned different entries")
		}
	}
}

func TestClassUnloadRebuilds(t *testing.T) {
	intro := hierarchy()
	cache := NewClassMetadataCache(intro, nil)
	class := jvm.Class("com/prod/Derived")

	first, _ := cache.GetClassMetadata(class)
	cache.OnClassUnload(class)
	second, msg := cache.GetClassMetadata(class)
	if msg != nil {
		t.Fatal(msg)
	}
	if first == second {
		t.Error("unload did not drop the entry")
	}
	if calls := intro.declaredFieldCalls["com/prod/Derived"]; calls != 2 {
		t.Errorf("DeclaredFields called %d times, want 2", calls)
	}
}
