package server

import (
	"github.com/chazu/loupe/pkg/eval"
	"github.com/chazu/loupe/pkg/jvm"
	"github.com/chazu/loupe/pkg/metadata"
)

// fakeStackSource serves a fixed two-frame stack.
type fakeStackSource struct {
	frames []metadata.RawFrame
	infos  map[metadata.RawFrame]metadata.FrameInfo
}

func newStackSource() *fakeStackSource {
	return &fakeStackSource{
		frames: []metadata.RawFrame{
			{Method: 10, Location: 3},
			{Method: 20, Location: 0},
		},
		infos: map[metadata.RawFrame]metadata.FrameInfo{
			{Method: 10, Location: 3}: {Class: jvm.Class("com/prod/A"), Method: "inner", File: "A.java", Line: 12},
			{Method: 20, Location: 0}: {Class: jvm.Class("com/prod/B"), Method: "outer", File: "B.java", Line: 4},
		},
	}
}

func (s *fakeStackSource) Walk(thread jvm.ObjectRef) ([]metadata.RawFrame, *eval.Message) {
	return s.frames, nil
}

func (s *fakeStackSource) Resolve(method metadata.MethodID, location int64) (metadata.FrameInfo, *eval.Message) {
	info, ok := s.infos[metadata.RawFrame{Method: method, Location: location}]
	if !ok {
		return metadata.FrameInfo{}, eval.NewMessage("Unknown frame")
	}
	return info, nil
}

// classIntrospector is a minimal single-level metadata.Introspector.
type classIntrospector struct {
	fields     map[string][]metadata.Field
	methods    map[string][]jvm.Method
	fieldCalls int
}

func (c *classIntrospector) Superclass(class jvm.Signature) (jvm.Signature, bool) {
	return jvm.Signature{}, false
}

func (c *classIntrospector) DeclaredFields(class jvm.Signature) ([]metadata.Field, *eval.Message) {
	c.fieldCalls++
	return c.fields[class.ClassName], nil
}

func (c *classIntrospector) DeclaredMethods(class jvm.Signature) ([]jvm.Method, *eval.Message) {
	return c.methods[class.ClassName], nil
}

func (c *classIntrospector) InstanceFieldReader(class jvm.Signature, f metadata.Field) (eval.InstanceFieldReader, *eval.Message) {
	return fieldReader{name: f.Name, sig: f.Signature}, nil
}

func (c *classIntrospector) StaticFieldReader(class jvm.Signature, f metadata.Field) (eval.StaticFieldReader, *eval.Message) {
	return staticFieldReader{fieldReader{name: f.Name, sig: f.Signature}}, nil
}

type fieldReader struct {
	name string
	sig  jvm.Signature
}

func (r fieldReader) Name() string              { return r.name }
func (r fieldReader) StaticType() jvm.Signature { return r.sig }

func (r fieldReader) ReadValue(source jvm.Value) (jvm.Value, *eval.Message) {
	return jvm.Value{}, nil
}

type staticFieldReader struct {
	fieldReader
}

func (r staticFieldReader) ReadValue() (jvm.Value, *eval.Message) {
	return jvm.Value{}, nil
}
