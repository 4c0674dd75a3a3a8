package metadata

import (
	"sync"
	"testing"

	"github.com/chazu/loupe/pkg/eval"
	"github.com/chazu/loupe/pkg/jvm"
)

// fakeStackSource serves a fixed stack and counts Resolve calls.
type fakeStackSource struct {
	frames []RawFrame
	infos  map[frameIdentity]FrameInfo

	mu           sync.Mutex
	resolveCalls int
}

func (s *fakeStackSource) Walk(thread jvm.ObjectRef) ([]RawFrame, *eval.Message) {
	return s.frames, nil
}

func (s *fakeStackSource) Resolve(method MethodID, location int64) (FrameInfo, *eval.Message) {
	s.mu.Lock()
	s.resolveCalls++
	s.mu.Unlock()
	info, ok := s.infos[frameIdentity{method: method, location: location}]
	if !ok {
		return FrameInfo{}, eval.NewMessage("Unknown frame")
	}
	return info, nil
}

func newStackSource() *fakeStackSource {
	return &fakeStackSource{
		frames: []RawFrame{
			{Method: 10, Location: 3},
			{Method: 10, Location: 7},
			{Method: 20, Location: 0},
		},
		infos: map[frameIdentity]FrameInfo{
			{method: 10, location: 3}: {Class: jvm.Class("com/prod/A"), Method: "inner", File: "A.java", Line: 12},
			{method: 10, location: 7}: {Class: jvm.Class("com/prod/A"), Method: "inner", File: "A.java", Line: 19},
			{method: 20, location: 0}: {Class: jvm.Class("com/prod/B"), Method: "outer", File: "B.java", Line: 4},
		},
	}
}

func TestReadStackKeysAreStable(t *testing.T) {
	source := newStackSource()
	cache := NewCallStackCache(source)

	first, msg := cache.ReadStack(nil)
	if msg != nil {
		t.Fatal(msg)
	}
	if len(first) != 3 {
		t.Fatalf("frames = %d, want 3", len(first))
	}
	second, msg := cache.ReadStack(nil)
	if msg != nil {
		t.Fatal(msg)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("keys changed between reads: %v vs %v", first, second)
		}
	}
	// Distinct (method, offset) pairs get distinct keys.
	if first[0] == first[1] || first[1] == first[2] {
		t.Errorf("keys not distinct: %v", first)
	}
}

func TestResolveCachesPerPair(t *testing.T) {
	source := newStackSource()
	cache := NewCallStackCache(source)
	keys, _ := cache.ReadStack(nil)

	info, ok, msg := cache.ResolveCallFrameKey(keys[0])
	if msg != nil || !ok {
		t.Fatalf("resolve: ok=%v msg=%v", ok, msg)
	}
	if info.Line != 12 || info.Method != "inner" || info.File != "A.java" {
		t.Errorf("info = %+v", info)
	}

	// Re-resolving the same key and re-reading the stack hit the cache.
	cache.ResolveCallFrameKey(keys[0])
	cache.ReadStack(nil)
	cache.ResolveCallFrameKey(keys[0])
	if source.resolveCalls != 1 {
		t.Errorf("Resolve called %d times, want 1", source.resolveCalls)
	}
}

func TestResolveConcurrentFirstResolution(t *testing.T) {
	source := newStackSource()
	cache := NewCallStackCache(source)
	keys, _ := cache.ReadStack(nil)

	// Several goroutines race on the first resolution of every key while the
	// stack keeps being re-read. Run under -race.
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				for _, key := range keys {
					info, ok, msg := cache.ResolveCallFrameKey(key)
					if msg != nil || !ok {
						t.Errorf("resolve %d: ok=%v msg=%v", key, ok, msg)
						return
					}
					if info.Line == 0 {
						t.Errorf("resolve %d: empty info", key)
						return
					}
				}
				cache.ReadStack(nil)
			}
		}()
	}
	wg.Wait()
}

func TestResolveUnknownKey(t *testing.T) {
	cache := NewCallStackCache(newStackSource())
	if _, ok, msg := cache.ResolveCallFrameKey(99); ok || msg != nil {
		t.Errorf("unknown key: ok=%v msg=%v", ok, msg)
	}
}

func TestMethodUnloadInvalidatesOnlyThatMethod(t *testing.T) {
	source := newStackSource()
	cache := NewCallStackCache(source)
	keys, _ := cache.ReadStack(nil)
	for _, key := range keys {
		cache.ResolveCallFrameKey(key)
	}

	cache.OnCompiledMethodUnload(10)

	// Keys of the unloaded method are gone.
	if _, ok, _ := cache.ResolveCallFrameKey(keys[0]); ok {
		t.Error("unloaded method's frame still resolvable")
	}
	if _, ok, _ := cache.ResolveCallFrameKey(keys[1]); ok {
		t.Error("unloaded method's frame still resolvable")
	}
	// The other method's entry survives, still served from cache.
	calls := source.resolveCalls
	info, ok, msg := cache.ResolveCallFrameKey(keys[2])
	if msg != nil || !ok {
		t.Fatalf("surviving frame: ok=%v msg=%v", ok, msg)
	}
	if info.Method != "outer" {
		t.Errorf("info = %+v", info)
	}
	if source.resolveCalls != calls {
		t.Error("surviving frame re-resolved")
	}

	// A fresh read re-issues keys for the unloaded method's frames.
	fresh, _ := cache.ReadStack(nil)
	if fresh[0] == keys[0] {
		t.Error("invalidated key reused for a fresh frame")
	}
	if fresh[2] != keys[2] {
		t.Error("surviving key changed")
	}
}
