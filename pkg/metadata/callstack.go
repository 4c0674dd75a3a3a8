package metadata

import (
	"sync"

	"github.com/chazu/loupe/pkg/eval"
	"github.com/chazu/loupe/pkg/jvm"
)

// MethodID identifies a compiled method for the lifetime of its class, the
// way JVMTI's jmethodID does. Unload notifications carry the same identity.
type MethodID uint64

// RawFrame is one unresolved stack frame: a method plus a bytecode offset.
type RawFrame struct {
	Method   MethodID
	Location int64
}

// FrameInfo is the resolved symbolic location of one frame.
type FrameInfo struct {
	Class  jvm.Signature
	Method string
	File   string
	Line   int
}

// StackSource reads raw stacks and resolves frames. Production backs this
// with JVMTI stack walking and line-number tables.
type StackSource interface {
	// Walk returns thread's frames, innermost first.
	Walk(thread jvm.ObjectRef) ([]RawFrame, *eval.Message)

	// Resolve maps one (method, offset) pair to its symbolic location.
	Resolve(method MethodID, location int64) (FrameInfo, *eval.Message)
}

type frameIdentity struct {
	method   MethodID
	location int64
}

type frameRecord struct {
	identity frameIdentity
	resolved bool
	info     FrameInfo
}

// CallStackCache assigns stable integer keys to distinct (method, offset)
// pairs and caches their resolution. Each pair resolves through the source
// at most once; a method-unload notification invalidates only that method's
// entries.
type CallStackCache struct {
	source StackSource

	mu       sync.RWMutex
	keys     map[frameIdentity]int
	records  map[int]*frameRecord
	byMethod map[MethodID][]int
	nextKey  int
}

// NewCallStackCache creates an empty cache over the given source.
func NewCallStackCache(source StackSource) *CallStackCache {
	return &CallStackCache{
		source:   source,
		keys:     map[frameIdentity]int{},
		records:  map[int]*frameRecord{},
		byMethod: map[MethodID][]int{},
		nextKey:  1,
	}
}

// ReadStack walks thread's stack and returns one resolvable key per frame,
// innermost first. Keys are stable: the same (method, offset) pair yields
// the same key across reads until the method unloads.
func (c *CallStackCache) ReadStack(thread jvm.ObjectRef) ([]int, *eval.Message) {
	frames, msg := c.source.Walk(thread)
	if msg != nil {
		return nil, msg
	}

	out := make([]int, 0, len(frames))
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, frame := range frames {
		id := frameIdentity{method: frame.Method, location: frame.Location}
		key, ok := c.keys[id]
		if !ok {
			key = c.nextKey
			c.nextKey++
			c.keys[id] = key
			c.records[key] = &frameRecord{identity: id}
			c.byMethod[frame.Method] = append(c.byMethod[frame.Method], key)
		}
		out = append(out, key)
	}
	return out, nil
}

// ResolveCallFrameKey resolves a key issued by ReadStack. The first
// resolution of a key goes through the source; later calls are served from
// the cache. ok is false for unknown or invalidated keys.
func (c *CallStackCache) ResolveCallFrameKey(key int) (FrameInfo, bool, *eval.Message) {
	c.mu.RLock()
	record, ok := c.records[key]
	if !ok {
		c.mu.RUnlock()
		return FrameInfo{}, false, nil
	}
	if record.resolved {
		info := record.info
		c.mu.RUnlock()
		return info, true, nil
	}
	identity := record.identity
	c.mu.RUnlock()

	// Concurrent first resolutions of the same key may both reach the source;
	// both write the same info, so whichever lands is kept.
	info, msg := c.source.Resolve(identity.method, identity.location)
	if msg != nil {
		return FrameInfo{}, false, msg
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// The record may have been invalidated while resolving.
	if current, ok := c.records[key]; ok {
		current.info = info
		current.resolved = true
	}
	return info, true, nil
}

// OnCompiledMethodUnload drops every cached entry of the unloaded method.
// Entries and keys of other methods stay valid.
func (c *CallStackCache) OnCompiledMethodUnload(method MethodID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.byMethod[method] {
		if record, ok := c.records[key]; ok {
			delete(c.keys, record.identity)
			delete(c.records, key)
		}
	}
	delete(c.byMethod, method)
}
