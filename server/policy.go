package server

import (
	"strings"

	"github.com/chazu/loupe/pkg/eval"
	"github.com/chazu/loupe/pkg/jvm"
	"github.com/chazu/loupe/pkg/metadata"
)

// Policy carries the configured safety rules into the two seams the engine
// exposes: member visibility when class metadata is built, and the
// method-call filter consulted during overload resolution.
type Policy struct {
	// BlockedMethods are method names excluded from overload resolution.
	BlockedMethods []string

	// HiddenFieldPrefixes hide matching fields from class metadata.
	HiddenFieldPrefixes []string

	// DisableMethodCalls blocks debuggee method invocation entirely;
	// expressions containing calls then fail to compile.
	DisableMethodCalls bool
}

// AllowCall reports whether the policy permits calling m.
func (p *Policy) AllowCall(m jvm.Method) bool {
	if p.DisableMethodCalls {
		return false
	}
	for _, name := range p.BlockedMethods {
		if name == m.Name {
			return false
		}
	}
	return true
}

// IsFieldVisible hides fields whose name carries a hidden prefix.
func (p *Policy) IsFieldVisible(class jvm.Signature, f metadata.Field) bool {
	for _, prefix := range p.HiddenFieldPrefixes {
		if strings.HasPrefix(f.Name, prefix) {
			return false
		}
	}
	return true
}

// IsMethodVisible keeps blocked methods listed in metadata; only calling
// them is restricted.
func (p *Policy) IsMethodVisible(jvm.Method) bool { return true }

// guardedFactory layers the policy's method filter over the bridge's own
// answer.
type guardedFactory struct {
	eval.ReadersFactory
	policy *Policy
}

func (g *guardedFactory) IsMethodCallAllowed(m jvm.Method) bool {
	return g.policy.AllowCall(m) && g.ReadersFactory.IsMethodCallAllowed(m)
}
