package token

import (
	"github.com/zvault/zvault/internal/apperr"
)

// Rule grants or denies a set of capabilities over paths matching Path.
type Rule struct {
	Path         string       `json:"path"`
	Capabilities []Capability `json:"capabilities"`
}

// Policy is a named set of rules. A token's effective permissions are the
// union of every policy attached to it.
type Policy struct {
	Name  string `json:"name"`
	Rules []Rule `json:"rules"`
}

func (r Rule) grants(cap Capability) bool {
	for _, c := range r.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Evaluate implements the deny-override access check: gather every rule
// from every named policy that matches (path, capability); any matching
// deny rejects outright; otherwise any matching grant (the capability
// itself, or sudo) accepts; absent either, the default is reject.
func Evaluate(policies []Policy, path string, capability Capability) error {
	matched := false
	for _, p := range policies {
		for _, r := range p.Rules {
			if !MatchPath(r.Path, path) {
				continue
			}
			if r.grants(CapabilityDeny) {
				return apperr.New(apperr.KindForbidden, "policy denies %s on %s", capability, path)
			}
			if r.grants(capability) || r.grants(CapabilitySudo) {
				matched = true
			}
		}
	}
	if !matched {
		return apperr.New(apperr.KindForbidden, "no policy grants %s on %s", capability, path)
	}
	return nil
}

// RootPolicy grants sudo over every path; it is the policy attached to
// the singleton root token.
func RootPolicy() Policy {
	return Policy{
		Name: RootPolicyName,
		Rules: []Rule{
			{Path: "**", Capabilities: []Capability{CapabilitySudo}},
		},
	}
}

// DefaultPolicy grants read and list over every path. It applies to a
// token only when the token's policy list names it; Store.Create does not
// attach it automatically.
func DefaultPolicy() Policy {
	return Policy{
		Name: DefaultPolicyName,
		Rules: []Rule{
			{Path: "**", Capabilities: []Capability{CapabilityRead, CapabilityList}},
		},
	}
}

// IsBuiltin reports whether name is one of the policies that cannot be
// updated or deleted.
func IsBuiltin(name string) bool {
	return name == RootPolicyName || name == DefaultPolicyName
}

// errBuiltinPolicy is returned by PolicyStore.Put/Delete for root/default.
func errBuiltinPolicy(name string) error {
	return apperr.New(apperr.KindInvalidArgument, "policy %q is built-in and cannot be modified", name)
}
