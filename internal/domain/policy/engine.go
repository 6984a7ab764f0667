package policy

import (
	"fmt"
	"strings"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/envelope"
)

// Engine classifies request descriptors against a Rules set. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	rules *Rules
}

// NewEngine creates an Engine over rules. A nil rules value behaves as an
// empty rule set, holding every request.
func NewEngine(rules *Rules) *Engine {
	if rules == nil {
		rules = NewRules(RuleSpec{})
	}
	return &Engine{rules: rules}
}

// Rules returns the rule set the engine evaluates.
func (e *Engine) Rules() *Rules {
	return e.rules
}

// Classify returns exactly one verdict for d. The denylist is evaluated
// strictly before the allowlist; the first match wins.
func (e *Engine) Classify(d envelope.Descriptor) Verdict {
	target := ParseTarget(d.URL)
	if denied, reason := e.checkDenylist(d, target); denied {
		return Deny(reason)
	}
	if allowed, reason := e.checkAllowlist(d, target); allowed {
		return Allow(reason)
	}
	return Hold()
}

// CheckDenylist reports whether d matches any deny rule, with the reason.
func (e *Engine) CheckDenylist(d envelope.Descriptor) (bool, string) {
	return e.checkDenylist(d, ParseTarget(d.URL))
}

// CheckAllowlist reports whether d matches any allow rule, with the reason.
func (e *Engine) CheckAllowlist(d envelope.Descriptor) (bool, string) {
	return e.checkAllowlist(d, ParseTarget(d.URL))
}

func (e *Engine) checkDenylist(d envelope.Descriptor, t Target) (bool, string) {
	method := strings.ToUpper(d.Method)
	r := e.rules

	if MatchMethod(method, r.denyMethods) {
		return true, fmt.Sprintf("HTTP method '%s' is on the denylist", method)
	}
	if frag, ok := MatchPathFragment(t.Path, r.denyPathFragments); ok {
		return true, fmt.Sprintf("URL path contains denied fragment '%s'", frag)
	}
	if p, ok := MatchQueryParam(t.Query, r.denyQueryParams); ok {
		return true, fmt.Sprintf("Query parameter '%s' is on the denylist", p)
	}
	for _, c := range r.denyConditions {
		if c.Matches(d, t) {
			return true, fmt.Sprintf("Request matches deny condition '%s'", c.Name())
		}
	}
	return false, ""
}

func (e *Engine) checkAllowlist(d envelope.Descriptor, t Target) (bool, string) {
	method := strings.ToUpper(d.Method)
	r := e.rules

	if MatchMethod(method, r.allowMethods) {
		return true, fmt.Sprintf("HTTP method '%s' is on the allowlist (read-only)", method)
	}
	if frag, ok := MatchPathFragment(t.Path, r.allowPathFragments); ok {
		return true, fmt.Sprintf("URL path contains allowed fragment '%s'", frag)
	}
	if frags, ok := r.allowMethodPath[method]; ok {
		if frag, ok := MatchPathFragment(t.Path, frags); ok {
			return true, fmt.Sprintf("HTTP method '%s' with path fragment '%s' is on the allowlist", method, frag)
		}
	}
	for _, c := range r.allowConditions {
		if c.Matches(d, t) {
			return true, fmt.Sprintf("Request matches allow condition '%s'", c.Name())
		}
	}
	return false, ""
}
