package policy

import (
	"sort"
	"strings"
)

// RuleSpec is the mutable input used to build Rules. Slices keep the order
// in which fragments are tested, which decides the reason reported when
// several fragments match.
type RuleSpec struct {
	DenyMethods       []string
	DenyPathFragments []string
	DenyQueryParams   map[string]string

	AllowMethods       []string
	AllowPathFragments []string
	// AllowMethodPath maps a method to path fragments allowed only for it.
	AllowMethodPath map[string][]string

	DenyConditions  []Condition
	AllowConditions []Condition
}

// DefaultRuleSpec returns the built-in rule set for a mail-style API:
// deletes and administrative or destructive paths are blocked, reads and
// draft handling pass, everything else waits for a human.
func DefaultRuleSpec() RuleSpec {
	return RuleSpec{
		DenyMethods:       []string{"DELETE"},
		DenyPathFragments: []string{"/admin", "/trash", "/permanently"},
		DenyQueryParams: map[string]string{
			"force": "true",
			"debug": "true",
		},
		AllowMethods:       []string{"GET"},
		AllowPathFragments: []string{"/drafts/", "/drafts"},
		AllowMethodPath: map[string][]string{
			"POST": {"/drafts"},
		},
	}
}

// Rules is the immutable, normalized rule set read by the Engine. Build it
// with NewRules; it is safe for concurrent use.
type Rules struct {
	denyMethods       map[string]struct{}
	denyPathFragments []string
	denyQueryParams   []QueryParam

	allowMethods       map[string]struct{}
	allowPathFragments []string
	allowMethodPath    map[string][]string

	denyConditions  []Condition
	allowConditions []Condition
}

// NewRules normalizes spec: methods are upper-cased, empty fragments are
// dropped and query pairs are ordered by key.
func NewRules(spec RuleSpec) *Rules {
	r := &Rules{
		denyMethods:        methodSet(spec.DenyMethods),
		denyPathFragments:  fragments(spec.DenyPathFragments),
		allowMethods:       methodSet(spec.AllowMethods),
		allowPathFragments: fragments(spec.AllowPathFragments),
		allowMethodPath:    make(map[string][]string, len(spec.AllowMethodPath)),
		denyConditions:     append([]Condition(nil), spec.DenyConditions...),
		allowConditions:    append([]Condition(nil), spec.AllowConditions...),
	}

	keys := make([]string, 0, len(spec.DenyQueryParams))
	for k := range spec.DenyQueryParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.denyQueryParams = append(r.denyQueryParams, QueryParam{Key: k, Value: spec.DenyQueryParams[k]})
	}

	for m, frags := range spec.AllowMethodPath {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		r.allowMethodPath[m] = append(r.allowMethodPath[m], fragments(frags)...)
	}
	return r
}

// Spec returns a copy of the static rules in RuleSpec form, without
// conditions. Used for display.
func (r *Rules) Spec() RuleSpec {
	spec := RuleSpec{
		DenyMethods:        sortedKeys(r.denyMethods),
		DenyPathFragments:  append([]string(nil), r.denyPathFragments...),
		DenyQueryParams:    make(map[string]string, len(r.denyQueryParams)),
		AllowMethods:       sortedKeys(r.allowMethods),
		AllowPathFragments: append([]string(nil), r.allowPathFragments...),
		AllowMethodPath:    make(map[string][]string, len(r.allowMethodPath)),
	}
	for _, p := range r.denyQueryParams {
		spec.DenyQueryParams[p.Key] = p.Value
	}
	for m, frags := range r.allowMethodPath {
		spec.AllowMethodPath[m] = append([]string(nil), frags...)
	}
	return spec
}

// ConditionNames returns the names of the deny and allow conditions.
func (r *Rules) ConditionNames() (deny, allow []string) {
	for _, c := range r.denyConditions {
		deny = append(deny, c.Name())
	}
	for _, c := range r.allowConditions {
		allow = append(allow, c.Name())
	}
	return deny, allow
}

func methodSet(methods []string) map[string]struct{} {
	set := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m != "" {
			set[m] = struct{}{}
		}
	}
	return set
}

func fragments(in []string) []string {
	out := make([]string, 0, len(in))
	for _, f := range in {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
