// Package policy classifies intercepted requests against static deny and
// allow rules. Denylist matches always win, allowlist matches come next, and
// anything unmatched is held for human approval.
package policy

// Kind is the outcome category of a classification.
type Kind string

const (
	// KindDeny rejects the request without contacting the upstream.
	KindDeny Kind = "deny"
	// KindAllow forwards the request immediately.
	KindAllow Kind = "allow"
	// KindHold queues the request for human approval.
	KindHold Kind = "hold"
)

// String returns the string form of the Kind.
func (k Kind) String() string {
	return string(k)
}

// Verdict is the result of classifying one request. Reason is set for
// Deny and Allow and empty for Hold.
type Verdict struct {
	Kind   Kind
	Reason string
}

// Deny returns a deny verdict with the given reason.
func Deny(reason string) Verdict { return Verdict{Kind: KindDeny, Reason: reason} }

// Allow returns an allow verdict with the given reason.
func Allow(reason string) Verdict { return Verdict{Kind: KindAllow, Reason: reason} }

// Hold returns a hold verdict.
func Hold() Verdict { return Verdict{Kind: KindHold} }

// QueryParam is one key=value pair on the query-parameter denylist.
type QueryParam struct {
	Key   string
	Value string
}

// String formats the pair as key=value.
func (p QueryParam) String() string {
	return p.Key + "=" + p.Value
}
