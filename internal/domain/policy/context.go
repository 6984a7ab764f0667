package policy

import (
	"net/url"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/envelope"
)

// Target is the parsed form of a request URL used during matching.
type Target struct {
	// Path is the escaped URL path. Empty when the URL did not parse.
	Path string
	// Query maps each parameter to its first non-blank value.
	Query map[string]string
}

// ParseTarget extracts the path and query of rawURL. An unparseable URL
// yields an empty Target so that no path or query rule can match it.
func ParseTarget(rawURL string) Target {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Target{Query: map[string]string{}}
	}
	return Target{
		Path:  u.EscapedPath(),
		Query: firstValues(u.RawQuery),
	}
}

// firstValues parses a raw query string, keeping the first non-blank value
// for each key. Malformed pairs are skipped, keeping the rest.
func firstValues(rawQuery string) map[string]string {
	out := make(map[string]string)
	// ParseQuery returns whatever it managed to parse alongside the error.
	values, _ := url.ParseQuery(rawQuery)
	for k, vals := range values {
		for _, v := range vals {
			if v != "" {
				out[k] = v
				break
			}
		}
	}
	return out
}

// Condition is an optional expression-based rule evaluated after the static
// rules of its list. Evaluation failures must report false.
type Condition interface {
	// Name identifies the condition in verdict reasons.
	Name() string
	// Matches reports whether the request satisfies the condition.
	Matches(d envelope.Descriptor, t Target) bool
}
