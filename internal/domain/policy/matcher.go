package policy

import "strings"

// MatchMethod reports whether method is in set. The comparison is
// case-insensitive; set keys are expected upper-case.
func MatchMethod(method string, set map[string]struct{}) bool {
	_, ok := set[strings.ToUpper(method)]
	return ok
}

// MatchPathFragment returns the first fragment, in order, that occurs as a
// substring of path.
func MatchPathFragment(path string, frags []string) (string, bool) {
	for _, f := range frags {
		if f != "" && strings.Contains(path, f) {
			return f, true
		}
	}
	return "", false
}

// MatchQueryParam returns the first denied pair whose key is present in
// query with exactly the denied value. Keys are case-sensitive.
func MatchQueryParam(query map[string]string, denied []QueryParam) (QueryParam, bool) {
	for _, p := range denied {
		if v, ok := query[p.Key]; ok && v == p.Value {
			return p, true
		}
	}
	return QueryParam{}, false
}
