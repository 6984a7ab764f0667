package policy

import "testing"

func TestParseTarget_FirstNonBlankValue(t *testing.T) {
	tgt := ParseTarget("https://api.example.com/a/b%2Fc?force=&force=true&force=false&q=x")
	if tgt.Path != "/a/b%2Fc" {
		t.Errorf("Path = %q", tgt.Path)
	}
	if tgt.Query["force"] != "true" {
		t.Errorf("force = %q, want true", tgt.Query["force"])
	}
	if tgt.Query["q"] != "x" {
		t.Errorf("q = %q", tgt.Query["q"])
	}
}

func TestParseTarget_BlankOnlyKeyAbsent(t *testing.T) {
	tgt := ParseTarget("https://x/y?debug=")
	if _, ok := tgt.Query["debug"]; ok {
		t.Error("blank value should not be recorded")
	}
}

func TestParseTarget_Unparseable(t *testing.T) {
	tgt := ParseTarget("http://[::1/admin?force=true")
	if tgt.Path != "" || len(tgt.Query) != 0 {
		t.Errorf("unexpected target %+v", tgt)
	}
}

func TestMatchQueryParam_ExactKeyAndValue(t *testing.T) {
	denied := []QueryParam{{Key: "debug", Value: "true"}, {Key: "force", Value: "true"}}

	tests := []struct {
		query map[string]string
		want  bool
	}{
		{map[string]string{"force": "true"}, true},
		{map[string]string{"force": "TRUE"}, false},
		{map[string]string{"Force": "true"}, false},
		{map[string]string{"debug": "1"}, false},
		{map[string]string{}, false},
	}
	for _, tt := range tests {
		if _, got := MatchQueryParam(tt.query, denied); got != tt.want {
			t.Errorf("MatchQueryParam(%v) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestMatchPathFragment_FirstInOrder(t *testing.T) {
	frag, ok := MatchPathFragment("/users/me/drafts/1", []string{"/drafts/", "/drafts"})
	if !ok || frag != "/drafts/" {
		t.Errorf("got %q %v", frag, ok)
	}
	if _, ok := MatchPathFragment("/users", []string{""}); ok {
		t.Error("empty fragment must never match")
	}
}

func TestNewRules_NormalizesAndSpecRoundTrips(t *testing.T) {
	r := NewRules(RuleSpec{
		DenyMethods:     []string{" delete ", ""},
		DenyQueryParams: map[string]string{"z": "1", "a": "2"},
		AllowMethodPath: map[string][]string{"post": {"/drafts", ""}},
	})
	if !MatchMethod("DELETE", r.denyMethods) {
		t.Error("DELETE should be denied")
	}
	if r.denyQueryParams[0].Key != "a" {
		t.Errorf("query params not sorted: %v", r.denyQueryParams)
	}

	spec := r.Spec()
	if len(spec.DenyMethods) != 1 || spec.DenyMethods[0] != "DELETE" {
		t.Errorf("DenyMethods = %v", spec.DenyMethods)
	}
	if got := spec.AllowMethodPath["POST"]; len(got) != 1 || got[0] != "/drafts" {
		t.Errorf("AllowMethodPath = %v", spec.AllowMethodPath)
	}
}
