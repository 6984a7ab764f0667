package cel

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/envelope"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/policy"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	eval, err := NewEvaluator(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	return eval
}

func TestCondition_Matches(t *testing.T) {
	eval := newTestEvaluator(t)

	d := envelope.NewDescriptor("post", "https://api.example.com:8443/v1/users/me/messages/send?draft=1",
		map[string]string{"content-type": "application/json"},
		[]byte(`{"to":"ceo@example.com"}`))
	target := policy.ParseTarget(d.URL)

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"method", `method == "POST"`, true},
		{"host", `host == "api.example.com:8443"`, true},
		{"glob path", `glob("/v1/users/*/messages/send", path)`, true},
		{"query", `"draft" in query && query["draft"] == "1"`, true},
		{"canonical header key", `headers["Content-Type"] == "application/json"`, true},
		{"header func", `header(headers, "CONTENT-TYPE").startsWith("application/")`, true},
		{"missing header", `header(headers, "X-None") == ""`, true},
		{"body contains", `body.contains("ceo@")`, true},
		{"body size", `body_size > 1000`, false},
		{"url", `url.endsWith("draft=1")`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := eval.NewCondition(tt.name, tt.expr)
			if err != nil {
				t.Fatalf("NewCondition(%q): %v", tt.expr, err)
			}
			if got := c.Matches(d, target); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCondition_EvaluationErrorIsNoMatch(t *testing.T) {
	eval := newTestEvaluator(t)
	c, err := eval.NewCondition("missing-key", `query["absent"] == "x"`)
	if err != nil {
		t.Fatal(err)
	}
	d := envelope.NewDescriptor("GET", "https://x/y", nil, nil)
	if c.Matches(d, policy.ParseTarget(d.URL)) {
		t.Error("evaluation error should count as no match")
	}
}

func TestNewCondition_Rejects(t *testing.T) {
	eval := newTestEvaluator(t)

	tests := []struct {
		name    string
		expr    string
		wantErr string
	}{
		{"empty", "", "empty"},
		{"syntax", "method ==", "invalid CEL"},
		{"non-bool", `method + "x"`, "must return bool"},
		{"unknown variable", `tool_name == "x"`, "invalid CEL"},
		{"too long", strings.Repeat("a", maxExpressionLength+1), "too long"},
		{"too deep", strings.Repeat("(", maxNestingDepth+1) + "true" + strings.Repeat(")", maxNestingDepth+1), "too deep"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eval.NewCondition(tt.name, tt.expr)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestCondition_PluggedIntoEngine(t *testing.T) {
	eval := newTestEvaluator(t)
	big, err := eval.NewCondition("big-upload", `body_size > 4`)
	if err != nil {
		t.Fatal(err)
	}

	engine := policy.NewEngine(policy.NewRules(policy.RuleSpec{
		AllowMethods:   []string{"POST"},
		DenyConditions: []policy.Condition{big},
	}))

	v := engine.Classify(envelope.NewDescriptor("POST", "https://x/upload", nil, []byte("0123456789")))
	if v.Kind != policy.KindDeny || v.Reason != "Request matches deny condition 'big-upload'" {
		t.Fatalf("verdict = %+v", v)
	}
	if v := engine.Classify(envelope.NewDescriptor("POST", "https://x/upload", nil, []byte("ok"))); v.Kind != policy.KindAllow {
		t.Fatalf("small body verdict = %+v", v)
	}
}
