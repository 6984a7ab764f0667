package approval

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/envelope"
)

func TestRender_SortedTruncatedHeaders(t *testing.T) {
	long := strings.Repeat("x", 100)
	task := NewTask(envelope.NewDescriptor("POST", "https://api.example.com/send",
		map[string]string{"Zeta": "last", "Alpha": long}, nil), "")

	review := Render(task, RenderOptions{Timeout: 30 * time.Second})
	text := review.String()

	if !strings.Contains(review.Banner, "INTERCEPTED POST REQUEST") {
		t.Errorf("banner = %q", review.Banner)
	}
	alpha := strings.Index(text, "Alpha:")
	zeta := strings.Index(text, "Zeta:")
	if alpha < 0 || zeta < 0 || alpha > zeta {
		t.Errorf("headers not sorted:\n%s", text)
	}
	if !strings.Contains(text, "Alpha: "+strings.Repeat("x", 77)+"...\n") {
		t.Errorf("long header not truncated:\n%s", text)
	}
	if !strings.Contains(review.Prompt, "[y/N] (auto-deny in 30s)") {
		t.Errorf("prompt = %q", review.Prompt)
	}
	if strings.Contains(text, "Body:") {
		t.Error("empty body should not be shown")
	}
}

func TestTruncateHeader_Boundary(t *testing.T) {
	exact := strings.Repeat("a", 80)
	if got := TruncateHeader(exact, 80); got != exact {
		t.Errorf("80-byte value changed: %q", got)
	}
	if got := TruncateHeader(exact+"b", 80); len(got) != 80 || !strings.HasSuffix(got, "...") {
		t.Errorf("81-byte value = %q", got)
	}
}

func TestTruncateHeader_MultiByte(t *testing.T) {
	// 60 two-byte runes; byte 77 falls inside a rune.
	v := strings.Repeat("é", 60)
	got := TruncateHeader(v, 80)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated value is not valid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "...") || len(got) > 80 {
		t.Errorf("got %q (%d bytes)", got, len(got))
	}
	if want := strings.Repeat("é", 38) + "..."; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if got := TruncateHeader("日本語テキスト", 4); got != "..." {
		t.Errorf("tiny limit = %q", got)
	}
}

func TestBodyPreview(t *testing.T) {
	tests := []struct {
		name  string
		body  []byte
		limit int
		want  string
	}{
		{"short text", []byte("hello"), 500, "hello"},
		{"capped", []byte("abcdefghij"), 4, "abcd\n  ... [6 more bytes]"},
		// "é" is two bytes; the cut backs off to the rune boundary.
		{"rune boundary", []byte("aé"), 2, "a\n  ... [2 more bytes]"},
		{"binary", []byte{0xff, 0xfe, 0x00}, 500, "<base64: //4A...>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BodyPreview(tt.body, tt.limit); got != tt.want {
				t.Errorf("BodyPreview = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_FractionalTimeout(t *testing.T) {
	review := Render(heldTask(), RenderOptions{Timeout: 1500 * time.Millisecond})
	if !strings.Contains(review.Prompt, "auto-deny in 1.5s") {
		t.Errorf("prompt = %q", review.Prompt)
	}
}
