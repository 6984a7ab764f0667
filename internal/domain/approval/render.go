package approval

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultHeaderPreviewLen is the longest header value shown verbatim.
	DefaultHeaderPreviewLen = 80
	// DefaultBodyPreviewBytes caps the body bytes shown in a review.
	DefaultBodyPreviewBytes = 500

	rawPreviewChars = 80
	ellipsis        = "..."
)

// RenderOptions controls the review text.
type RenderOptions struct {
	HeaderPreviewLen int
	BodyPreviewBytes int
	Timeout          time.Duration
}

func (o RenderOptions) withDefaults() RenderOptions {
	if o.HeaderPreviewLen <= len(ellipsis) {
		o.HeaderPreviewLen = DefaultHeaderPreviewLen
	}
	if o.BodyPreviewBytes <= 0 {
		o.BodyPreviewBytes = DefaultBodyPreviewBytes
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Review is the human-readable rendering of a task, split so that a console
// can color each part.
type Review struct {
	Banner  string
	Details string
	Prompt  string
}

// String joins the parts.
func (r Review) String() string {
	return r.Banner + "\n" + r.Details + "\n" + r.Prompt
}

// Render builds the review text for task.
func Render(task *Task, opts RenderOptions) Review {
	opts = opts.withDefaults()
	d := task.Descriptor

	rule := strings.Repeat("=", 70)
	banner := fmt.Sprintf("%s\n  INTERCEPTED %s REQUEST - HUMAN APPROVAL REQUIRED\n%s", rule, d.Method, rule)

	var b strings.Builder
	fmt.Fprintf(&b, "  Task:    %s\n", task.ID)
	fmt.Fprintf(&b, "  Method:  %s\n", d.Method)
	fmt.Fprintf(&b, "  URL:     %s\n", d.URL)

	if len(d.Headers) > 0 {
		b.WriteString("  Headers:\n")
		names := make([]string, 0, len(d.Headers))
		for k := range d.Headers {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			fmt.Fprintf(&b, "    %s: %s\n", k, TruncateHeader(d.Headers[k], opts.HeaderPreviewLen))
		}
	}

	if len(d.Body) > 0 {
		b.WriteString("  Body:\n")
		for _, line := range strings.Split(BodyPreview(d.Body, opts.BodyPreviewBytes), "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}
	b.WriteString(rule)

	prompt := fmt.Sprintf("  Approve this request? [y/N] (auto-deny in %s): ", formatSeconds(opts.Timeout))

	return Review{Banner: banner, Details: b.String(), Prompt: prompt}
}

// TruncateHeader shortens values longer than limit bytes to at most
// limit-3 bytes plus "...". The cut never splits a UTF-8 sequence.
func TruncateHeader(v string, limit int) string {
	if len(v) <= limit {
		return v
	}
	cut := max(limit-len(ellipsis), 0)
	for cut > 0 && !utf8.RuneStart(v[cut]) {
		cut--
	}
	return v[:cut] + ellipsis
}

// BodyPreview renders up to limit bytes of body as UTF-8 text. When more
// bytes remain, a "... [N more bytes]" line follows. Bodies that are not
// valid UTF-8 are shown as the start of their base64 encoding instead.
func BodyPreview(body []byte, limit int) string {
	if !utf8.Valid(body) {
		enc := base64.StdEncoding.EncodeToString(body)
		if len(enc) > rawPreviewChars {
			enc = enc[:rawPreviewChars]
		}
		return "<base64: " + enc + "...>"
	}

	if len(body) <= limit {
		return string(body)
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return fmt.Sprintf("%s\n  ... [%d more bytes]", body[:cut], len(body)-cut)
}

func formatSeconds(d time.Duration) string {
	secs := d.Seconds()
	if secs == float64(int64(secs)) {
		return fmt.Sprintf("%ds", int64(secs))
	}
	return fmt.Sprintf("%.1fs", secs)
}
