// Package console implements an approval.Approver that prompts an operator
// on a terminal and reads y/N answers from standard input.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/approval"
)

// Source is the Decision.Source reported for console answers.
const Source = "console"

// Approver prompts on out and reads answers from in. A single goroutine owns
// the reader; answers typed while no prompt is open are discarded before the
// next prompt, so they are never attributed to a later task.
type Approver struct {
	out    io.Writer
	opts   approval.RenderOptions
	logger *slog.Logger

	lines chan string
	eof   chan struct{}
	done  chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	in        io.Reader
	wg        sync.WaitGroup

	outMu sync.Mutex

	// prompting is closed when the previous prompt goroutine has exited.
	promptMu  sync.Mutex
	prompting chan struct{}
}

// Option configures an Approver.
type Option func(*Approver)

// WithRenderOptions sets preview limits and the timeout shown in the prompt.
func WithRenderOptions(o approval.RenderOptions) Option {
	return func(a *Approver) {
		a.opts = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Approver) {
		a.logger = l
	}
}

// New creates a console Approver. The reader goroutine starts on the first
// prompt.
func New(in io.Reader, out io.Writer, opts ...Option) *Approver {
	a := &Approver{
		in:     in,
		out:    out,
		logger: slog.Default(),
		lines:  make(chan string),
		eof:    make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Approver) start() {
	a.startOnce.Do(func() {
		a.wg.Add(1)
		go a.readLoop()
	})
}

func (a *Approver) readLoop() {
	defer a.wg.Done()
	defer close(a.eof)

	scanner := bufio.NewScanner(a.in)
	for scanner.Scan() {
		select {
		case a.lines <- scanner.Text():
		case <-a.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		a.logger.Warn("console input failed", "error", err)
	}
}

// Close stops the reader goroutine. A goroutine blocked in Read exits when
// the input is closed or delivers a line.
func (a *Approver) Close() {
	a.closeOnce.Do(func() {
		close(a.done)
	})
}

// Wait blocks until the reader goroutine has exited.
func (a *Approver) Wait() {
	a.wg.Wait()
}

// RequestDecision prints the review for task and returns the operator's
// answer. Nothing is sent when ctx ends first or input reaches EOF.
func (a *Approver) RequestDecision(ctx context.Context, task *approval.Task) <-chan approval.Decision {
	a.start()
	a.waitPreviousPrompt()
	a.drainStale()

	ch := make(chan approval.Decision, 1)

	select {
	case <-a.eof:
		a.logger.Warn("console input closed, cannot prompt; request will time out", "task_id", task.ID)
		return ch
	default:
	}

	a.printReview(approval.Render(task, a.opts))

	finished := make(chan struct{})
	a.promptMu.Lock()
	a.prompting = finished
	a.promptMu.Unlock()

	go func() {
		defer close(finished)
		select {
		case <-ctx.Done():
			a.println(color.New(color.FgHiBlack), "\n  (review closed)")
		case line := <-a.lines:
			approved := IsApproval(line)
			if approved {
				a.println(color.New(color.FgGreen), "  Approved.")
			} else {
				a.println(color.New(color.FgRed), "  Denied.")
			}
			ch <- approval.Decision{Approved: approved, Source: Source}
		case <-a.eof:
			a.logger.Warn("console input closed while waiting for an answer", "task_id", task.ID)
		}
	}()
	return ch
}

// waitPreviousPrompt blocks until an earlier prompt has stopped reading, so
// it cannot consume an answer meant for the next task.
func (a *Approver) waitPreviousPrompt() {
	a.promptMu.Lock()
	prev := a.prompting
	a.promptMu.Unlock()
	if prev != nil {
		<-prev
	}
}

// drainStale discards lines typed while no prompt was open.
func (a *Approver) drainStale() {
	for {
		select {
		case line := <-a.lines:
			a.logger.Debug("discarding console input typed outside a prompt", "input", line)
		default:
			return
		}
	}
}

func (a *Approver) printReview(r approval.Review) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	_, _ = color.New(color.FgYellow, color.Bold).Fprintln(a.out, "\n"+r.Banner)
	_, _ = fmt.Fprint(a.out, r.Details)
	_, _ = color.New(color.FgCyan).Fprint(a.out, r.Prompt)
}

func (a *Approver) println(c *color.Color, s string) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	_, _ = c.Fprintln(a.out, s)
}

// IsApproval reports whether an answer approves: "y" or "yes", trimmed and
// case-insensitive.
func IsApproval(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

var _ approval.Approver = (*Approver)(nil)
