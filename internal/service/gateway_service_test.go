package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/approval"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/audit"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/envelope"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/policy"
)

type collected []audit.Record

func (c *collected) Record(r audit.Record) { *c = append(*c, r) }

func newTestGateway(fwd *fakeForwarder) (*GatewayService, *approval.Queue, *collected) {
	engine := policy.NewEngine(policy.NewRules(policy.DefaultRuleSpec()))
	queue := approval.NewQueue()
	rec := &collected{}
	return NewGatewayService(engine, fwd, queue, discardLogger(), WithOutcomeRecorder(rec)), queue, rec
}

func decodeStatus(t *testing.T, resp *envelope.Response) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		t.Fatalf("body is not JSON: %v (%s)", err, resp.Body)
	}
	return body
}

func TestGatewayService_Handle(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		url         string
		wantStatus  int
		wantForward int
		wantQueued  int
		wantOutcome string
		wantMessage string
	}{
		{
			name:        "delete denied",
			method:      "DELETE",
			url:         "https://api.example.com/v1/messages/1",
			wantStatus:  http.StatusForbidden,
			wantOutcome: audit.OutcomeDenied,
			wantMessage: "Forbidden: HTTP method 'DELETE' is on the denylist",
		},
		{
			name:        "deny overrides allow",
			method:      "GET",
			url:         "https://api.example.com/admin/users",
			wantStatus:  http.StatusForbidden,
			wantOutcome: audit.OutcomeDenied,
			wantMessage: "Forbidden: URL path contains denied fragment '/admin'",
		},
		{
			name:        "get forwarded",
			method:      "GET",
			url:         "https://api.example.com/v1/messages",
			wantStatus:  http.StatusOK,
			wantForward: 1,
			wantOutcome: audit.OutcomeForwarded,
		},
		{
			name:        "post to drafts forwarded",
			method:      "POST",
			url:         "https://api.example.com/v1/users/me/drafts",
			wantStatus:  http.StatusOK,
			wantForward: 1,
			wantOutcome: audit.OutcomeForwarded,
		},
		{
			name:        "patch held",
			method:      "PATCH",
			url:         "https://api.example.com/v1/settings",
			wantStatus:  http.StatusAccepted,
			wantQueued:  1,
			wantOutcome: audit.OutcomePendingApproval,
			wantMessage: "Request received and sent for human approval.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fwd := &fakeForwarder{}
			svc, queue, rec := newTestGateway(fwd)

			d := envelope.NewDescriptor(tt.method, tt.url, nil, nil)
			resp, err := svc.Handle(context.Background(), d, "req-1")
			if err != nil {
				t.Fatalf("Handle() error: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if fwd.count() != tt.wantForward {
				t.Errorf("forward calls = %d, want %d", fwd.count(), tt.wantForward)
			}
			if queue.Len() != tt.wantQueued {
				t.Errorf("queue depth = %d, want %d", queue.Len(), tt.wantQueued)
			}
			if tt.wantMessage != "" {
				if got := decodeStatus(t, resp)["message"]; got != tt.wantMessage {
					t.Errorf("message = %q, want %q", got, tt.wantMessage)
				}
			}
			if len(*rec) != 1 {
				t.Fatalf("recorded %d outcomes, want 1", len(*rec))
			}
			r := (*rec)[0]
			if r.Outcome != tt.wantOutcome || r.Stage != audit.StageSync || r.RequestID != "req-1" {
				t.Errorf("record = %+v", r)
			}
		})
	}
}

func TestGatewayService_HeldTaskCarriesRequest(t *testing.T) {
	svc, queue, rec := newTestGateway(&fakeForwarder{})

	d := envelope.NewDescriptor("PUT", "https://api.example.com/v1/labels/7",
		map[string]string{"Content-Type": "application/json"}, []byte(`{"name":"x"}`))
	if _, err := svc.Handle(context.Background(), d, "req-7"); err != nil {
		t.Fatal(err)
	}

	task, err := queue.Dequeue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if task.Descriptor.Method != "PUT" || string(task.Descriptor.Body) != `{"name":"x"}` {
		t.Errorf("task descriptor = %+v", task.Descriptor)
	}
	if task.RequestID != "req-7" || (*rec)[0].TaskID != task.ID {
		t.Errorf("task %s / record %+v", task.RequestID, (*rec)[0])
	}
}

func TestGatewayService_ForwardFailure(t *testing.T) {
	fwd := &fakeForwarder{err: errUpstreamDown}
	svc, _, rec := newTestGateway(fwd)

	_, err := svc.Handle(context.Background(), envelope.NewDescriptor("GET", "https://api.example.com/x", nil, nil), "")
	if !errors.Is(err, errUpstreamDown) {
		t.Fatalf("err = %v, want upstream error", err)
	}
	if (*rec)[0].Outcome != audit.OutcomeForwardFailed {
		t.Errorf("outcome = %s", (*rec)[0].Outcome)
	}
}

func TestGatewayService_ClosedQueue(t *testing.T) {
	svc, queue, _ := newTestGateway(&fakeForwarder{})
	queue.Close()

	_, err := svc.Handle(context.Background(), envelope.NewDescriptor("PATCH", "https://api.example.com/x", nil, nil), "")
	if !errors.Is(err, approval.ErrQueueClosed) {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
}
