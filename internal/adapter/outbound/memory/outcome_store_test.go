package memory

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/audit"
)

func record(id, outcome string) audit.Record {
	return audit.Record{
		Timestamp: time.Now().UTC(),
		Stage:     audit.StageSync,
		RequestID: id,
		Method:    "GET",
		URL:       "https://api.example.com/drafts",
		Verdict:   "allow",
		Outcome:   outcome,
	}
}

func TestOutcomeStore_AppendWritesJSONLines(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	store := NewOutcomeStoreWithWriter(buf)

	if err := store.Append(context.Background(),
		record("req-1", audit.OutcomeForwarded),
		record("req-2", audit.OutcomeDenied),
	); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	scanner := bufio.NewScanner(buf)
	var got []audit.Record
	for scanner.Scan() {
		var r audit.Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		got = append(got, r)
	}
	if len(got) != 2 || got[0].RequestID != "req-1" || got[1].Outcome != audit.OutcomeDenied {
		t.Fatalf("decoded = %+v", got)
	}
}

func TestOutcomeStore_RecentNewestFirstAndBounded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewOutcomeStoreWithWriter(nil, 3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		_ = store.Append(ctx, record(id, audit.OutcomeForwarded))
	}

	got, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"e", "d", "c"} {
		if got[i].RequestID != want {
			t.Errorf("got[%d] = %s, want %s", i, got[i].RequestID, want)
		}
	}

	if got, _ := store.Recent(ctx, 1); len(got) != 1 || got[0].RequestID != "e" {
		t.Errorf("Recent(1) = %+v", got)
	}
}

func TestOutcomeStore_RecentEmpty(t *testing.T) {
	t.Parallel()

	got, err := NewOutcomeStoreWithWriter(nil).Recent(context.Background(), 5)
	if err != nil || got != nil {
		t.Fatalf("Recent = %v, %v", got, err)
	}
}

func TestOutcomeStore_ConcurrentAppend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewOutcomeStoreWithWriter(&bytes.Buffer{}, 500)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = store.Append(ctx, record("r", audit.OutcomeForwarded))
			}
		}()
	}
	wg.Wait()

	if got, _ := store.Recent(ctx, 0); len(got) != 200 {
		t.Fatalf("len = %d, want 200", len(got))
	}
}

func TestFileOutcomeStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "outcomes.jsonl")
	store, err := NewFileOutcomeStore(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := store.Append(ctx, record("req-9", audit.OutcomeTimedOut)); err != nil {
		t.Fatal(err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"request_id":"req-9"`)) {
		t.Fatalf("file contents = %s", data)
	}
}
