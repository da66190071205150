package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type call struct {
	kind   string
	name   string
	value  float64
	labels Labels
}

type recordingBackend struct {
	mu    sync.Mutex
	calls []call
}

func (r *recordingBackend) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"counter", name, delta, labels})
}

func (r *recordingBackend) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"histogram", name, value, labels})
}

func (r *recordingBackend) Flush() error { return nil }

func (r *recordingBackend) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.name)
	}
	return out
}

// These tests mutate the package-level backend and therefore do not run in parallel.

func TestRecordHTTP_SuccessAndFailure(t *testing.T) {
	rb := &recordingBackend{}
	SetBackend(rb)
	t.Cleanup(func() { SetBackend(nil) })

	RecordHTTP("alumni", 200, nil, 10*time.Millisecond, 20*time.Millisecond, 512)
	got := rb.names()
	want := []string{HTTPRequestsTotal, HTTPRequestDurationSeconds, HTTPResponseDurationSecs, HTTPDownloadBytes}
	if len(got) != len(want) {
		t.Fatalf("calls=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call[%d]=%q, want %q", i, got[i], want[i])
		}
	}

	rb.calls = nil
	RecordHTTP("alumni", 0, errors.New("dial"), -1, -1, -1)
	got = rb.names()
	if len(got) != 2 || got[0] != HTTPRequestsTotal || got[1] != HTTPErrorsTotal {
		t.Fatalf("error attempt calls=%v", got)
	}
	if rb.calls[0].labels["status"] != "error" {
		t.Fatalf("status label=%q, want error", rb.calls[0].labels["status"])
	}
}

func TestRecordItems_IgnoresNonPositive(t *testing.T) {
	rb := &recordingBackend{}
	SetBackend(rb)
	t.Cleanup(func() { SetBackend(nil) })

	RecordItems("scraped", 0)
	RecordItems("scraped", 3)
	if len(rb.calls) != 1 || rb.calls[0].value != 3 || rb.calls[0].labels["kind"] != "scraped" {
		t.Fatalf("unexpected calls: %#v", rb.calls)
	}
}

func TestSetBackend_NilRestoresNop(t *testing.T) {
	SetBackend(nil)
	RecordStage("scrape", "succeeded", time.Second)
	if err := Flush(); err != nil {
		t.Fatalf("Flush() on nop backend: %v", err)
	}
}
