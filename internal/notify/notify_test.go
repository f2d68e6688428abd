package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garnizeh/cleardeal/internal/models"
	"github.com/garnizeh/cleardeal/internal/notify"
)

const (
	client     = "0x1111111111111111111111111111111111111111"
	freelancer = "0x2222222222222222222222222222222222222222"
)

func TestBroker_FanOutAndDrop(t *testing.T) {
	b := notify.NewBroker(nil)
	fast, cancelFast := b.Subscribe(4)
	defer cancelFast()
	slow, cancelSlow := b.Subscribe(1)

	b.Publish(notify.Event{Kind: notify.KindApplied, JobID: 1})
	b.Publish(notify.Event{Kind: notify.KindSelected, JobID: 1})

	if got := (<-fast).Kind; got != notify.KindApplied {
		t.Fatalf("fast subscriber first event = %s", got)
	}
	if got := (<-fast).Kind; got != notify.KindSelected {
		t.Fatalf("fast subscriber second event = %s", got)
	}
	if got := (<-slow).Kind; got != notify.KindApplied {
		t.Fatalf("slow subscriber first event = %s", got)
	}
	select {
	case e := <-slow:
		t.Fatalf("slow subscriber should have dropped the second event, got %v", e)
	default:
	}

	cancelSlow()
	cancelSlow()
	if _, ok := <-slow; ok {
		t.Fatalf("expected channel closed after cancel")
	}
	if b.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", b.Subscribers())
	}

	b.Close()
	if _, ok := <-fast; ok {
		t.Fatalf("expected channel closed after broker Close")
	}
	late, _ := b.Subscribe(1)
	if _, ok := <-late; ok {
		t.Fatalf("subscription after Close must be closed")
	}
}

func TestEvent_Concerns(t *testing.T) {
	e := notify.Event{Kind: notify.KindApplied, Client: client, Freelancer: freelancer}
	if !e.Concerns(strings.ToUpper(client[:2]) + client[2:]) {
		t.Fatal("client should be concerned")
	}
	if e.Concerns("0x9999999999999999999999999999999999999999") {
		t.Fatal("stranger should not be concerned")
	}
	if !(notify.Event{Kind: notify.KindStoreChanged}).Concerns("anyone") {
		t.Fatal("store changes concern everyone")
	}
}

func TestRenderMessage(t *testing.T) {
	msg, err := notify.RenderMessage(notify.Event{Kind: notify.KindSelected, JobID: 9, Freelancer: freelancer})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg != freelancer+" was selected for job #9." {
		t.Fatalf("unexpected message %q", msg)
	}
	if msg, _ := notify.RenderMessage(notify.Event{Kind: "unknown"}); msg != "" {
		t.Fatalf("unknown kind should render empty, got %q", msg)
	}
}

type fakeQueue struct {
	mu    sync.Mutex
	types []string
	loads []any
	ctxs  []error
}

func (q *fakeQueue) Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.types = append(q.types, typ)
	q.loads = append(q.loads, payload)
	q.ctxs = append(q.ctxs, ctx.Err())
	return int64(len(q.types)), nil
}

func TestNotifier_PublishStampsAndEnqueues(t *testing.T) {
	b := notify.NewBroker(nil)
	defer b.Close()
	sub, cancel := b.Subscribe(4)
	defer cancel()

	q := &fakeQueue{}
	n := notify.NewNotifier(b, q, "https://hooks.example.com/cleardeal", nil)
	n.Publish(context.Background(), notify.Event{Kind: notify.KindWorkApproved, JobID: 3, Freelancer: freelancer})
	n.Publish(context.Background(), notify.Event{Kind: notify.KindStoreChanged})

	e := <-sub
	if e.ID == "" || e.At.IsZero() {
		t.Fatalf("expected id and timestamp stamped, got %#v", e)
	}
	if !strings.Contains(e.Message, "approved") {
		t.Fatalf("expected rendered message, got %q", e.Message)
	}
	if len(q.types) != 1 || q.types[0] != notify.WebhookJobType {
		t.Fatalf("expected exactly one webhook job, got %v", q.types)
	}
}

func TestNotifier_EnqueueOutlivesRequest(t *testing.T) {
	q := &fakeQueue{}
	n := notify.NewNotifier(nil, q, "https://hooks.example.com/cleardeal", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Publish(ctx, notify.Event{Kind: notify.KindWorkApproved, JobID: 3, Freelancer: freelancer})

	if len(q.types) != 1 {
		t.Fatalf("expected one webhook job, got %v", q.types)
	}
	if q.ctxs[0] != nil {
		t.Fatalf("enqueue saw an ended context: %v", q.ctxs[0])
	}
}

func TestNotifier_NoWebhookWithoutURL(t *testing.T) {
	q := &fakeQueue{}
	n := notify.NewNotifier(nil, q, "", nil)
	n.Publish(context.Background(), notify.Event{Kind: notify.KindApplied})
	if len(q.types) != 0 {
		t.Fatalf("expected no webhook jobs, got %v", q.types)
	}
}

func TestWebhookHandler(t *testing.T) {
	var status int32 = http.StatusNoContent
	var got notify.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer srv.Close()

	payload, _ := json.Marshal(map[string]any{
		"url":   srv.URL,
		"event": notify.Event{ID: "e-1", Kind: notify.KindApplied, JobID: 5},
	})
	h := notify.WebhookHandler(srv.Client())
	job := &models.BackgroundJob{Type: notify.WebhookJobType, Payload: payload}

	if err := h(context.Background(), job); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if got.ID != "e-1" || got.JobID != 5 {
		t.Fatalf("unexpected delivered event %#v", got)
	}

	atomic.StoreInt32(&status, http.StatusServiceUnavailable)
	if err := h(context.Background(), job); err == nil {
		t.Fatalf("expected error on non-2xx response")
	}

	if err := h(context.Background(), &models.BackgroundJob{Payload: []byte("{")}); err == nil {
		t.Fatalf("expected error on bad payload")
	}
}

type fakeSource struct{ v int64 }

func (s *fakeSource) DataVersion(ctx context.Context) (int64, error) {
	return atomic.LoadInt64(&s.v), nil
}

func TestWatcher_PublishesOnChange(t *testing.T) {
	b := notify.NewBroker(nil)
	defer b.Close()
	sub, cancelSub := b.Subscribe(4)
	defer cancelSub()

	src := &fakeSource{v: 1}
	w := notify.NewWatcher(src, notify.NewNotifier(b, nil, "", nil), 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case e := <-sub:
		t.Fatalf("no change yet, got %v", e)
	case <-time.After(50 * time.Millisecond):
	}

	atomic.StoreInt64(&src.v, 2)
	select {
	case e := <-sub:
		if e.Kind != notify.KindStoreChanged {
			t.Fatalf("unexpected kind %s", e.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected store.changed event")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}
