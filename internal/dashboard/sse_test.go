package dashboard

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHub_PublishDelivers(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	hub.PublishProgress("job-abc", 40, "cloning repository")

	select {
	case ev := <-ch:
		if ev.Type != "progress" {
			t.Errorf("Type = %q, want %q", ev.Type, "progress")
		}
		if ev.JobID != "job-abc" || ev.Progress != 40 || ev.Message != "cloning repository" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()

	hub.Unsubscribe(ch)
	hub.Unsubscribe(ch)

	// Publishing after unsubscribe must not reach the closed channel.
	hub.Publish(Event{Type: "progress"})
	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
}

func TestHub_DropsEventsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	// Nobody drains, so publishes past the buffer are dropped, not blocked.
	for i := 0; i < 40; i++ {
		hub.PublishProgress("job-abc", i, "")
	}
	if got := len(ch); got != cap(ch) {
		t.Errorf("buffered events = %d, want %d", got, cap(ch))
	}
}

func TestSSEStream(t *testing.T) {
	db := openTestDB(t)
	hub := NewHub()
	router, err := newRouter(&StartOpts{DB: db, Hub: hub})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/event-stream")
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	waitLine := func(want string) string {
		t.Helper()
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream ended waiting for %q", want)
				}
				if strings.Contains(line, want) {
					return line
				}
			case <-ctx.Done():
				t.Fatalf("timed out waiting for %q", want)
			}
		}
	}

	// The handler subscribes before announcing, so anything published after
	// the connected event must arrive.
	waitLine("event: connected")
	hub.PublishProgress("job-123", 40, "installing dependencies")

	waitLine("event: progress")
	data := waitLine("job-123")
	if !strings.Contains(data, `"progress":40`) {
		t.Errorf("data line = %q, want progress 40", data)
	}
	if !strings.Contains(data, "installing dependencies") {
		t.Errorf("data line = %q, want the progress message", data)
	}
}
