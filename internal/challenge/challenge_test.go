package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/playperu/mergeclash/internal/mergeclash"
)

func batch(prefix string, valid, invalid int) []mergeclash.Ticket {
	var out []mergeclash.Ticket
	for i := range valid + invalid {
		t := mergeclash.Ticket{
			ID:            fmt.Sprintf("%s-%d", prefix, i),
			Type:          mergeclash.TicketFillInBlank,
			Difficulty:    mergeclash.DifficultyMedium,
			Title:         "t",
			CodeSnippet:   "x",
			CorrectAnswer: mergeclash.Answer{"y"},
		}
		if i >= valid {
			t.CodeSnippet = ""
		}
		out = append(out, t)
	}
	return out
}

type fakeSource struct {
	mu      sync.Mutex
	calls   int
	tickets []mergeclash.Ticket
	err     error
	entered chan struct{}
	release chan struct{}
}

func (s *fakeSource) Generate(context.Context, mergeclash.Topic, int) ([]mergeclash.Ticket, error) {
	s.mu.Lock()
	s.calls++
	tickets, err := s.tickets, s.err
	entered, release := s.entered, s.release
	s.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	return clone(tickets), err
}

func (s *fakeSource) set(tickets []mergeclash.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets = tickets
}

func (s *fakeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func allPrefixed(tickets []mergeclash.Ticket, prefix string) bool {
	for _, t := range tickets {
		if !strings.HasPrefix(t.ID, prefix) {
			return false
		}
	}
	return len(tickets) > 0
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name           string
		valid, invalid int
		want           int
		wantErr        bool
	}{
		{"all valid", 10, 0, 10, false},
		{"exactly seventy percent", 7, 3, 7, false},
		{"below threshold", 6, 4, 0, true},
		{"extra trimmed", 15, 0, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Accept(batch("g", tt.valid, tt.invalid), 10)
			if tt.wantErr {
				if !errors.Is(err, ErrLowQuality) {
					t.Errorf("err = %v, want ErrLowQuality", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("kept %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestPresets(t *testing.T) {
	ctx := context.Background()
	for _, topic := range []mergeclash.Topic{mergeclash.TopicPHP, mergeclash.TopicFrontend, mergeclash.TopicMix} {
		tickets, err := Presets{}.Generate(ctx, topic, 0)
		if err != nil {
			t.Fatalf("%s: %v", topic, err)
		}
		for _, tk := range tickets {
			if err := tk.Validate(); err != nil {
				t.Errorf("%s: %v", topic, err)
			}
			if !tk.Check(tk.CorrectAnswer) {
				t.Errorf("%s: %s rejects its own answer", topic, tk.ID)
			}
		}
		if len(mergeclash.HardTickets(tickets)) == 0 {
			t.Errorf("%s has no hard tickets", topic)
		}
	}

	mix, _ := Presets{}.Generate(ctx, mergeclash.TopicMix, 0)
	if len(mix) != len(phpBank)+len(frontendBank) {
		t.Errorf("mix has %d tickets", len(mix))
	}
	some, _ := Presets{}.Generate(ctx, mergeclash.TopicPHP, 3)
	if len(some) != 3 {
		t.Errorf("count 3 returned %d", len(some))
	}
	if _, err := (Presets{}).Generate(ctx, "cobol", 1); !errors.Is(err, ErrUnknownTopic) {
		t.Errorf("err = %v, want ErrUnknownTopic", err)
	}
}

func TestCacheMissServesPresets(t *testing.T) {
	src := &fakeSource{tickets: batch("gen", 10, 0)}
	c := NewCache(src, WithBatch(10))
	ctx := context.Background()

	first, err := c.Tickets(ctx, mergeclash.TopicPHP, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 5 || !allPrefixed(first, "php-") {
		t.Errorf("miss served %v, want 5 presets", first)
	}

	c.Wait()
	second, err := c.Tickets(ctx, mergeclash.TopicPHP, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 5 || !allPrefixed(second, "gen-") {
		t.Errorf("hit served %v, want generated tickets", second)
	}
	if n := src.Calls(); n != 1 {
		t.Errorf("source called %d times, want 1", n)
	}
}

func TestCacheStaleHitRefreshesInBackground(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &fakeSource{tickets: batch("v1", 10, 0)}
	c := NewCache(src, WithBatch(10), WithClock(clock), WithTTL(time.Minute))
	ctx := context.Background()

	if _, err := c.Refresh(ctx, mergeclash.TopicFrontend); err != nil {
		t.Fatal(err)
	}
	src.set(batch("v2", 10, 0))

	fresh, _ := c.Tickets(ctx, mergeclash.TopicFrontend, 10)
	c.Wait()
	if !allPrefixed(fresh, "v1-") || src.Calls() != 1 {
		t.Fatalf("fresh hit served %v after %d calls", fresh, src.Calls())
	}

	clock.Advance(2 * time.Minute)
	stale, _ := c.Tickets(ctx, mergeclash.TopicFrontend, 10)
	if !allPrefixed(stale, "v1-") {
		t.Errorf("stale hit served %v, want the cached batch", stale)
	}
	c.Wait()
	if got, _ := c.Tickets(ctx, mergeclash.TopicFrontend, 10); !allPrefixed(got, "v2-") {
		t.Errorf("after refresh served %v, want v2", got)
	}
}

func TestCacheRejectsLowQualityBatch(t *testing.T) {
	src := &fakeSource{tickets: batch("gen", 6, 4)}
	c := NewCache(src, WithBatch(10))

	got, err := c.Refresh(context.Background(), mergeclash.TopicPHP)
	if err != nil {
		t.Fatal(err)
	}
	if !allPrefixed(got, "php-") {
		t.Errorf("cached %v, want presets", got)
	}

	src.err = errors.New("rate limited")
	src.tickets = nil
	if got, err := c.Refresh(context.Background(), mergeclash.TopicPHP); err != nil || !allPrefixed(got, "php-") {
		t.Errorf("failed source: got %v, err %v", got, err)
	}
}

func TestCacheRefreshCollapses(t *testing.T) {
	src := &fakeSource{
		tickets: batch("gen", 10, 0),
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	c := NewCache(src, WithBatch(10))

	var wg sync.WaitGroup
	var ok atomic.Int32
	refresh := func() {
		defer wg.Done()
		if got, err := c.Refresh(context.Background(), mergeclash.TopicMix); err == nil && len(got) == 10 {
			ok.Add(1)
		}
	}
	wg.Add(1)
	go refresh()
	<-src.entered

	for range 4 {
		wg.Add(1)
		go refresh()
	}
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()

	if n := src.Calls(); n != 1 {
		t.Errorf("source called %d times, want 1", n)
	}
	if ok.Load() != 5 {
		t.Errorf("%d of 5 callers got the batch", ok.Load())
	}
}

func TestCacheUnknownTopic(t *testing.T) {
	c := NewCache(nil)
	if _, err := c.Tickets(context.Background(), "cobol", 5); !errors.Is(err, ErrUnknownTopic) {
		t.Errorf("err = %v, want ErrUnknownTopic", err)
	}
}

func TestRemoteRetriesUntilSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Topic != mergeclash.TopicPHP || req.Count != 4 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(batch("ai", 4, 0))
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, WithRetries(2), WithRetryWait(time.Millisecond, 5*time.Millisecond))
	got, err := r.Generate(context.Background(), mergeclash.TopicPHP, 4)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(got) != 4 || got[0].Topic != mergeclash.TopicPHP {
		t.Errorf("got %+v", got)
	}
	if hits.Load() != 2 {
		t.Errorf("server hit %d times, want 2", hits.Load())
	}
}

func TestRemoteClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad topic", http.StatusBadRequest)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, WithRetries(0))
	if _, err := r.Generate(context.Background(), mergeclash.TopicPHP, 4); err == nil || !strings.Contains(err.Error(), "bad topic") {
		t.Errorf("err = %v, want the service message", err)
	}
}
