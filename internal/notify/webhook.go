package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// eventPayload is the JSON body POSTed to webhook subscribers.
type eventPayload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      Event  `json:"data"`
}

// WebhookSink delivers market events to per-participant callback URLs.
// A destination that fails delivery is dropped quietly, mirroring the
// subscription semantics of a feed nobody is listening to anymore.
type WebhookSink struct {
	client *http.Client

	mu       sync.Mutex
	urls     map[string]string // participant → URL
	onChange func(map[string]string)
}

// NewWebhookSink creates a webhook dispatcher with the given delivery
// timeout per destination.
func NewWebhookSink(timeout time.Duration) *WebhookSink {
	return &WebhookSink{
		client: &http.Client{Timeout: timeout},
		urls:   make(map[string]string),
	}
}

// ValidateURL checks a subscription callback URL: absolute, https, bounded
// length.
func ValidateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	if len(raw) > 2048 {
		return fmt.Errorf("url must be at most 2048 characters")
	}
	parsed, err := url.ParseRequestURI(raw)
	if err != nil || !parsed.IsAbs() {
		return fmt.Errorf("url must be a valid absolute URL")
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("url must use https scheme")
	}
	return nil
}

// Load replaces the subscriber set, typically from a restored snapshot.
func (s *WebhookSink) Load(urls map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = make(map[string]string, len(urls))
	for p, u := range urls {
		s.urls[p] = u
	}
}

// OnChange registers a callback invoked with the new subscriber snapshot
// whenever a destination is dropped after delivery failure.
func (s *WebhookSink) OnChange(fn func(map[string]string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Subscribe registers or replaces a participant's callback URL.
func (s *WebhookSink) Subscribe(participant, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls[participant] = url
}

// Unsubscribe removes a participant's callback URL, reporting whether a
// subscription existed.
func (s *WebhookSink) Unsubscribe(participant string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.urls[participant]
	delete(s.urls, participant)
	return ok
}

// Snapshot returns a copy of the subscriber set.
func (s *WebhookSink) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.urls))
	for p, u := range s.urls {
		out[p] = u
	}
	return out
}

// Announce delivers the event to every subscriber asynchronously. Failed
// destinations are removed; nothing propagates to the caller.
func (s *WebhookSink) Announce(ev Event) {
	targets := s.Snapshot()
	if len(targets) == 0 {
		return
	}

	body, err := json.Marshal(eventPayload{
		Event:     "market.shock",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      ev,
	})
	if err != nil {
		return
	}

	go s.deliver(targets, body)
}

func (s *WebhookSink) deliver(targets map[string]string, body []byte) {
	var failed []string
	for participant, dest := range targets {
		resp, err := s.client.Post(dest, "application/json", bytes.NewReader(body))
		if err != nil {
			slog.Warn("webhook delivery failed", "participant", participant, "err", err)
			failed = append(failed, participant)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			slog.Warn("webhook delivery rejected", "participant", participant, "status", resp.StatusCode)
			failed = append(failed, participant)
		}
	}
	if len(failed) == 0 {
		return
	}

	s.mu.Lock()
	for _, participant := range failed {
		delete(s.urls, participant)
	}
	onChange := s.onChange
	snapshot := make(map[string]string, len(s.urls))
	for p, u := range s.urls {
		snapshot[p] = u
	}
	s.mu.Unlock()

	if onChange != nil {
		onChange(snapshot)
	}
}
