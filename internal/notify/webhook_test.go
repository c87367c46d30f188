package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/papertrade/market-sim/internal/model"
)

func testEvent() Event {
	return Event{
		Kind:     model.EffectInstrument,
		Target:   "ABC",
		Label:    "Earnings beat",
		Impact:   0.08,
		Duration: 6,
		Affected: []string{"ABC"},
	}
}

func TestValidateURL(t *testing.T) {
	cases := []struct {
		url string
		ok  bool
	}{
		{"https://example.com/hook", true},
		{"", false},
		{"http://example.com/hook", false},
		{"not a url", false},
		{"/relative/path", false},
		{"https://example.com/" + strings.Repeat("x", 2048), false},
	}
	for _, c := range cases {
		err := ValidateURL(c.url)
		if c.ok && err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", c.url, err)
		}
		if !c.ok && err == nil {
			t.Errorf("ValidateURL(%q) accepted", c.url)
		}
	}
}

func TestWebhookDelivery(t *testing.T) {
	received := make(chan eventPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var p eventPayload
		if err := json.Unmarshal(body, &p); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		received <- p
	}))
	defer srv.Close()

	sink := NewWebhookSink(2 * time.Second)
	sink.Subscribe("alice", srv.URL)

	sink.Announce(testEvent())

	select {
	case p := <-received:
		if p.Event != "market.shock" {
			t.Errorf("payload event %q", p.Event)
		}
		if p.Data.Target != "ABC" || p.Data.Label != "Earnings beat" {
			t.Errorf("payload data %+v", p.Data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("webhook never delivered")
	}

	if got := sink.Snapshot(); got["alice"] != srv.URL {
		t.Errorf("healthy destination dropped: %v", got)
	}
}

func TestWebhookDropsFailedDestination(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	sink := NewWebhookSink(2 * time.Second)
	sink.Subscribe("alice", good.URL)
	sink.Subscribe("bob", bad.URL)

	changed := make(chan map[string]string, 1)
	sink.OnChange(func(snapshot map[string]string) {
		changed <- snapshot
	})

	sink.Announce(testEvent())

	select {
	case snapshot := <-changed:
		if _, ok := snapshot["bob"]; ok {
			t.Error("failed destination still in snapshot")
		}
		if snapshot["alice"] != good.URL {
			t.Error("healthy destination dropped from snapshot")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("failed delivery never pruned the destination")
	}

	got := sink.Snapshot()
	if _, ok := got["bob"]; ok {
		t.Error("failed destination still subscribed")
	}
	if got["alice"] != good.URL {
		t.Error("healthy destination dropped")
	}
}

func TestWebhookSubscribeUnsubscribe(t *testing.T) {
	sink := NewWebhookSink(time.Second)

	sink.Subscribe("alice", "https://example.com/a")
	sink.Subscribe("alice", "https://example.com/b") // replace

	if got := sink.Snapshot(); got["alice"] != "https://example.com/b" {
		t.Errorf("replace did not stick: %v", got)
	}
	if !sink.Unsubscribe("alice") {
		t.Error("unsubscribe of existing subscription reported absent")
	}
	if sink.Unsubscribe("alice") {
		t.Error("unsubscribe of absent subscription reported found")
	}
	if got := sink.Snapshot(); len(got) != 0 {
		t.Errorf("snapshot not empty after unsubscribe: %v", got)
	}
}
