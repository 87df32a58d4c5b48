package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/wicaksana/gema/domain/entities"
)

func TestPrometheusSinkTracksCurrentState(t *testing.T) {
	sink := NewPrometheusSink("test", prometheus.NewRegistry())

	sink.Publish("dev1", entities.StateIdle)
	if got := testutil.ToFloat64(sink.states.WithLabelValues("dev1", "idle")); got != 1 {
		t.Errorf("idle = %v, want 1", got)
	}

	sink.Publish("dev1", entities.StateListening)
	if got := testutil.ToFloat64(sink.states.WithLabelValues("dev1", "idle")); got != 0 {
		t.Errorf("idle after transition = %v, want 0", got)
	}
	if got := testutil.ToFloat64(sink.states.WithLabelValues("dev1", "listening")); got != 1 {
		t.Errorf("listening = %v, want 1", got)
	}
}

type countingSink struct {
	calls int
}

func (c *countingSink) Publish(deviceID string, state entities.SessionState) {
	c.calls++
}

func TestMultiSinkFansOut(t *testing.T) {
	first := &countingSink{}
	second := &countingSink{}
	MultiSink{first, second}.Publish("dev1", entities.StateIdle)

	if first.calls != 1 || second.calls != 1 {
		t.Errorf("calls = %d, %d, want 1, 1", first.calls, second.calls)
	}
}

func TestWebhookSinkDeliversTransition(t *testing.T) {
	received := make(chan statusPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload statusPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
			return
		}
		received <- payload
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, zap.NewNop())
	sink.Publish("dev1", entities.StateClosed)

	select {
	case payload := <-received:
		if payload.DeviceID != "dev1" || payload.State != "closed" {
			t.Errorf("payload = %+v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never delivered")
	}
}
