package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

func TestNew(t *testing.T) {
	evt := New("patient.created", "abc", map[string]string{"k": "v"})

	if evt.ID == "" {
		t.Error("expected event id")
	}
	if evt.Type != "patient.created" || evt.AggregateID != "abc" {
		t.Errorf("unexpected event: %+v", evt)
	}
	if evt.OccurredAt.IsZero() {
		t.Error("expected occurred_at to be set")
	}
	if New("x", "y", nil).ID == evt.ID {
		t.Error("expected unique ids")
	}
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	var calls []string
	ok := PublisherFunc(func(_ context.Context, evt Event) error {
		calls = append(calls, "ok")
		return nil
	})
	boom := errors.New("boom")
	failing := PublisherFunc(func(_ context.Context, evt Event) error {
		calls = append(calls, "fail")
		return boom
	})

	err := Multi{failing, ok}.Publish(context.Background(), New("patient.updated", "1", nil))
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error to contain boom, got %v", err)
	}
	if len(calls) != 2 || calls[1] != "ok" {
		t.Errorf("expected both sinks to be called, got %v", calls)
	}

	if err := (Multi{ok}).Publish(context.Background(), New("patient.updated", "1", nil)); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))

	if err := p.Publish(context.Background(), New("patient.deleted", "42", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"event_type":"patient.deleted"`) || !strings.Contains(out, `"aggregate_id":"42"`) {
		t.Errorf("unexpected log output: %s", out)
	}
}

func TestInstrumented(t *testing.T) {
	var gotType string
	var gotErr error
	boom := errors.New("boom")
	inner := PublisherFunc(func(context.Context, Event) error { return boom })

	p := Instrumented(inner, func(eventType string, err error) {
		gotType, gotErr = eventType, err
	})
	err := p.Publish(context.Background(), New("patient.created", "1", nil))

	if !errors.Is(err, boom) || !errors.Is(gotErr, boom) {
		t.Errorf("expected error to pass through, got %v / %v", err, gotErr)
	}
	if gotType != "patient.created" {
		t.Errorf("expected observed type patient.created, got %q", gotType)
	}
}

// -- Kafka --

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_TopicPerType(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, source: "patient-service"}

	evt := New("patient.created", "id-1", map[string]string{"firstName": "Ann"})
	if err := p.Publish(context.Background(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != "patient.created" {
		t.Errorf("expected topic patient.created, got %q", msg.Topic)
	}
	if string(msg.Key) != "id-1" {
		t.Errorf("expected key id-1, got %q", msg.Key)
	}

	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != evt.ID {
		t.Errorf("expected event id %s, got %s", evt.ID, decoded.ID)
	}
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}}

	if err := p.Publish(context.Background(), New("patient.deleted", "1", nil)); err == nil {
		t.Error("expected error when broker write fails")
	}
}

func TestNewKafkaPublisher_RequiresBrokers(t *testing.T) {
	if _, err := NewKafkaPublisher(KafkaConfig{}); err == nil {
		t.Error("expected error without brokers")
	}
}

// -- Webhook --

func TestNewWebhookPublisher_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "not a url", "http://"} {
		if _, err := NewWebhookPublisher(raw, ""); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestWebhookPublisher_SignsPayload(t *testing.T) {
	var body []byte
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		headers = r.Header.Clone()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p, err := NewWebhookPublisher(srv.URL, "s3cret", WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evt := New("patient.updated", "id-9", nil)
	if err := p.Publish(context.Background(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if headers.Get("X-Event-Type") != "patient.updated" {
		t.Errorf("unexpected event type header %q", headers.Get("X-Event-Type"))
	}
	sig := headers.Get("X-Signature")
	if sig != "sha256="+SignPayload(body, "s3cret") {
		t.Errorf("signature does not match the body: %q", sig)
	}
	if sig == "sha256="+SignPayload(body, "other") {
		t.Error("signature must depend on the secret")
	}
}

func TestWebhookPublisher_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p, _ := NewWebhookPublisher(srv.URL, "")
	if err := p.Publish(context.Background(), New("patient.created", "1", nil)); err == nil {
		t.Error("expected error for 502 response")
	}
}

func TestWebhookPublisher_NoSecretNoSignature(t *testing.T) {
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get("X-Signature")
	}))
	defer srv.Close()

	p, _ := NewWebhookPublisher(srv.URL, "")
	if err := p.Publish(context.Background(), New("patient.created", "1", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig != "" {
		t.Errorf("expected no signature header, got %q", sig)
	}
}
