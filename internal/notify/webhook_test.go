package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingChannel struct {
	mu       sync.Mutex
	contents []string
}

func (r *recordingChannel) Send(_ context.Context, content string) error {
	r.mu.Lock()
	r.contents = append(r.contents, content)
	r.mu.Unlock()
	return nil
}

func (r *recordingChannel) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contents)
}

func (r *recordingChannel) Latest() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.contents) == 0 {
		return ""
	}
	return r.contents[len(r.contents)-1]
}

func TestWebhookChannelPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	if err := channel.Send(context.Background(), "bilge pump offline"); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case payload := <-payloadCh:
		if payload.MsgType != "text" {
			t.Errorf("msgtype = %q, want text", payload.MsgType)
		}
		if payload.Text.Content != "bilge pump offline" {
			t.Errorf("content = %q", payload.Text.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook payload never arrived")
	}
}

func TestWebhookChannelRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	err = channel.Send(context.Background(), "anyone home")
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("err = %v, want status 502 error", err)
	}
}

func TestNewWebhookChannelRequiresURL(t *testing.T) {
	if _, err := NewWebhookChannel(""); err == nil {
		t.Error("expected error for empty url")
	}
}

func TestWebhookSinkRendersAlarm(t *testing.T) {
	channel := &recordingChannel{}
	sink, err := NewWebhookSink(channel, nil)
	if err != nil {
		t.Fatalf("new webhook sink: %v", err)
	}

	alarm := testEventAlarm("a1")
	event := Event{Type: EventAlarmRaised, Timestamp: alarm.RaisedAt, Alarm: &alarm}
	if err := sink.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	content := channel.Latest()
	for _, want := range []string{
		"[Alarm Raised] Coolant temperature high",
		"Severity: critical",
		"Path: engine.coolantTemp#1",
		"Observed: 371.15",
		"Limit: 366.48",
		"Raised: 2024-06-01T12:00:00Z",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("content missing %q:\n%s", want, content)
		}
	}
	if strings.Contains(content, "Acknowledged by") {
		t.Errorf("unacknowledged alarm should not render an ack line:\n%s", content)
	}
}

func TestWebhookSinkRendersAcknowledgement(t *testing.T) {
	channel := &recordingChannel{}
	sink, err := NewWebhookSink(channel, nil)
	if err != nil {
		t.Fatalf("new webhook sink: %v", err)
	}

	alarm := testEventAlarm("a1")
	ackAt := alarm.RaisedAt.Add(time.Minute)
	alarm.Acknowledged = true
	alarm.AcknowledgedAt = &ackAt
	alarm.AcknowledgedBy = "skipper"
	event := Event{Type: EventAlarmAcknowledged, Timestamp: ackAt, Alarm: &alarm}
	if err := sink.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	content := channel.Latest()
	if !strings.Contains(content, "[Alarm Acknowledged]") {
		t.Errorf("content missing ack label:\n%s", content)
	}
	if !strings.Contains(content, "Acknowledged by: skipper") {
		t.Errorf("content missing ack line:\n%s", content)
	}
}

func TestWebhookSinkSkipsWidgetEvents(t *testing.T) {
	channel := &recordingChannel{}
	sink, err := NewWebhookSink(channel, nil)
	if err != nil {
		t.Fatalf("new webhook sink: %v", err)
	}

	event := Event{Type: EventWidgetCreated, Timestamp: time.Now()}
	if err := sink.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if channel.Count() != 0 {
		t.Errorf("widget event reached the channel, count = %d", channel.Count())
	}
}

func TestCustomTemplate(t *testing.T) {
	tpl, err := NewTemplate("{{.Severity}}|{{.Name}}")
	if err != nil {
		t.Fatalf("new template: %v", err)
	}
	alarm := testEventAlarm("a1")
	out, err := tpl.Render(buildTemplateData(Event{Type: EventAlarmRaised, Alarm: &alarm}))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "critical|Coolant temperature high" {
		t.Errorf("render = %q", out)
	}
}
