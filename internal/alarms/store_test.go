package alarms

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testAlarm(source string, at time.Time) Alarm {
	return Alarm{
		ID:       newAlarmID(source, at),
		Source:   source,
		Name:     "Test",
		Message:  "test alarm",
		Severity: SeverityWarning,
		DataPath: "depth",
		RaisedAt: at,
	}
}

func TestRaiseIsIdempotentPerSource(t *testing.T) {
	s := NewStore(zerolog.Nop())
	now := time.Now()

	if !s.Raise(testAlarm("depth-min", now)) {
		t.Fatal("first raise rejected")
	}
	if s.Raise(testAlarm("depth-min", now.Add(time.Second))) {
		t.Fatal("second raise for the same source accepted")
	}
	if n := len(s.Active()); n != 1 {
		t.Fatalf("active count = %d, want 1", n)
	}
}

func TestClearMovesToHistory(t *testing.T) {
	s := NewStore(zerolog.Nop())
	now := time.Now()
	s.Raise(testAlarm("depth-min", now))

	cleared, ok := s.ClearBySource("depth-min", now.Add(time.Minute))
	if !ok {
		t.Fatal("clear failed")
	}
	if cleared.ClearedAt == nil || !cleared.ClearedAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("clearedAt not set: %+v", cleared)
	}
	if len(s.Active()) != 0 {
		t.Fatal("alarm still active after clear")
	}
	hist := s.History()
	if len(hist) != 1 || hist[0].Source != "depth-min" {
		t.Fatalf("history wrong: %+v", hist)
	}

	// Clearing again is a clean no-op.
	if _, ok := s.ClearBySource("depth-min", now); ok {
		t.Fatal("second clear succeeded")
	}
}

func TestHistoryRetentionFIFO(t *testing.T) {
	s := NewStore(zerolog.Nop(), WithHistoryRetention(3))
	base := time.Now()

	for i := 0; i < 5; i++ {
		source := fmt.Sprintf("t-%d", i)
		s.Raise(testAlarm(source, base.Add(time.Duration(i)*time.Second)))
		s.ClearBySource(source, base.Add(time.Duration(i)*time.Second+time.Millisecond))
	}

	hist := s.History()
	if len(hist) != 3 {
		t.Fatalf("history size = %d, want 3", len(hist))
	}
	// Newest first; the two oldest episodes were evicted.
	if hist[0].Source != "t-4" || hist[2].Source != "t-2" {
		t.Fatalf("unexpected retention order: %s .. %s", hist[0].Source, hist[2].Source)
	}
}

func TestAcknowledgeCompareAndSet(t *testing.T) {
	s := NewStore(zerolog.Nop())
	now := time.Now()
	alarm := testAlarm("depth-min", now)
	s.Raise(alarm)

	// Unknown id is a no-op.
	if _, ok := s.Acknowledge("nope", "skipper", now); ok {
		t.Fatal("acknowledged unknown id")
	}

	acked, ok := s.Acknowledge(alarm.ID, "skipper", now.Add(time.Second))
	if !ok {
		t.Fatal("acknowledge failed")
	}
	if !acked.Acknowledged || acked.AcknowledgedBy != "skipper" || acked.AcknowledgedAt == nil {
		t.Fatalf("ack fields wrong: %+v", acked)
	}

	// Double-ack is a no-op.
	if _, ok := s.Acknowledge(alarm.ID, "mate", now); ok {
		t.Fatal("double acknowledge succeeded")
	}

	// Ack after clear is a no-op: the episode id no longer names an
	// active alarm.
	s.ClearBySource("depth-min", now)
	if _, ok := s.Acknowledge(alarm.ID, "mate", now); ok {
		t.Fatal("acknowledged a cleared alarm")
	}
}

func TestMuteForAndSettings(t *testing.T) {
	s := NewStore(zerolog.Nop())
	now := time.Now()

	until := s.MuteFor(5*time.Minute, now)
	if !until.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("muteUntil = %v", until)
	}
	if !s.Settings().MutedFor(SeverityCritical, now.Add(time.Minute)) {
		t.Fatal("not muted inside the window")
	}
	if s.Settings().MutedFor(SeverityCritical, now.Add(6*time.Minute)) {
		t.Fatal("still muted after expiry")
	}

	settings := s.Settings()
	settings.MuteWarning = true
	s.SetSettings(settings)
	if !s.Settings().MutedFor(SeverityWarning, now.Add(time.Hour)) {
		t.Fatal("per-severity mute not applied")
	}
	if s.Settings().MutedFor(SeverityCritical, now.Add(time.Hour)) {
		t.Fatal("per-severity mute leaked across severities")
	}
}

func TestOverlayFor(t *testing.T) {
	s := NewStore(zerolog.Nop())
	now := time.Now()

	warning := testAlarm("depth-min", now)
	s.Raise(warning)

	critical := testAlarm("depth-critical", now)
	critical.Severity = SeverityCritical
	critical.DataPath = "depth.depth"
	s.Raise(critical)

	severity, ok := s.OverlayFor("depth", 0, "depth")
	if !ok || severity != "critical" {
		t.Fatalf("overlay = %q, %v; want critical", severity, ok)
	}

	if _, ok := s.OverlayFor("engine", 0, "rpm"); ok {
		t.Fatal("overlay reported for unrelated metric")
	}
}
