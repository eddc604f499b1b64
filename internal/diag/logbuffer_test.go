package diag

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestLogBufferCapturesZerologLines(t *testing.T) {
	buf := NewLogBuffer(10)
	log := zerolog.New(buf)

	log.Info().Str("sensor", "depth").Msg("Reading applied")
	log.Warn().Msg("Alarm raised")

	entries := buf.GetEntries()
	if len(entries) != 2 {
		t.Fatalf("captured %d entries, want 2", len(entries))
	}
	if entries[0].Level != "info" || entries[0].Message != "Reading applied" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Level != "warn" || entries[1].Message != "Alarm raised" {
		t.Errorf("entry 1 = %+v", entries[1])
	}
}

func TestLogBufferWrapsAround(t *testing.T) {
	buf := NewLogBuffer(3)
	log := zerolog.New(buf)

	for i := 0; i < 5; i++ {
		log.Info().Int("n", i).Msg("tick")
	}

	entries := buf.GetEntries()
	if len(entries) != 3 {
		t.Fatalf("captured %d entries, want 3", len(entries))
	}
	// Oldest two fell off; chronological order is preserved.
	for i, e := range entries {
		if e.Message != "tick" {
			t.Fatalf("entry %d = %+v", i, e)
		}
	}

	recent := buf.GetRecentEntries(2)
	if len(recent) != 2 {
		t.Fatalf("recent = %d entries, want 2", len(recent))
	}

	buf.Clear()
	if got := buf.GetEntries(); len(got) != 0 {
		t.Fatalf("entries after clear = %d", len(got))
	}
}
