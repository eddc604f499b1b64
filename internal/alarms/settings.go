package alarms

import "time"

// Settings controls how raised alarms are surfaced. Sound and
// vibration playback live in the external notification layer; the
// engine only reads the mute fields, and only to suppress raising.
// Clearing is never suppressed.
type Settings struct {
	SoundEnabled     bool          `yaml:"sound_enabled" json:"soundEnabled"`
	VibrationEnabled bool          `yaml:"vibration_enabled" json:"vibrationEnabled"`
	AutoAcknowledge  bool          `yaml:"auto_acknowledge" json:"autoAcknowledge"`
	AutoAckDelay     time.Duration `yaml:"auto_acknowledge_delay" json:"autoAcknowledgeDelay"`
	MuteUntil        time.Time     `yaml:"-" json:"muteUntil,omitempty"`
	MuteInfo         bool          `yaml:"mute_info" json:"muteInfo"`
	MuteWarning      bool          `yaml:"mute_warning" json:"muteWarning"`
	MuteCritical     bool          `yaml:"mute_critical" json:"muteCritical"`
}

// DefaultSettings returns the factory alarm settings.
func DefaultSettings() Settings {
	return Settings{
		SoundEnabled:     true,
		VibrationEnabled: true,
		AutoAckDelay:     5 * time.Minute,
	}
}

// MutedFor reports whether raising is suppressed for a severity at a
// given instant, either by the global mute window or by the
// per-severity flag.
func (s Settings) MutedFor(severity Severity, now time.Time) bool {
	if !s.MuteUntil.IsZero() && now.Before(s.MuteUntil) {
		return true
	}
	switch severity {
	case SeverityInfo:
		return s.MuteInfo
	case SeverityWarning:
		return s.MuteWarning
	case SeverityCritical:
		return s.MuteCritical
	}
	return false
}
