package sensors

import (
	"math"
	"testing"
)

func TestParseDataPathDefaults(t *testing.T) {
	p, err := ParseDataPath("depth")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.SensorType != "depth" || p.MetricKey != "depth" || p.Instance != 0 {
		t.Fatalf("unexpected path: %+v", p)
	}
	if got := p.String(); got != "depth.depth" {
		t.Fatalf("String() = %q", got)
	}
}

func TestParseDataPathExplicit(t *testing.T) {
	p, err := ParseDataPath("engine.coolantTemp#1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.SensorType != "engine" || p.MetricKey != "coolantTemp" || p.Instance != 1 {
		t.Fatalf("unexpected path: %+v", p)
	}
	if got := p.String(); got != "engine.coolantTemp#1" {
		t.Fatalf("String() = %q", got)
	}
}

func TestParseDataPathErrors(t *testing.T) {
	cases := []string{
		"",
		"teleporter",
		"engine.flux",
		"engine#one",
		"engine#-1",
	}
	for _, raw := range cases {
		if _, err := ParseDataPath(raw); err == nil {
			t.Errorf("ParseDataPath(%q): expected error", raw)
		}
	}
}

func TestCatalogMnemonics(t *testing.T) {
	def, ok := Lookup("engine")
	if !ok {
		t.Fatal("engine missing from catalog")
	}
	if !def.MultiInstance {
		t.Error("engine should be multi-instance")
	}
	m, ok := def.MetricOf("coolantTemp")
	if !ok {
		t.Fatal("coolantTemp missing")
	}
	if m.Mnemonic != "ECT" || m.Unit != "K" {
		t.Fatalf("unexpected metric def: %+v", m)
	}
}

func TestCatalogPrimaryMetricsExist(t *testing.T) {
	for _, st := range Types() {
		def, _ := Lookup(st)
		if _, ok := def.MetricOf(def.PrimaryMetric); !ok {
			t.Errorf("sensor %s: primary metric %q not in metric list", st, def.PrimaryMetric)
		}
	}
}

func TestDisplayConversions(t *testing.T) {
	prefs := UnitPreferences{}

	if v, u := Display(293.15, "K", prefs); math.Abs(v-20) > 1e-9 || u != "°C" {
		t.Errorf("K default: got %v %s", v, u)
	}
	if v, u := Display(293.15, "K", UnitPreferences{Temperature: "fahrenheit"}); math.Abs(v-68) > 1e-9 || u != "°F" {
		t.Errorf("K fahrenheit: got %v %s", v, u)
	}
	if v, u := Display(5.14444, "m/s", prefs); math.Abs(v-10) > 1e-4 || u != "kn" {
		t.Errorf("m/s default: got %v %s", v, u)
	}
	if v, u := Display(10, "m", UnitPreferences{Depth: "feet"}); math.Abs(v-32.8084) > 1e-3 || u != "ft" {
		t.Errorf("m feet: got %v %s", v, u)
	}
	if v, u := Display(200000, "Pa", prefs); v != 200 || u != "kPa" {
		t.Errorf("Pa default: got %v %s", v, u)
	}
	if v, u := Display(0.75, "ratio", prefs); v != 75 || u != "%" {
		t.Errorf("ratio: got %v %s", v, u)
	}
	if v, u := Display(math.Pi, "rad", prefs); math.Abs(v-180) > 1e-9 || u != "°" {
		t.Errorf("rad: got %v %s", v, u)
	}
	if v, u := Display(12.6, "V", prefs); v != 12.6 || u != "V" {
		t.Errorf("passthrough: got %v %s", v, u)
	}
}
