package discovery

// Instance is one physical device reported by the discovery feed.
type Instance struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Scan is one complete sweep of the devices visible on the data bus,
// grouped the way the vessel gateway reports them.
type Scan struct {
	Engines   []Instance `json:"engines"`
	Batteries []Instance `json:"batteries"`
	Tanks     []Instance `json:"tanks"`
}

// Presence is a detected instance tagged with its sensor type.
type Presence struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Key returns the canonical binding key, <type>-<id>. Instance-bound
// widgets derive their id from the same key.
func (p Presence) Key() string {
	return p.Type + "-" + p.ID
}

// Flatten expands a scan into presence records keyed by binding key.
// Records with an empty id are unusable and read as not present.
func (s Scan) Flatten() map[string]Presence {
	out := make(map[string]Presence, len(s.Engines)+len(s.Batteries)+len(s.Tanks))
	add := func(sensorType string, list []Instance) {
		for _, inst := range list {
			if inst.ID == "" {
				continue
			}
			p := Presence{Type: sensorType, ID: inst.ID, Title: inst.Title}
			out[p.Key()] = p
		}
	}
	add("engine", s.Engines)
	add("battery", s.Batteries)
	add("tank", s.Tanks)
	return out
}
