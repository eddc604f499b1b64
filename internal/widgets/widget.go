package widgets

// Settings binds a widget to the physical instance it displays. Both
// fields empty means the widget was placed by the user and is never
// managed by this package.
type Settings struct {
	InstanceID   string `json:"instanceId,omitempty"`
	InstanceType string `json:"instanceType,omitempty"`
}

// Layout is a widget's slot on the dashboard grid, in grid cells.
type Layout struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Widget is one dashboard tile. The id of an instance-bound widget is
// derived from type and instance id, so creating the same binding
// twice cannot produce a second widget.
type Widget struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Title    string   `json:"title"`
	Layout   Layout   `json:"layout"`
	Settings Settings `json:"settings"`
}

// Bound reports whether the widget carries an instance back-reference.
func (w Widget) Bound() bool {
	return w.Settings.InstanceID != "" && w.Settings.InstanceType != ""
}

// BindingKey returns <instanceType>-<instanceID> for bound widgets and
// the empty string otherwise.
func (w Widget) BindingKey() string {
	if !w.Bound() {
		return ""
	}
	return w.Settings.InstanceType + "-" + w.Settings.InstanceID
}
