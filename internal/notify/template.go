package notify

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"
	"time"
)

// DefaultTemplate is the text body sent when no custom template is
// configured.
const DefaultTemplate = `[Alarm {{.EventLabel}}] {{.Name}}
{{.Message}}
Severity: {{.Severity}}
Path: {{.DataPath}}
Observed: {{.Observed}}
Limit: {{.Limit}}
Raised: {{.RaisedAt}}
{{- if .AcknowledgedBy }}
Acknowledged by: {{.AcknowledgedBy}}
{{- end }}`

// TemplateData provides the fields a notification template can render.
type TemplateData struct {
	Event          string
	EventLabel     string
	Name           string
	Message        string
	Severity       string
	DataPath       string
	Observed       string
	Limit          string
	RaisedAt       string
	AcknowledgedBy string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to
// DefaultTemplate when empty.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alarm-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("notify: nil template")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// buildTemplateData flattens an alarm event for rendering.
func buildTemplateData(event Event) TemplateData {
	data := TemplateData{
		Event:      event.Type,
		EventLabel: eventLabel(event.Type),
	}
	if event.Alarm == nil {
		return data
	}
	a := event.Alarm
	data.Name = a.Name
	data.Message = a.Message
	data.Severity = string(a.Severity)
	data.DataPath = a.DataPath
	data.Observed = formatFloat(a.ObservedValue)
	data.Limit = formatFloat(a.ThresholdValue)
	data.RaisedAt = a.RaisedAt.UTC().Format(time.RFC3339)
	data.AcknowledgedBy = a.AcknowledgedBy
	return data
}

func eventLabel(event string) string {
	switch event {
	case EventAlarmRaised:
		return "Raised"
	case EventAlarmCleared:
		return "Cleared"
	case EventAlarmAcknowledged:
		return "Acknowledged"
	case EventWidgetCreated:
		return "Widget Created"
	case EventWidgetRemoved:
		return "Widget Removed"
	default:
		return event
	}
}

func formatFloat(value float64) string {
	return fmt.Sprintf("%.2f", value)
}
