package message

import "strings"

// Render formats an envelope for a terminal.
func (c *Codec) Render(e *Envelope) string {
	var sb strings.Builder
	sb.WriteString(e.Topic)

	if !e.SentAt.IsZero() {
		sb.WriteString(" [")
		sb.WriteString(c.FormatTime(e.SentAt))
		sb.WriteString("]")
	}

	sb.WriteString(" ")
	if e.Sender != "" {
		sb.WriteString(e.Sender)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Text())

	if a, ok := e.Metadata().(Annotator); ok {
		if annotation := a.Annotation(); annotation != "" {
			sb.WriteString("\n  ")
			sb.WriteString(annotation)
		}
	}

	return sb.String()
}
