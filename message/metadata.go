package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
)

// Metadata is an optional annotation on a structured body.
type Metadata interface {
	Kind() string
}

// Annotator is implemented by metadata that renders extra text.
type Annotator interface {
	Annotation() string
}

// MetadataDecoder recognizes one metadata shape. It returns false when the
// fields do not describe its kind.
type MetadataDecoder func(fields map[string]json.RawMessage) (Metadata, bool)

var (
	decoders   []MetadataDecoder
	decodersMu sync.RWMutex
)

// RegisterMetadata adds a decoder. Decoders are tried in registration order.
func RegisterMetadata(dec MetadataDecoder) {
	decodersMu.Lock()
	decoders = append(decoders, dec)
	decodersMu.Unlock()
}

func init() {
	RegisterMetadata(decodeFileShare)
	RegisterMetadata(decodePoll)
	RegisterMetadata(decodePriority)
}

// DecodeMetadata never fails: shapes nobody recognizes become Unknown.
// Kinds are additive, so an object matched by several decoders decodes to
// Tags. A "type" no decoder claims is kept as Unknown next to the matches.
func DecodeMetadata(raw json.RawMessage) Metadata {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Unknown{Raw: compact(raw)}
	}

	if len(fields) == 0 {
		return nil
	}

	decodersMu.RLock()
	defer decodersMu.RUnlock()

	var (
		tags    Tags
		claimed bool
	)

	typ := fieldType(fields)
	for _, dec := range decoders {
		meta, ok := dec(fields)
		if !ok {
			continue
		}

		tags = append(tags, meta)
		if meta.Kind() == typ {
			claimed = true
		}
	}

	if typ != "" && !claimed {
		tags = append(tags, Unknown{Raw: compact(raw)})
	}

	switch len(tags) {
	case 0:
		return Unknown{Raw: compact(raw)}
	case 1:
		return tags[0]
	default:
		return tags
	}
}

func compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return append(json.RawMessage(nil), raw...)
	}
	return buf.Bytes()
}

func fieldType(fields map[string]json.RawMessage) string {
	raw, ok := fields["type"]
	if !ok {
		return ""
	}

	var typ string
	if err := json.Unmarshal(raw, &typ); err != nil {
		return ""
	}
	return typ
}

type PriorityLevel int

const (
	Normal PriorityLevel = iota
	High
)

func ParsePriorityLevel(s string) (PriorityLevel, error) {
	switch s {
	case "normal":
		return Normal, nil
	case "high":
		return High, nil
	default:
		return -1, errors.New("priority level not supported")
	}
}

func (level PriorityLevel) String() string {
	switch level {
	case Normal:
		return "normal"
	case High:
		return "high"
	default:
		return ""
	}
}

// Priority is encoded as {"priority": "high"}.
type Priority struct {
	Level PriorityLevel
}

func (Priority) Kind() string { return "priority" }

func (p Priority) Annotation() string {
	if p.Level == High {
		return "[!] high priority"
	}
	return ""
}

func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"priority": p.Level.String(),
	})
}

func decodePriority(fields map[string]json.RawMessage) (Metadata, bool) {
	raw, ok := fields["priority"]
	if !ok {
		return nil, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}

	level, err := ParsePriorityLevel(s)
	if err != nil {
		return nil, false
	}

	return Priority{level}, true
}

// FileShare is encoded as {"type": "file", "filename": ..., "url": ...}.
type FileShare struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

func (FileShare) Kind() string { return "file" }

func (f FileShare) Annotation() string {
	return "[file] " + f.Filename + " <" + f.URL + ">"
}

func (f FileShare) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string `json:"type"`
		Filename string `json:"filename"`
		URL      string `json:"url"`
	}{
		Type:     "file",
		Filename: f.Filename,
		URL:      f.URL,
	})
}

func decodeFileShare(fields map[string]json.RawMessage) (Metadata, bool) {
	if fieldType(fields) != "file" {
		return nil, false
	}

	var f struct {
		Filename string `json:"filename"`
		URL      string `json:"url"`
	}
	if err := unmarshalFields(fields, &f); err != nil {
		return nil, false
	}

	return FileShare{
		Filename: f.Filename,
		URL:      f.URL,
	}, true
}

// Poll is encoded as {"type": "poll", "question": ..., "options": [...]}.
type Poll struct {
	Question string
	Options  []string
}

func (Poll) Kind() string { return "poll" }

func (p Poll) Annotation() string {
	var sb strings.Builder
	sb.WriteString("[poll] ")
	sb.WriteString(p.Question)
	for i, opt := range p.Options {
		sb.WriteString("\n  ")
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(") ")
		sb.WriteString(opt)
	}
	return sb.String()
}

func (p Poll) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string   `json:"type"`
		Question string   `json:"question"`
		Options  []string `json:"options"`
	}{
		Type:     "poll",
		Question: p.Question,
		Options:  p.Options,
	})
}

func decodePoll(fields map[string]json.RawMessage) (Metadata, bool) {
	if fieldType(fields) != "poll" {
		return nil, false
	}

	var p struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
	}
	if err := unmarshalFields(fields, &p); err != nil {
		return nil, false
	}

	return Poll{
		Question: p.Question,
		Options:  p.Options,
	}, true
}

func unmarshalFields(fields map[string]json.RawMessage, v any) error {
	bs, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(bs, v)
}

// Unknown keeps metadata that no decoder recognized. It renders nothing.
type Unknown struct {
	Raw json.RawMessage
}

func (u Unknown) Kind() string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(u.Raw, &fields); err != nil {
		return ""
	}
	return fieldType(fields)
}

func (u Unknown) MarshalJSON() ([]byte, error) {
	if len(u.Raw) == 0 {
		return []byte("{}"), nil
	}
	return u.Raw, nil
}

// Tags carries several kinds on one metadata object, e.g. a file share
// marked high priority. Later tags win when two of them write the same field.
type Tags []Metadata

func (t Tags) Kind() string {
	kinds := make([]string, 0, len(t))
	for _, meta := range t {
		if kind := meta.Kind(); kind != "" {
			kinds = append(kinds, kind)
		}
	}
	return strings.Join(kinds, "+")
}

func (t Tags) Annotation() string {
	annotations := make([]string, 0, len(t))
	for _, meta := range t {
		a, ok := meta.(Annotator)
		if !ok {
			continue
		}

		if annotation := a.Annotation(); annotation != "" {
			annotations = append(annotations, annotation)
		}
	}
	return strings.Join(annotations, "\n  ")
}

func (t Tags) MarshalJSON() ([]byte, error) {
	merged := make(map[string]json.RawMessage)
	for _, meta := range t {
		bs, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(bs, &fields); err != nil {
			return nil, err
		}

		for k, v := range fields {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}
