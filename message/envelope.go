package message

import (
	"bytes"
	"encoding/json"
	"reflect"
	"time"
)

// Envelope is one published message. It is never mutated after creation.
type Envelope struct {
	Topic  string
	Sender string
	SentAt time.Time
	Body   Body
}

// now is truncated to the microsecond precision of the structured form.
func now() time.Time {
	return time.Now().Truncate(time.Microsecond)
}

func NewPlainText(topic string, sender string, text string) *Envelope {
	return &Envelope{
		Topic:  topic,
		Sender: sender,
		SentAt: now(),
		Body:   PlainText{Text: text},
	}
}

func NewStructured(topic string, sender string, text string, meta Metadata) *Envelope {
	return &Envelope{
		Topic:  topic,
		Sender: sender,
		SentAt: now(),
		Body: Structured{
			Text:     text,
			Metadata: meta,
		},
	}
}

func (e *Envelope) Text() string {
	if e.Body == nil {
		return ""
	}
	return e.Body.Message()
}

// Metadata returns the metadata of a structured body, nil otherwise.
func (e *Envelope) Metadata() Metadata {
	s, ok := e.Body.(Structured)
	if !ok {
		return nil
	}
	return s.Metadata
}

func (e *Envelope) Equal(other *Envelope) bool {
	if e == nil || other == nil {
		return e == other
	}

	if e.Topic != other.Topic || e.Sender != other.Sender || !e.SentAt.Equal(other.SentAt) {
		return false
	}

	switch b := e.Body.(type) {
	case PlainText:
		o, ok := other.Body.(PlainText)
		return ok && b == o

	case Structured:
		o, ok := other.Body.(Structured)
		if !ok || b.Text != o.Text {
			return false
		}
		return metadataEqual(b.Metadata, o.Metadata)

	default:
		return other.Body == nil
	}
}

func metadataEqual(a, b Metadata) bool {
	switch ma := a.(type) {
	case Tags:
		mb, ok := b.(Tags)
		if !ok || len(ma) != len(mb) {
			return false
		}

		for i := range ma {
			if !metadataEqual(ma[i], mb[i]) {
				return false
			}
		}
		return true

	case Unknown:
		mb, ok := b.(Unknown)
		if !ok {
			return false
		}
		return rawEqual(ma.Raw, mb.Raw)

	default:
		return reflect.DeepEqual(a, b)
	}
}

// rawEqual compares JSON documents regardless of key order.
func rawEqual(a, b json.RawMessage) bool {
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return bytes.Equal(a, b)
	}
	return reflect.DeepEqual(va, vb)
}

type Body interface {
	Message() string
	body()
}

type PlainText struct {
	Text string
}

func (b PlainText) Message() string { return b.Text }
func (PlainText) body()             {}

type Structured struct {
	Text     string
	Metadata Metadata
}

func (b Structured) Message() string { return b.Text }
func (Structured) body()             {}
