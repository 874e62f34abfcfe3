package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrEmptyTopic        = errors.New("empty topic")
)

const clockLayout = "15:04:05"

// Codec converts envelopes to and from the "<TOPIC> <body>" wire line.
//
// The plain form only carries HH:MM:SS, so decoding it rebuilds SentAt on
// the current date of Now in Location.
type Codec struct {
	Location *time.Location
	Now      func() time.Time
}

func NewCodec() *Codec {
	return &Codec{
		Location: time.Local,
		Now:      time.Now,
	}
}

func (c *Codec) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

func (c *Codec) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Codec) FormatTime(t time.Time) string {
	return t.In(c.location()).Format(clockLayout)
}

type structuredWire struct {
	Topic         string          `json:"topic"`
	Username      string          `json:"username"`
	Message       string          `json:"message"`
	Timestamp     *float64        `json:"timestamp,omitempty"`
	FormattedTime string          `json:"formatted_time,omitempty"`
	Metadata      json.RawMessage `json:"metadata"`
}

func (c *Codec) Encode(e *Envelope) ([]byte, error) {
	if e.Topic == "" {
		return nil, ErrEmptyTopic
	}

	switch body := e.Body.(type) {
	case Structured:
		meta := json.RawMessage("{}")
		if body.Metadata != nil {
			bs, err := json.Marshal(body.Metadata)
			if err != nil {
				return nil, err
			}
			meta = bs
		}

		wire := structuredWire{
			Topic:    e.Topic,
			Username: e.Sender,
			Message:  body.Text,
			Metadata: meta,
		}

		if !e.SentAt.IsZero() {
			ts := float64(e.SentAt.UnixMicro()) / 1e6
			wire.Timestamp = &ts
			wire.FormattedTime = c.FormatTime(e.SentAt)
		}

		var buf bytes.Buffer
		buf.WriteString(e.Topic)
		buf.WriteByte(' ')

		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(&wire); err != nil {
			return nil, err
		}

		return bytes.TrimRight(buf.Bytes(), "\n"), nil

	default:
		// a body decoded without the "[HH:MM:SS] sender: " prefix goes back as is
		if e.SentAt.IsZero() && e.Sender == "" {
			if e.Text() == "" {
				return []byte(e.Topic), nil
			}
			return []byte(e.Topic + " " + e.Text()), nil
		}

		line := e.Topic + " [" + c.FormatTime(e.SentAt) + "] " + e.Sender + ": " + e.Text()
		return []byte(line), nil
	}
}

// Decode parses a wire line. Bodies that are not JSON objects are plain text;
// a JSON object without username or message is ErrMalformedEnvelope.
// A line without a separator is all topic with an empty body.
func (c *Codec) Decode(data []byte) (*Envelope, error) {
	line := strings.TrimLeftFunc(string(data), unicode.IsSpace)
	if line == "" {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, ErrEmptyTopic)
	}

	topic, rest := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		_, width := utf8.DecodeRuneInString(line[i:])
		topic, rest = line[:i], line[i+width:]
	}

	if strings.HasPrefix(strings.TrimSpace(rest), "{") {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(rest), &fields); err == nil {
			return c.decodeStructured(topic, fields)
		}
	}

	return c.decodePlain(topic, rest), nil
}

func (c *Codec) decodeStructured(topic string, fields map[string]json.RawMessage) (*Envelope, error) {
	var wire struct {
		Username      *string         `json:"username"`
		Message       *string         `json:"message"`
		Timestamp     *float64        `json:"timestamp"`
		FormattedTime string          `json:"formatted_time"`
		Metadata      json.RawMessage `json:"metadata"`
	}

	if err := unmarshalFields(fields, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}

	if wire.Username == nil {
		return nil, fmt.Errorf("%w: username not found", ErrMalformedEnvelope)
	}

	if wire.Message == nil {
		return nil, fmt.Errorf("%w: message not found", ErrMalformedEnvelope)
	}

	var sentAt time.Time
	if wire.Timestamp != nil {
		micros := int64(math.Round(*wire.Timestamp * 1e6))
		sentAt = time.UnixMicro(micros).In(c.location())
	} else if t, ok := c.parseClock(wire.FormattedTime); ok {
		sentAt = t
	}

	return &Envelope{
		Topic:  topic,
		Sender: *wire.Username,
		SentAt: sentAt,
		Body: Structured{
			Text:     *wire.Message,
			Metadata: DecodeMetadata(wire.Metadata),
		},
	}, nil
}

// decodePlain accepts "[HH:MM:SS] sender: text"; anything else is kept
// verbatim as the text with no sender.
func (c *Codec) decodePlain(topic string, rest string) *Envelope {
	e := &Envelope{
		Topic: topic,
		Body:  PlainText{Text: rest},
	}

	if len(rest) < 11 || rest[0] != '[' || rest[9:11] != "] " {
		return e
	}

	sentAt, ok := c.parseClock(rest[1:9])
	if !ok {
		return e
	}

	after := rest[11:]
	i := strings.Index(after, ": ")
	if i < 0 {
		return e
	}

	e.SentAt = sentAt
	e.Sender = after[:i]
	e.Body = PlainText{Text: after[i+2:]}
	return e
}

func (c *Codec) parseClock(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}

	loc := c.location()
	clock, err := time.ParseInLocation(clockLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}

	y, m, d := c.now().In(loc).Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), clock.Second(), 0, loc), true
}
