package topic

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

var (
	ErrTopicNotFound = errors.New("topic not found")
	ErrInvalidName   = errors.New("invalid topic name")
)

// Topic is an entry of the catalog of known rooms. Publishing never requires
// a catalog entry; the catalog only feeds SubscribeAll and Broadcast.
type Topic struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Reserved    bool      `json:"reserved"` // operator broadcasts, e.g. SISTEMA
	CreatedAt   time.Time `json:"created_at"`
}

func NewTopic(name string, description string) (*Topic, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	return &Topic{
		Name:        name,
		Description: description,
		CreatedAt:   time.Now(),
	}, nil
}

// ValidateName rejects empty names and names with whitespace, which the
// wire format uses as the topic separator.
func ValidateName(name string) error {
	if name == "" || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return ErrInvalidName
	}
	return nil
}

func Names(topics []*Topic) []string {
	names := make([]string, len(topics))
	for i, t := range topics {
		names[i] = t.Name
	}
	return names
}

type Repository interface {
	Store(t *Topic) error
	Find(name string) (*Topic, error)
	List() ([]*Topic, error) // sorted by name
	Remove(name string) error
	Close() error
}
