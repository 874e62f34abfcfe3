package subscription

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrDuplicateFilter = errors.New("already subscribed")
	ErrUnknownFilter   = errors.New("not subscribed")
)

// Matches reports whether topic starts with the exact bytes of filter.
// The empty filter matches every topic, and "GERAL" matches "GERALX".
func Matches(topic string, filter string) bool {
	return strings.HasPrefix(topic, filter)
}

type Result int

const (
	Added Result = iota
	AlreadyPresent
	Removed
	NotPresent
)

func (r Result) String() string {
	switch r {
	case Added:
		return "added"
	case AlreadyPresent:
		return "already_present"
	case Removed:
		return "removed"
	case NotPresent:
		return "not_present"
	default:
		return "unknown"
	}
}

// Err maps the no-op results to their error values, nil otherwise.
func (r Result) Err() error {
	switch r {
	case AlreadyPresent:
		return ErrDuplicateFilter
	case NotPresent:
		return ErrUnknownFilter
	default:
		return nil
	}
}

func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Registry is the filter set of a single subscriber.
type Registry struct {
	filters map[string]struct{}
	sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		filters: make(map[string]struct{}),
	}
}

func (r *Registry) Add(filter string) Result {
	r.Lock()
	defer r.Unlock()

	if _, ok := r.filters[filter]; ok {
		return AlreadyPresent
	}

	r.filters[filter] = struct{}{}
	return Added
}

func (r *Registry) Remove(filter string) Result {
	r.Lock()
	defer r.Unlock()

	if _, ok := r.filters[filter]; !ok {
		return NotPresent
	}

	delete(r.filters, filter)
	return Removed
}

func (r *Registry) SubscribeAll(topics []string) []Result {
	results := make([]Result, len(topics))
	for i, topic := range topics {
		results[i] = r.Add(topic)
	}
	return results
}

// Filters returns a sorted copy of the filter set.
func (r *Registry) Filters() []string {
	r.RLock()
	filters := make([]string, 0, len(r.filters))
	for f := range r.filters {
		filters = append(filters, f)
	}
	r.RUnlock()

	sort.Strings(filters)
	return filters
}

// Match reports whether any held filter matches topic.
func (r *Registry) Match(topic string) bool {
	r.RLock()
	defer r.RUnlock()

	for f := range r.filters {
		if Matches(topic, f) {
			return true
		}
	}
	return false
}

func (r *Registry) Len() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.filters)
}
