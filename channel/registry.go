package channel

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Well-known channel names.
const (
	// SensorLogger carries frames from the producer to the logger.
	SensorLogger = "/sensor_logger_queue"
	// LoggerViewer carries frames from the logger (live or playback) to the consumer.
	LoggerViewer = "/logger_viewer_queue"
	// Control carries control commands to the logger.
	Control = "/control_queue"
)

// Registry holds named queues. Opening an existing name returns the
// existing queue; opening a new name creates it.
type Registry struct {
	mu       sync.Mutex
	defaults Options
	queues   map[string]*Queue
}

// NewRegistry creates a registry whose queues default to opts.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		defaults: opts.withDefaults(),
		queues:   make(map[string]*Queue),
	}
}

// ValidateName checks that name is a single slash-prefixed component.
func ValidateName(name string) error {
	if len(name) < 2 || name[0] != '/' {
		return fmt.Errorf("channel name %q must start with '/' and be non-empty", name)
	}
	if strings.Contains(name[1:], "/") {
		return fmt.Errorf("channel name %q must not contain further '/'", name)
	}
	return nil
}

// Open returns the named queue, creating it with the registry defaults.
func (r *Registry) Open(name string) (*Queue, error) {
	return r.OpenWith(name, r.defaults)
}

// OpenWith returns the named queue, creating it with opts if absent.
// Options are ignored when the queue already exists.
func (r *Registry) OpenWith(name string, opts Options) (*Queue, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[name]; ok {
		return q, nil
	}
	q := NewQueue(name, opts)
	r.queues[name] = q
	return q, nil
}

// Unlink closes the named queue and removes it. Holders of the queue can
// still drain buffered messages. Unlinking an unknown name is an error.
func (r *Registry) Unlink(name string) error {
	r.mu.Lock()
	q, ok := r.queues[name]
	delete(r.queues, name)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("channel %q not found", name)
	}
	return q.Close()
}

// CloseAll closes every queue without unlinking it.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.queues {
		_ = q.Close()
	}
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns queue stats for every registered queue, sorted by name.
func (r *Registry) Stats() []Stats {
	names := r.Names()
	out := make([]Stats, 0, len(names))
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if q, ok := r.queues[name]; ok {
			out = append(out, q.Stats())
		}
	}
	return out
}
