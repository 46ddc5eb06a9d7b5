package format

import (
	"fmt"
	"net/http"
	"slices"
	"sync"

	"logpipe-hq/logpipe/pkg/logstash"
)

// Built-in format names.
const (
	JSON         = "json"
	Console      = "console"
	ColorConsole = "cconsole"
)

// Output is a rendered value ready to be written to a client.
type Output struct {
	Body       []byte
	MIMEType   string
	StatusCode int
}

// Notice is an informational message sent to clients, such as the
// confirmation of a write or a stream filter update.
type Notice struct {
	Message string `json:"message"`
}

// NewNotice creates a notice with the given message.
func NewNotice(message string) Notice {
	return Notice{Message: message}
}

// Formatter renders values in a single format.
type Formatter interface {
	// Logs renders a batch of logs, in order.
	Logs(logs []*logstash.Log) Output

	// Notice renders an informational message.
	Notice(n Notice) Output

	// Error renders err to be sent with the given HTTP status.
	Error(err error, status int) Output
}

// Registry holds the available formats and the default one.
type Registry struct {
	mu            sync.RWMutex
	formats       map[string]Formatter
	defaultFormat string
}

// NewRegistry creates a registry with the built-in formats and json as the
// default.
func NewRegistry() *Registry {
	r := &Registry{
		formats:       make(map[string]Formatter),
		defaultFormat: JSON,
	}
	r.Register(JSON, NewJSONFormatter())
	r.Register(Console, NewConsoleFormatter(false))
	r.Register(ColorConsole, NewConsoleFormatter(true))
	return r
}

// Register adds or replaces the formatter for name.
func (r *Registry) Register(name string, f Formatter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formats[name] = f
}

// SetDefault selects the format used when a request names none or an
// unknown one.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.formats[name]; !ok {
		return fmt.Errorf("unknown format %q (available: %v)", name, r.namesLocked())
	}
	r.defaultFormat = name
	return nil
}

// Default returns the name of the default format.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultFormat
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.formats[name]
	return ok
}

// Get returns the formatter for name, or the default formatter when name
// is empty or unknown.
func (r *Registry) Get(name string) Formatter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.formats[name]; ok {
		return f
	}
	return r.formats[r.defaultFormat]
}

// Names returns the registered format names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.formats))
	for name := range r.formats {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func statusOr(status, fallback int) int {
	if status == 0 {
		return fallback
	}
	return status
}

func errorTitle(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "Error"
}
