package bulk

import (
	"fmt"
	"sort"

	"github.com/iancoleman/strcase"
)

// DefaultBucketSize is used for actions registered without a bucket size.
const DefaultBucketSize = 100

// Admin resolves per-action policy. Implementations must be cheap and free of
// side effects; the scroller calls them once per command.
type Admin interface {
	// BucketSizeFor returns the default bucket size of action.
	BucketSizeFor(action string) (int, error)

	// InputStreamFor returns the stream the action's workers consume.
	InputStreamFor(action string) (string, error)
}

// Action is the registered policy of one bulk action.
type Action struct {
	Name        string
	BucketSize  int
	BatchSize   int
	InputStream string
}

// ActionRegistry is the static Admin built from configuration.
type ActionRegistry struct {
	actions map[string]Action
}

// NewActionRegistry registers actions, filling unset bucket sizes with
// defaultBucketSize (or DefaultBucketSize when <= 0) and unset input streams
// with DefaultInputStream.
func NewActionRegistry(defaultBucketSize int, actions ...Action) (*ActionRegistry, error) {
	if defaultBucketSize <= 0 {
		defaultBucketSize = DefaultBucketSize
	}

	r := &ActionRegistry{actions: make(map[string]Action, len(actions))}
	for _, a := range actions {
		if a.Name == "" {
			return nil, fmt.Errorf("action name is required")
		}
		if _, dup := r.actions[a.Name]; dup {
			return nil, fmt.Errorf("action %q registered twice", a.Name)
		}
		if a.BucketSize <= 0 {
			a.BucketSize = defaultBucketSize
		}
		if a.BatchSize <= 0 {
			a.BatchSize = a.BucketSize
		}
		if a.InputStream == "" {
			a.InputStream = DefaultInputStream(a.Name)
		}
		r.actions[a.Name] = a
	}
	return r, nil
}

// DefaultInputStream derives the stream name of an action, e.g.
// "setProperties" -> "bulk-set-properties".
func DefaultInputStream(action string) string {
	return "bulk-" + strcase.ToKebab(action)
}

// Lookup returns the registered action.
func (r *ActionRegistry) Lookup(action string) (Action, bool) {
	a, ok := r.actions[action]
	return a, ok
}

// Actions returns the registered action names, sorted.
func (r *ActionRegistry) Actions() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InputStreams returns the input stream of every registered action.
func (r *ActionRegistry) InputStreams() []string {
	streams := make([]string, 0, len(r.actions))
	for _, name := range r.Actions() {
		streams = append(streams, r.actions[name].InputStream)
	}
	return streams
}

func (r *ActionRegistry) BucketSizeFor(action string) (int, error) {
	a, ok := r.actions[action]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return a.BucketSize, nil
}

func (r *ActionRegistry) InputStreamFor(action string) (string, error) {
	a, ok := r.actions[action]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return a.InputStream, nil
}
