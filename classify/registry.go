package classify

import (
	"strings"
	"sync"

	"github.com/aponysus/bamboo/policy"
)

// Registry maps retry modes to classifiers.
//
// A Registry from NewRegistry already holds the built-in classifiers; callers
// may replace them or add classifiers for custom modes.
type Registry struct {
	mu sync.RWMutex
	m  map[policy.Mode]Classifier
}

func NewRegistry() *Registry {
	r := &Registry{m: make(map[policy.Mode]Classifier, 2)}
	RegisterBuiltins(r)
	return r
}

// Register associates name with c. Empty names and nil classifiers are ignored.
func (r *Registry) Register(name string, c Classifier) {
	if r == nil || c == nil {
		return
	}
	mode := policy.Mode(strings.TrimSpace(name))
	if mode == "" {
		return
	}

	r.mu.Lock()
	if r.m == nil {
		r.m = make(map[policy.Mode]Classifier)
	}
	r.m[mode] = c
	r.mu.Unlock()
}

// Lookup returns the classifier for mode. The empty mode resolves to blanket.
func (r *Registry) Lookup(mode policy.Mode) (Classifier, bool) {
	if mode == "" {
		mode = policy.ModeBlanket
	}
	if r == nil {
		return builtinFor(mode)
	}

	r.mu.RLock()
	c, ok := r.m[mode]
	r.mu.RUnlock()
	if ok {
		return c, true
	}
	return builtinFor(mode)
}

func builtinFor(mode policy.Mode) (Classifier, bool) {
	switch mode {
	case policy.ModeBlanket:
		return Blanket{}, true
	case policy.ModeTransient:
		return Transient{}, true
	default:
		return nil, false
	}
}
