package policy

import "strings"

// Key names an operation, e.g. "dataset.delete".
type Key struct {
	Namespace string
	Name      string
}

// ParseKey parses "namespace.name" into a Key.
// Input without a dot, or with an empty namespace, yields a Name-only key.
func ParseKey(s string) Key {
	s = strings.TrimSpace(s)
	if s == "" {
		return Key{}
	}
	ns, name, ok := strings.Cut(s, ".")
	if !ok {
		return Key{Name: s}
	}
	ns = strings.TrimSpace(ns)
	name = strings.TrimSpace(name)
	if name == "" {
		return Key{Name: s}
	}
	if ns == "" {
		return Key{Name: name}
	}
	return Key{Namespace: ns, Name: name}
}

func (k Key) String() string {
	switch {
	case k.Namespace == "":
		return k.Name
	case k.Name == "":
		return k.Namespace
	default:
		return k.Namespace + "." + k.Name
	}
}
