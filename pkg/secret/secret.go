// Package secret resolves secret references to secret values.
//
// Configuration carries references (typically environment variable names),
// never the values themselves. Resolution happens once at process start;
// resolved values must not be logged or marshalled back into configuration.
package secret

import (
	"fmt"
	"os"
	"strings"
)

// Source resolves a secret reference to its value.
//
// Implementations must be safe for concurrent use and must not log secret
// values.
type Source interface {
	Name() string
	Resolve(ref string) (string, error)
}

// Env resolves references as environment variable names.
type Env struct{}

// Name returns "env".
func (Env) Name() string { return "env" }

// Resolve reads the environment variable named by ref. A missing or empty
// variable is an error: a secret reference that resolves to nothing is a
// configuration mistake, not a usable credential.
func (Env) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty secret reference")
	}
	value, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("environment variable %s is not set", ref)
	}
	if value == "" {
		return "", fmt.Errorf("environment variable %s is empty", ref)
	}
	return value, nil
}

// Static resolves references from a fixed map. It exists for tests and for
// embedding the bridge in processes that manage secrets themselves.
type Static map[string]string

// Name returns "static".
func (Static) Name() string { return "static" }

// Resolve looks up ref in the map.
func (s Static) Resolve(ref string) (string, error) {
	value, ok := s[ref]
	if !ok || value == "" {
		return "", fmt.Errorf("secret %q is not available", ref)
	}
	return value, nil
}

var (
	_ Source = Env{}
	_ Source = Static{}
)
