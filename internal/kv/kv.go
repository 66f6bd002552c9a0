// Package kv provides the durable key-value gateways the task store persists
// through. Values are opaque byte blobs; encoding is the caller's concern.
package kv

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

var (
	// ErrInvalidKey is returned for keys outside [A-Za-z0-9._-].
	ErrInvalidKey = errors.New("invalid key")
	// ErrUnknownBackend is returned by Open for unrecognized backend names.
	ErrUnknownBackend = errors.New("unknown backend")
)

// Gateway is a durable key-value store with one blob per string key.
type Gateway interface {
	// Get returns the value stored under key. ok is false when the key has
	// never been set.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key, replacing any prior value.
	Set(ctx context.Context, key string, value []byte) error
}

// GatewayCloser is a Gateway holding resources that must be released.
type GatewayCloser interface {
	Gateway
	io.Closer
}

// Backends lists the names Open accepts.
func Backends() []string {
	return []string{BackendFile, BackendSQLite, BackendMemory}
}

// Open opens the named backend rooted at dataDir.
func Open(ctx context.Context, backend, dataDir string) (GatewayCloser, error) {
	switch backend {
	case BackendFile:
		f, err := NewFile(dataDir)
		if err != nil {
			return nil, err
		}
		return f, nil
	case BackendSQLite:
		s, err := OpenSQLite(ctx, dataDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("%w %q, must be one of: file, sqlite, memory", ErrUnknownBackend, backend)
}

// ValidateKey reports whether key can be used with every backend.
func ValidateKey(key string) error {
	if key == "" || key == "." || key == ".." {
		return fmt.Errorf("%w %q", ErrInvalidKey, key)
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		valid := (c >= 'A' && c <= 'Z') ||
			(c >= 'a' && c <= 'z') ||
			(c >= '0' && c <= '9') ||
			c == '.' || c == '_' || c == '-'
		if !valid {
			return fmt.Errorf("%w %q", ErrInvalidKey, key)
		}
	}
	return nil
}
