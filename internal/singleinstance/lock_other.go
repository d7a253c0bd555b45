//go:build !windows

package singleinstance

// Lock is a no-op where the keyboard hook cannot run anyway.
type Lock struct{}

// TryLock always succeeds on this platform.
func TryLock(_ string) (*Lock, error) { return &Lock{}, nil }

// Release is a no-op on this platform.
func (l *Lock) Release() error { return nil }

// DefaultMutexName returns an empty string on this platform.
func DefaultMutexName() string { return "" }
