//go:build !windows

package hook

// Replayer is a placeholder on platforms without input injection.
type Replayer struct{}

// ReplayCapsLock always fails with ErrUnsupported.
func (Replayer) ReplayCapsLock() error {
	return ErrUnsupported
}

func asyncKeyDown(uint32) bool {
	return false
}
