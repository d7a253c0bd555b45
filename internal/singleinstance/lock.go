// Package singleinstance keeps one capschord daemon per user. Two daemons
// would install two hooks and replay every Caps Lock tap twice.
package singleinstance

import "errors"

// ErrAlreadyRunning is returned by TryLock when another instance holds the lock.
var ErrAlreadyRunning = errors.New("another capschord instance is already running")
