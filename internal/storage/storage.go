// Package storage holds the device-local key/value stores used to persist the
// chat session id and last shared location across restarts.
package storage

import "errors"

// ErrNotFound indicates a requested key does not exist.
var ErrNotFound = errors.New("record not found")
