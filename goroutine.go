// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"github.com/joeycumines/goroutineid"
)

// getGoroutineID returns the current goroutine's ID, which keys loop
// ownership and the per-goroutine thread contexts.
func getGoroutineID() uint64 {
	return uint64(goroutineid.Get())
}
