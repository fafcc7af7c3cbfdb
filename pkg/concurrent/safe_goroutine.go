// Package concurrent provides a panic-safe goroutine launcher for the
// coordinator's background fast-store projections, which must never
// take the process down if a projection write panics.
package concurrent

import (
	"runtime/debug"

	"github.com/rs/zerolog/log"
)

// SafeGo runs fn in a new goroutine, recovering any panic and logging
// it with a stack trace instead of crashing the process.
func SafeGo(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic in goroutine")
			}
		}()
		fn()
	}()
}
