package repositories

import "github.com/wicaksana/gema/domain/entities"

// ConnectivitySink receives every session state transition so the
// controlling platform can mirror device connectivity. Publish must be
// non-blocking from the session's point of view; slow sinks buffer or drop
// on their own side.
type ConnectivitySink interface {
	Publish(deviceID string, state entities.SessionState)
}
