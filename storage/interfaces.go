package storage

import (
	"context"

	"bin-dates/models"
)

// StatePublisher is the interface any state sink must satisfy. Sinks only
// receive snapshots; nothing is ever read back from them.
type StatePublisher interface {
	Publish(ctx context.Context, snap models.Snapshot) error
	Close() error
}
