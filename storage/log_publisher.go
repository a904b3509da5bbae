package storage

import (
	"context"

	"bin-dates/models"
	"bin-dates/utils"
)

// LogPublisher writes every entity state to the application log.
type LogPublisher struct {
	logger *utils.Logger
}

func NewLogPublisher(logger *utils.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, snap models.Snapshot) error {
	for _, s := range snap.EntityStates() {
		p.logger.Info("[state] %s = %s", s.EntityID, s.State)
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }
