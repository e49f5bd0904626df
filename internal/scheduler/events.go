package scheduler

import (
	"context"
	"fmt"

	"filepipe/pkg/errors"
	"filepipe/pkg/models"
)

// HandleSourceEvent keeps the trigger set in sync with source definition
// changes published by whatever manages the source catalog.
func (m *Manager) HandleSourceEvent(ctx context.Context, msg *models.Envelope) error {
	var event models.SourceChanged
	if err := msg.Decode(&event); err != nil {
		return err
	}

	switch event.ChangeType {
	case models.SourceCreated, models.SourceUpdated:
		src, err := m.sources.Get(ctx, event.SourceID)
		if errors.IsNotFound(err) {
			// Deleted between publish and consume; drop any trigger we hold.
			m.Unregister(ctx, event.SourceID)
			return nil
		}
		if err != nil {
			return err
		}
		if !src.Active {
			m.Unregister(ctx, src.ID)
			return nil
		}
		return m.Register(ctx, src)
	case models.SourceDeleted:
		m.Unregister(ctx, event.SourceID)
		return nil
	default:
		return fmt.Errorf("unknown source change type: %s", event.ChangeType)
	}
}
