package cloudsync

import (
	"context"
	"fmt"

	"github.com/smallbiznis/storeledger/internal/outbox"
	"go.uber.org/zap"
)

// Apply replays one queued local change against its remote table. Replaying
// the same or an older version is a no-op.
func (g *Gateway) Apply(ctx context.Context, op outbox.Operation) error {
	if !g.Enabled() {
		return ErrRemoteNotConfigured
	}
	entry, ok := registry[op.Table]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, op.Table)
	}

	applied, err := entry.apply(ctx, g.remote.DB, op.Payload)
	if err != nil {
		return fmt.Errorf("apply %s %s v%d: %w", op.Table, op.EntityID, op.Version, err)
	}
	if !applied {
		g.log.Debug("remote row already at or past version",
			zap.String("table", op.Table),
			zap.String("entity_id", op.EntityID.String()),
			zap.Int64("version", op.Version),
		)
	}
	return nil
}
