package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/storeledger/internal/clock"
	"github.com/smallbiznis/storeledger/pkg/db"
	"github.com/smallbiznis/storeledger/pkg/db/option"
	"github.com/smallbiznis/storeledger/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxAttempts is how many failed replays an operation gets before it is parked as FAILED.
const MaxAttempts = 10

var ErrEmptyTable = errors.New("outbox_empty_table")

type Params struct {
	fx.In

	DB    *db.Local
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  repository.Repository[Operation]
}

func NewService(p Params) (*Service, error) {
	if err := p.DB.AutoMigrate(&Operation{}); err != nil {
		return nil, fmt.Errorf("migrate outbox: %w", err)
	}
	return &Service{
		db:    p.DB.DB,
		log:   p.Log.Named("outbox.service"),
		clock: p.Clock,
		repo:  repository.ProvideStore[Operation](p.DB.DB),
	}, nil
}

// Enqueue records the given row version for replay. Re-enqueueing the same
// table/id/version pair is ignored.
func (s *Service) Enqueue(ctx context.Context, table string, id snowflake.ID, version int64, payload any) error {
	if table == "" {
		return ErrEmptyTable
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode outbox payload: %w", err)
	}

	now := s.clock.Now()
	op := Operation{
		ID:        ulid.Make().String(),
		Table:     table,
		EntityID:  id,
		Version:   version,
		DedupeKey: DedupeKey(table, id, version),
		Payload:   datatypes.JSON(raw),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedupe_key"}}, DoNothing: true}).
		Create(&op).Error
	if err != nil && !db.IsDuplicateKeyErr(err) {
		return err
	}
	return nil
}

// Pending returns up to limit operations in enqueue order.
func (s *Service) Pending(ctx context.Context, limit int) ([]*Operation, error) {
	return s.repo.Find(ctx, &Operation{Status: StatusPending},
		option.OrderBy("id asc"),
		option.Limit(limit),
	)
}

func (s *Service) Backlog(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx, &Operation{Status: StatusPending})
}

// HasPending reports whether any version of the row is still waiting for replay.
func (s *Service) HasPending(ctx context.Context, table string, id snowflake.ID) (bool, error) {
	op, err := s.repo.FindOne(ctx, &Operation{Table: table, EntityID: id, Status: StatusPending})
	if err != nil {
		return false, err
	}
	return op != nil, nil
}

// PendingEntities returns every row that still has unreplayed local changes.
func (s *Service) PendingEntities(ctx context.Context) (map[EntityKey]struct{}, error) {
	var rows []Operation
	err := s.db.WithContext(ctx).
		Model(&Operation{}).
		Select("entity_table", "entity_id").
		Where("status = ?", StatusPending).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[EntityKey]struct{}, len(rows))
	for _, row := range rows {
		out[EntityKey{Table: row.Table, ID: row.EntityID}] = struct{}{}
	}
	return out, nil
}

// DirtyFunc returns a predicate over rows that still have pending operations.
// A nil Service or an empty queue yields a nil predicate.
func (s *Service) DirtyFunc(ctx context.Context) (func(table string, id snowflake.ID) bool, error) {
	if s == nil {
		return nil, nil
	}
	pending, err := s.PendingEntities(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	return func(table string, id snowflake.ID) bool {
		_, ok := pending[EntityKey{Table: table, ID: id}]
		return ok
	}, nil
}

func (s *Service) MarkDispatched(ctx context.Context, id string) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).
		Model(&Operation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        StatusDispatched,
			"dispatched_at": now,
			"updated_at":    now,
		}).Error
}

// MarkFailed counts a failed replay; the operation stays pending until MaxAttempts.
func (s *Service) MarkFailed(ctx context.Context, op *Operation, cause error) error {
	attempts := op.Attempts + 1
	status := StatusPending
	if attempts >= MaxAttempts {
		status = StatusFailed
		s.log.Warn("outbox operation parked",
			zap.String("operation_id", op.ID),
			zap.String("dedupe_key", op.DedupeKey),
			zap.Error(cause),
		)
	}

	return s.db.WithContext(ctx).
		Model(&Operation{}).
		Where("id = ?", op.ID).
		Updates(map[string]any{
			"status":     status,
			"attempts":   attempts,
			"last_error": cause.Error(),
			"updated_at": s.clock.Now(),
		}).Error
}
