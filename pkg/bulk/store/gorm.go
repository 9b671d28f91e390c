package store

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/bulkflow/pkg/bulk"
	"github.com/hashicorp-forge/bulkflow/pkg/models"
)

// GormStore keeps statuses in the bulk_status table.
type GormStore struct {
	db     *gorm.DB
	logger hclog.Logger
}

// NewGormStore returns a store on db. The schema must already exist.
func NewGormStore(db *gorm.DB, logger hclog.Logger) *GormStore {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &GormStore{db: db, logger: logger.Named("gorm-status-store")}
}

// GetStatus implements bulk.StatusStore.
func (s *GormStore) GetStatus(ctx context.Context, id string) (*bulk.Status, error) {
	row, err := models.GetBulkStatus(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("failed to read status %s: %w", id, err)
	}
	if row == nil {
		return bulk.UnknownStatus(id), nil
	}

	st, err := bulk.StatusCodec.Decode(row.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored status %s: %w", id, err)
	}
	return st, nil
}

// SetStatus implements bulk.StatusStore.
func (s *GormStore) SetStatus(ctx context.Context, st *bulk.Status) ([]byte, error) {
	if st.Delta {
		return nil, bulk.ErrDeltaNotPersistable
	}

	payload, err := bulk.StatusCodec.Encode(st)
	if err != nil {
		return nil, err
	}

	row := &models.BulkStatus{
		CommandID:     st.ID,
		Action:        st.Action,
		State:         st.State.String(),
		Username:      st.Username,
		Total:         st.TotalCount(),
		Processed:     st.ProcessedCount(),
		HasError:      st.HasError != nil && *st.HasError,
		Payload:       models.JSON(payload),
		SubmitTime:    st.SubmitTime,
		CompletedTime: st.CompletedTime,
	}
	if err := row.Upsert(s.db.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("failed to write status %s: %w", st.ID, err)
	}

	s.logger.Trace("status stored", "command_id", st.ID, "state", st.State)
	return payload, nil
}

// ListByState returns up to limit statuses in state, most recently updated
// first.
func (s *GormStore) ListByState(ctx context.Context, state bulk.State, limit int) ([]*bulk.Status, error) {
	rows, err := models.FindBulkStatusesByState(s.db.WithContext(ctx), state.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list statuses: %w", err)
	}

	out := make([]*bulk.Status, 0, len(rows))
	for _, row := range rows {
		st, err := bulk.StatusCodec.Decode(row.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode stored status %s: %w", row.CommandID, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// Close is a no-op; the connection belongs to the caller.
func (s *GormStore) Close() error {
	return nil
}
