package sqlite

import (
	"context"
	"fmt"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// Append records one saga version. Re-appending an existing (saga, version) is a no-op,
// so redelivering the same terminal record never duplicates history.
func (s *Store) Append(ctx context.Context, entry domain.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO saga_history
    (saga_id, version, status, current_state, active_index, event, snapshot, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SagaID, entry.Version, string(entry.Status), entry.Current, entry.Active,
		entry.Event, entry.Snapshot, toMillis(entry.At),
	)
	if err != nil {
		return fmt.Errorf("append history %s@%d: %w", entry.SagaID, entry.Version, err)
	}
	return nil
}

// History returns the entries of a saga ordered by version.
func (s *Store) History(ctx context.Context, sagaID string) ([]domain.HistoryEntry, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT saga_id, version, status, current_state, active_index, event, snapshot, recorded_at
FROM saga_history WHERE saga_id = ? ORDER BY version`, sagaID)
	if err != nil {
		return nil, fmt.Errorf("query history %s: %w", sagaID, err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var (
			e      domain.HistoryEntry
			status string
			at     int64
		)
		if err := rows.Scan(&e.SagaID, &e.Version, &status, &e.Current, &e.Active, &e.Event, &e.Snapshot, &at); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Status = domain.Status(status)
		e.At = fromMillis(at)
		out = append(out, e)
	}
	return out, rows.Err()
}
