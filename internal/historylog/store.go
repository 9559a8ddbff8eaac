// Package historylog best-effort write-through logs completed /execute
// results to Postgres for operator debugging and audit, independent of the
// in-memory DebugSession store (internal/debugsvc). It is a pure append
// log: nothing ever reads it back through the API. Grounded on
// apps/audit-service's append-only consumer pattern and
// apps/abc-service/cmd/api/main.go's pgxpool+otelpgx wiring.
package historylog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS execution_history (
	id          BIGSERIAL PRIMARY KEY,
	language    TEXT NOT NULL,
	is_error    BOOLEAN NOT NULL,
	event_count INTEGER NOT NULL,
	document    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertSQL = `
INSERT INTO execution_history (language, is_error, event_count, document, created_at)
VALUES ($1, $2, $3, $4, $5)`

// Store appends completed execution results to Postgres. A nil Pool makes
// every Record call a no-op, so the service runs with no PG_URL configured.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New wraps an already-connected pool. Pass a nil pool to disable history
// logging entirely.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// EnsureSchema creates the execution_history table if it does not already
// exist. Safe to call on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, createTableSQL)
	return err
}

// Record appends one execution outcome. Failures are logged and swallowed,
// so history logging cannot change the HTTP response.
func (s *Store) Record(ctx context.Context, language string, isError bool, eventCount int, document any) {
	if s == nil || s.pool == nil {
		return
	}
	body, err := json.Marshal(document)
	if err != nil {
		s.logger.Error("failed to encode execution document for history log", zap.Error(err))
		return
	}
	_, err = s.pool.Exec(ctx, insertSQL, language, isError, eventCount, body, time.Now())
	if err != nil {
		s.logger.Warn("failed to append execution history row", zap.Error(err))
	}
}

// Close releases the underlying pool, if any.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}
