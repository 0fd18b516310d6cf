// Copyright 2025 CyberSentinel
// SPDX-License-Identifier: Apache-2.0
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/Vansh-Raja/cybersentinel-dlp/shared/logger"
	"github.com/Vansh-Raja/cybersentinel-dlp/shared/types"
)

// Open connects to Postgres and verifies the connection
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// EventStore persists processed events and action audit records. Events
// are stored as JSONB documents with a few promoted columns for
// filtering; the document stays the source of truth.
type EventStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewEventStore creates a store over an open connection
func NewEventStore(db *sql.DB, log *logger.Logger) *EventStore {
	return &EventStore{db: db, log: log}
}

// InitSchema creates the event and audit tables when missing
func (s *EventStore) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dlp_events (
			id          BIGSERIAL PRIMARY KEY,
			event_id    TEXT NOT NULL UNIQUE,
			agent_id    TEXT NOT NULL,
			event_type  TEXT NOT NULL,
			severity    TEXT NOT NULL,
			blocked     BOOLEAN NOT NULL DEFAULT FALSE,
			occurred_at TIMESTAMPTZ NOT NULL,
			received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			doc         JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dlp_events_agent ON dlp_events (agent_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_dlp_events_severity ON dlp_events (severity, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS dlp_audit (
			id          BIGSERIAL PRIMARY KEY,
			event_id    TEXT NOT NULL,
			agent_id    TEXT NOT NULL,
			action      TEXT NOT NULL,
			details     JSONB,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dlp_audit_event ON dlp_audit (event_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: init schema: %w", err)
		}
	}
	return nil
}

// AppendEvent upserts a processed event. Re-delivery from an agent retry
// overwrites the earlier document rather than duplicating it.
func (s *EventStore) AppendEvent(ctx context.Context, ev *types.Event) error {
	doc, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("storage: marshal event: %w", err)
	}

	const query = `
		INSERT INTO dlp_events (event_id, agent_id, event_type, severity, blocked, occurred_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO UPDATE
		SET severity = EXCLUDED.severity,
		    blocked  = EXCLUDED.blocked,
		    doc      = EXCLUDED.doc`

	_, err = s.db.ExecContext(ctx, query,
		ev.EventID, ev.Agent.ID, string(ev.Type), string(ev.Severity),
		ev.Blocked, ev.Timestamp, doc)
	if err != nil {
		return fmt.Errorf("storage: append event: %w", err)
	}
	return nil
}

// RecordAction appends an immutable audit record for an executed action
func (s *EventStore) RecordAction(ctx context.Context, ev *types.Event, action string, details map[string]interface{}) error {
	var detailsJSON []byte
	if len(details) > 0 {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return fmt.Errorf("storage: marshal audit details: %w", err)
		}
	}

	const query = `
		INSERT INTO dlp_audit (event_id, agent_id, action, details)
		VALUES ($1, $2, $3, $4)`

	_, err := s.db.ExecContext(ctx, query, ev.EventID, ev.Agent.ID, action, detailsJSON)
	if err != nil {
		return fmt.Errorf("storage: record action: %w", err)
	}
	return nil
}

// QueryFilter narrows QueryEvents. Zero-valued fields are ignored.
type QueryFilter struct {
	AgentID  string
	Severity types.Severity
	Blocked  *bool
	From     time.Time
	To       time.Time
	Limit    int
}

// QueryEvents returns stored events matching the filter, newest first
func (s *EventStore) QueryEvents(ctx context.Context, f QueryFilter) ([]*types.Event, error) {
	var where []string
	var args []interface{}

	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if f.AgentID != "" {
		add("agent_id = $%d", f.AgentID)
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if f.Blocked != nil {
		add("blocked = $%d", *f.Blocked)
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at <= $%d", f.To)
	}

	query := "SELECT doc FROM dlp_events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query events: %w", err)
	}
	defer rows.Close()

	var out []*types.Event
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("storage: scan event: %w", err)
		}
		ev := &types.Event{}
		if err := json.Unmarshal(doc, ev); err != nil {
			s.log.Warn("", "", "skipping unparsable stored event", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
