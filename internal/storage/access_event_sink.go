package storage

import (
	"context"
	"fmt"
	"time"
)

// AccessEvent is one analytics record mirroring a successful address
// access. It feeds the API usage dashboards; the Postgres audit log
// remains the authoritative record.
type AccessEvent struct {
	PermissionID string
	AppID        string
	UserID       string
	FieldCount   uint8
	ClientIP     string
	LatencyMS    uint32
	AccessedAt   time.Time
}

// AccessEventSink writes access events to ClickHouse. All writes are
// best-effort: a sink failure must never fail the access itself.
type AccessEventSink struct {
	db *ClickHouseDB
}

// NewAccessEventSink creates a new analytics sink
func NewAccessEventSink(db *ClickHouseDB) *AccessEventSink {
	return &AccessEventSink{db: db}
}

// Record inserts one access event.
func (s *AccessEventSink) Record(ctx context.Context, event *AccessEvent) error {
	query := `
		INSERT INTO access_events (
			permission_id, app_id, user_id, field_count, client_ip, latency_ms, accessed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	err := s.db.Conn().Exec(ctx, query,
		event.PermissionID,
		event.AppID,
		event.UserID,
		event.FieldCount,
		event.ClientIP,
		event.LatencyMS,
		event.AccessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record access event: %w", err)
	}

	return nil
}

// UsageSummary aggregates access counts per app over a time range.
func (s *AccessEventSink) UsageSummary(ctx context.Context, from, to time.Time) (map[string]uint64, error) {
	query := `
		SELECT app_id, count() AS accesses
		FROM access_events
		WHERE accessed_at >= ? AND accessed_at < ?
		GROUP BY app_id
	`

	rows, err := s.db.Conn().Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage summary: %w", err)
	}
	defer rows.Close()

	summary := make(map[string]uint64)
	for rows.Next() {
		var appID string
		var accesses uint64
		if err := rows.Scan(&appID, &accesses); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		summary[appID] = accesses
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage rows: %w", err)
	}

	return summary, nil
}
