package indexdb

import (
	"context"
	"database/sql"
)

type SessionSummary struct {
	Session   string
	Mode      string
	URL       string
	StartedAt string
	EndedAt   string

	Passes   int
	Creates  int
	Updates  int
	Removes  int
	Connects int
	Losses   int
	Agents   int
	LastTick uint64
}

// Sessions lists session ids, oldest first. Pending writes are flushed first.
func (s *SQLiteIndex) Sessions(ctx context.Context) ([]string, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT session FROM sessions ORDER BY started_at, session`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Summary aggregates one session. Pending writes are flushed first.
func (s *SQLiteIndex) Summary(ctx context.Context, session string) (SessionSummary, error) {
	if err := s.Flush(ctx); err != nil {
		return SessionSummary{}, err
	}
	sum := SessionSummary{Session: session}
	var ended sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT mode,url,started_at,ended_at FROM sessions WHERE session=?`, session).
		Scan(&sum.Mode, &sum.URL, &sum.StartedAt, &ended)
	if err != nil {
		return sum, err
	}
	sum.EndedAt = ended.String

	var lastTick sql.NullInt64
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(creates),0), COALESCE(SUM(updates),0), COALESCE(SUM(removes),0), MAX(tick)
		FROM passes WHERE session=?`, session).
		Scan(&sum.Passes, &sum.Creates, &sum.Updates, &sum.Removes, &lastTick)
	if err != nil {
		return sum, err
	}
	sum.LastTick = uint64(lastTick.Int64)

	err = s.db.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(CASE WHEN kind='connection_established' THEN 1 ELSE 0 END),0),
		COALESCE(SUM(CASE WHEN kind='connection_lost' THEN 1 ELSE 0 END),0)
		FROM connectivity WHERE session=?`, session).
		Scan(&sum.Connects, &sum.Losses)
	if err != nil {
		return sum, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents_seen WHERE session=?`, session).Scan(&sum.Agents)
	return sum, err
}
