package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository on PostgreSQL. Entry ids come from a
// bigserial sequence and timestamps from the server clock, so concurrent
// writers never collide on id and ordering stays monotonic. The table
// has no UPDATE or DELETE path anywhere in this codebase.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert appends one entry and returns it with the minted id/timestamp.
func (r *PGRepository) Insert(ctx context.Context, entry NewEntry) (Entry, error) {
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return Entry{}, err
	}
	var targetID pgtype.Int8
	if entry.TargetID != nil {
		targetID = pgtype.Int8{Int64: *entry.TargetID, Valid: true}
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO audit_logs (action, actor_id, target_id, meta, ip_address, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 RETURNING id, created_at`,
		string(entry.Action), entry.ActorID, targetID, meta, optionalText(entry.IPAddress),
	)
	written := Entry{
		Action:    entry.Action,
		ActorID:   entry.ActorID,
		TargetID:  entry.TargetID,
		Meta:      entry.Meta,
		IPAddress: entry.IPAddress,
	}
	var createdAt pgtype.Timestamptz
	if err := row.Scan(&written.ID, &createdAt); err != nil {
		return Entry{}, err
	}
	if createdAt.Valid {
		written.CreatedAt = createdAt.Time
	}
	return written, nil
}

// Window returns one page, newest first with ids as the tie-break.
func (r *PGRepository) Window(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, action, actor_id, target_id, meta, ip_address, created_at
		 FROM audit_logs
		 WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		   AND ($2::timestamptz IS NULL OR created_at <= $2)
		   AND ($3::text IS NULL OR action = $3)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $4 OFFSET $5`,
		toPgTime(filters.From), toPgTime(filters.To), optionalText(string(filters.Action)), limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			action    string
			targetID  pgtype.Int8
			meta      []byte
			ip        pgtype.Text
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&e.ID, &action, &e.ActorID, &targetID, &meta, &ip, &createdAt); err != nil {
			return nil, err
		}
		e.Action = ActionType(action)
		if targetID.Valid {
			id := targetID.Int64
			e.TargetID = &id
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, err
			}
		}
		if ip.Valid {
			e.IPAddress = ip.String
		}
		if createdAt.Valid {
			e.CreatedAt = createdAt.Time
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of entries matching the filters.
func (r *PGRepository) Count(ctx context.Context, filters Filters) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_logs
		 WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		   AND ($2::timestamptz IS NULL OR created_at <= $2)
		   AND ($3::text IS NULL OR action = $3)`,
		toPgTime(filters.From), toPgTime(filters.To), optionalText(string(filters.Action)),
	).Scan(&total)
	return total, err
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}

var _ Repository = (*PGRepository)(nil)
