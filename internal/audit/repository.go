package audit

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WindowParams selects one page of the timeline.
type WindowParams struct {
	QueryParams
	Offset int32
	Limit  int32
}

// QueryParams are the optional timeline filters. Invalid values match
// everything.
type QueryParams struct {
	FromAt pgtype.Timestamptz
	ToAt   pgtype.Timestamptz
	Actor  pgtype.Text
	Entity pgtype.Text
	Action pgtype.Text
}

// PGRepository reads audit_log.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineSelect = `
SELECT occurred_at, COALESCE(actor_id, ''), action, entity, entity_id, COALESCE(meta::text, '')
FROM audit_log
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::text IS NULL OR actor_id = $3)
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR action = $5)
ORDER BY occurred_at DESC, id DESC`

// Window returns one page of entries, newest first.
func (r *PGRepository) Window(ctx context.Context, arg WindowParams) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineSelect+` OFFSET $6 LIMIT $7`,
		arg.FromAt, arg.ToAt, arg.Actor, arg.Entity, arg.Action, arg.Offset, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectTimeline(rows)
}

// All returns every matching entry, newest first.
func (r *PGRepository) All(ctx context.Context, arg QueryParams) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineSelect, arg.FromAt, arg.ToAt, arg.Actor, arg.Entity, arg.Action)
	if err != nil {
		return nil, err
	}
	return collectTimeline(rows)
}

func collectTimeline(rows pgx.Rows) ([]TimelineRow, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			out TimelineRow
			at  pgtype.Timestamptz
		)
		if err := row.Scan(&at, &out.Actor, &out.Action, &out.Entity, &out.EntityID, &out.Meta); err != nil {
			return TimelineRow{}, err
		}
		if at.Valid {
			out.At = at.Time
		}
		return out, nil
	})
}

var _ Repository = (*PGRepository)(nil)
