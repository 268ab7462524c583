// Package db provides PostgreSQL-backed repository implementations for the
// postpilot scheduling core. All repositories accept a DBTX interface that is
// satisfied by both *pgxpool.Pool (for normal queries) and pgx.Tx (for
// transactional execution), enabling clean transaction support.
//
// Tables:
//
//	accounts(id, name, platform, timezone, posting_window_start,
//	         posting_window_end, min_posts_per_day, max_posts_per_day,
//	         active, created_at, updated_at)
//	jobs(id, account_id, scheduled_for, status, idea, scripts, assets,
//	     final_video_url, platform_media_id, error, analytics,
//	     created_at, updated_at)
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}
