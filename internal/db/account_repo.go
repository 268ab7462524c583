package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"postpilot/internal/types"
)

// accountColumns is the canonical column list for account queries. Scan order
// must match scanAccount.
const accountColumns = `id, name, platform, timezone, posting_window_start,
	posting_window_end, min_posts_per_day, max_posts_per_day, active,
	created_at, updated_at`

// AccountRepository provides read access to the accounts table. Accounts are
// written by external account-management tooling; the scheduling core only
// reads them.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository creates a new AccountRepository backed by the given
// database connection (pool or transaction).
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// ListActive returns all active accounts, oldest first. Returns an empty
// slice (not nil) when no accounts are active.
func (r *AccountRepository) ListActive(ctx context.Context) ([]*types.Account, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts
		 WHERE active = TRUE
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query active accounts", err)
	}
	defer rows.Close()

	accounts := []*types.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan account", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating accounts", err)
	}

	return accounts, nil
}

// GetByID returns a single account. Returns a not-found AppError when no
// account exists with the given ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*types.Account, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts
		 WHERE id = $1`,
		id,
	)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found: "+id, err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get account", err)
	}

	return account, nil
}

// scanAccount scans one account row in accountColumns order.
func scanAccount(row pgx.Row) (*types.Account, error) {
	var a types.Account
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Platform,
		&a.Timezone,
		&a.PostingWindowStart,
		&a.PostingWindowEnd,
		&a.MinPostsPerDay,
		&a.MaxPostsPerDay,
		&a.Active,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
