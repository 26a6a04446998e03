package db

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// ---------------------------------------------------------------------------
// accounts
// ---------------------------------------------------------------------------

const createAccount = `INSERT INTO accounts (id, email, password_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`

type CreateAccountParams struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    int64
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) error {
	_, err := q.db.ExecContext(ctx, createAccount, arg.ID, arg.Email, arg.PasswordHash, arg.CreatedAt, arg.CreatedAt)
	return err
}

const getAccountByEmail = `SELECT id, email, password_hash, created_at, updated_at FROM accounts WHERE email = ?`

func (q *Queries) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	row := q.db.QueryRowContext(ctx, getAccountByEmail, email)
	var i Account
	err := row.Scan(&i.ID, &i.Email, &i.PasswordHash, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const getAccountByID = `SELECT id, email, password_hash, created_at, updated_at FROM accounts WHERE id = ?`

func (q *Queries) GetAccountByID(ctx context.Context, id string) (Account, error) {
	row := q.db.QueryRowContext(ctx, getAccountByID, id)
	var i Account
	err := row.Scan(&i.ID, &i.Email, &i.PasswordHash, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const updateAccountPasswordHash = `UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`

type UpdateAccountPasswordHashParams struct {
	PasswordHash string
	UpdatedAt    int64
	ID           string
}

func (q *Queries) UpdateAccountPasswordHash(ctx context.Context, arg UpdateAccountPasswordHashParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateAccountPasswordHash, arg.PasswordHash, arg.UpdatedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const updateAccountEmail = `UPDATE accounts SET email = ?, updated_at = ? WHERE id = ?`

type UpdateAccountEmailParams struct {
	Email     string
	UpdatedAt int64
	ID        string
}

func (q *Queries) UpdateAccountEmail(ctx context.Context, arg UpdateAccountEmailParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateAccountEmail, arg.Email, arg.UpdatedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ---------------------------------------------------------------------------
// split_tokens
// ---------------------------------------------------------------------------

const upsertSplitToken = `INSERT INTO split_tokens (selector, owner_id, purpose, verifier_hash, expires_at, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(owner_id, purpose) DO UPDATE SET
    selector = excluded.selector,
    verifier_hash = excluded.verifier_hash,
    expires_at = excluded.expires_at,
    metadata = excluded.metadata,
    created_at = excluded.created_at`

type UpsertSplitTokenParams struct {
	Selector     string
	OwnerID      string
	Purpose      string
	VerifierHash string
	ExpiresAt    sql.NullInt64
	Metadata     string
	CreatedAt    int64
}

func (q *Queries) UpsertSplitToken(ctx context.Context, arg UpsertSplitTokenParams) error {
	_, err := q.db.ExecContext(ctx, upsertSplitToken,
		arg.Selector,
		arg.OwnerID,
		arg.Purpose,
		arg.VerifierHash,
		arg.ExpiresAt,
		arg.Metadata,
		arg.CreatedAt,
	)
	return err
}

const getSplitTokenBySelector = `SELECT selector, owner_id, purpose, verifier_hash, expires_at, metadata, created_at
FROM split_tokens WHERE selector = ?`

func (q *Queries) GetSplitTokenBySelector(ctx context.Context, selector string) (SplitToken, error) {
	row := q.db.QueryRowContext(ctx, getSplitTokenBySelector, selector)
	var i SplitToken
	err := row.Scan(&i.Selector, &i.OwnerID, &i.Purpose, &i.VerifierHash, &i.ExpiresAt, &i.Metadata, &i.CreatedAt)
	return i, err
}

const getSplitTokenByOwner = `SELECT selector, owner_id, purpose, verifier_hash, expires_at, metadata, created_at
FROM split_tokens WHERE owner_id = ? AND purpose = ?`

type GetSplitTokenByOwnerParams struct {
	OwnerID string
	Purpose string
}

func (q *Queries) GetSplitTokenByOwner(ctx context.Context, arg GetSplitTokenByOwnerParams) (SplitToken, error) {
	row := q.db.QueryRowContext(ctx, getSplitTokenByOwner, arg.OwnerID, arg.Purpose)
	var i SplitToken
	err := row.Scan(&i.Selector, &i.OwnerID, &i.Purpose, &i.VerifierHash, &i.ExpiresAt, &i.Metadata, &i.CreatedAt)
	return i, err
}

const deleteSplitToken = `DELETE FROM split_tokens WHERE selector = ?`

func (q *Queries) DeleteSplitToken(ctx context.Context, selector string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteSplitToken, selector)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteSplitTokensByOwner = `DELETE FROM split_tokens WHERE owner_id = ?`

func (q *Queries) DeleteSplitTokensByOwner(ctx context.Context, ownerID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteSplitTokensByOwner, ownerID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteExpiredSplitTokens = `DELETE FROM split_tokens WHERE expires_at IS NOT NULL AND expires_at <= ?`

func (q *Queries) DeleteExpiredSplitTokens(ctx context.Context, now int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteExpiredSplitTokens, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ---------------------------------------------------------------------------
// plans
// ---------------------------------------------------------------------------

const createPlan = `INSERT INTO plans (id, name, constraints, capabilities, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`

type CreatePlanParams struct {
	ID           string
	Name         string
	Constraints  string
	Capabilities string
	CreatedAt    int64
}

func (q *Queries) CreatePlan(ctx context.Context, arg CreatePlanParams) error {
	_, err := q.db.ExecContext(ctx, createPlan, arg.ID, arg.Name, arg.Constraints, arg.Capabilities, arg.CreatedAt, arg.CreatedAt)
	return err
}

const getPlan = `SELECT id, name, constraints, capabilities, created_at, updated_at FROM plans WHERE id = ?`

func (q *Queries) GetPlan(ctx context.Context, id string) (Plan, error) {
	row := q.db.QueryRowContext(ctx, getPlan, id)
	var i Plan
	err := row.Scan(&i.ID, &i.Name, &i.Constraints, &i.Capabilities, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const listPlans = `SELECT id, name, constraints, capabilities, created_at, updated_at FROM plans ORDER BY name`

func (q *Queries) ListPlans(ctx context.Context) ([]Plan, error) {
	rows, err := q.db.QueryContext(ctx, listPlans)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Plan
	for rows.Next() {
		var i Plan
		if err := rows.Scan(&i.ID, &i.Name, &i.Constraints, &i.Capabilities, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updatePlan = `UPDATE plans SET constraints = ?, capabilities = ?, updated_at = ? WHERE id = ?`

type UpdatePlanParams struct {
	Constraints  string
	Capabilities string
	UpdatedAt    int64
	ID           string
}

func (q *Queries) UpdatePlan(ctx context.Context, arg UpdatePlanParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updatePlan, arg.Constraints, arg.Capabilities, arg.UpdatedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
