package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/traP-jp/sisyphus/internal/ledger"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateRequest    = errors.New("duplicate request")
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id      TEXT PRIMARY KEY,
	name    TEXT NOT NULL,
	balance BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS users (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS transactions (
	id          TEXT PRIMARY KEY,
	request_id  TEXT UNIQUE,
	amount      BIGINT NOT NULL,
	type        TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	project_id  TEXT NOT NULL,
	description TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS bills (
	id          TEXT PRIMARY KEY,
	amount      BIGINT NOT NULL,
	user_id     TEXT NOT NULL,
	description TEXT,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at  TIMESTAMPTZ NOT NULL
);
`

type Store struct {
	db        *pgxpool.Pool
	projectID string
}

func NewStore(connString, projectID string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &Store{db: pool, projectID: projectID}, nil
}

func (s *Store) Close() {
	s.db.Close()
}

// Bootstrap creates the schema and seeds the project account and the
// given users when they are not present yet.
func (s *Store) Bootstrap(ctx context.Context, projectName string, balance int64, users []string) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}

	_, err := s.db.Exec(ctx,
		"INSERT INTO projects (id, name, balance) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING",
		s.projectID, projectName, balance)
	if err != nil {
		return fmt.Errorf("project seed failed: %w", err)
	}

	for _, u := range users {
		_, err := s.db.Exec(ctx,
			"INSERT INTO users (id, name) VALUES ($1, $1) ON CONFLICT (id) DO NOTHING", u)
		if err != nil {
			return fmt.Errorf("user seed failed: %w", err)
		}
	}
	return nil
}

// GetProject returns the seeded project account.
func (s *Store) GetProject(ctx context.Context) (*ledger.Project, error) {
	var p ledger.Project
	err := s.db.QueryRow(ctx,
		"SELECT id, name, balance FROM projects WHERE id = $1", s.projectID).
		Scan(&p.ID, &p.Name, &p.Balance)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateTransaction applies one project-to-user transfer. The request_id
// unique constraint is the idempotency guard: a re-sent id aborts with
// ErrDuplicateRequest instead of moving points twice.
func (s *Store) CreateTransaction(ctx context.Context, req ledger.CreateTransactionRequest) (*ledger.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)", req.ToUser).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	var balance int64
	err = tx.QueryRow(ctx, "SELECT balance FROM projects WHERE id = $1 FOR UPDATE", s.projectID).Scan(&balance)
	if err != nil {
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}
	if balance < req.Amount {
		return nil, ErrInsufficientBalance
	}

	txn := ledger.Transaction{
		ID:          uuid.NewString(),
		Amount:      req.Amount,
		Type:        "TRANSFER",
		UserID:      req.ToUser,
		UserName:    req.ToUser,
		ProjectID:   s.projectID,
		Description: req.Description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	var requestID *string
	if req.RequestID != "" {
		requestID = &req.RequestID
	}
	_, err = tx.Exec(ctx,
		"INSERT INTO transactions (id, request_id, amount, type, user_id, project_id, description) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		txn.ID, requestID, txn.Amount, txn.Type, txn.UserID, txn.ProjectID, txn.Description)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateRequest
		}
		return nil, fmt.Errorf("transaction insert failed: %w", err)
	}

	_, err = tx.Exec(ctx, "UPDATE projects SET balance = balance - $1 WHERE id = $2", req.Amount, s.projectID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return &txn, nil
}

// CreateBill records a pending bill and hands out its payment URL.
// Settlement happens on the hosted page, which this mock does not serve.
func (s *Store) CreateBill(ctx context.Context, req ledger.CreateBillRequest, paymentBase string) (*ledger.CreateBillResponse, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)", req.TargetUser).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	billID := uuid.NewString()
	expiresAt := time.Now().UTC().Add(48 * time.Hour)
	_, err := s.db.Exec(ctx,
		"INSERT INTO bills (id, amount, user_id, description, status, expires_at) VALUES ($1, $2, $3, $4, 'PENDING', $5)",
		billID, req.Amount, req.TargetUser, req.Description, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("bill insert failed: %w", err)
	}

	return &ledger.CreateBillResponse{
		BillID:     billID,
		PaymentURL: fmt.Sprintf("%s/pay/%s", paymentBase, billID),
		ExpiresAt:  expiresAt.Format(time.RFC3339),
	}, nil
}
