package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/traP-jp/sisyphus/internal/config"
	"github.com/traP-jp/sisyphus/internal/ledger"
)

// PointAmount is the fixed size of every transfer, in both directions.
// The amount is never caller-supplied.
const PointAmount = 10

const (
	payDescription  = "points sent from the earn button"
	billDescription = "bill created from the send button"
)

var (
	ErrProjectNotConfigured = errors.New("LEDGER_PROJECT_ID is not configured")
	ErrNoIdentity           = errors.New("could not determine the current user")
	ErrInsufficientBalance  = errors.New("the project balance would go negative")
	ErrDuplicateRequest     = errors.New("duplicate request")
	ErrInvalidRequest       = errors.New("user not found or amount invalid")
	ErrSendFailed           = errors.New("failed to send points")
	ErrBillFailed           = errors.New("failed to create the bill")
)

// LedgerClient is the slice of the ledger API the service needs.
type LedgerClient interface {
	GetProjectInfoByID(ctx context.Context, projectID string) (*ledger.Project, error)
	CreateTransaction(ctx context.Context, toUser string, amount int64, description, requestID string) (*ledger.Transaction, error)
	CreateBill(ctx context.Context, targetUser string, amount int64, successURL, cancelURL, description string) (*ledger.CreateBillResponse, error)
}

// BalanceCache invalidates any cached view of the project balance after
// a mutating operation succeeds.
type BalanceCache interface {
	Invalidate(ctx context.Context) error
}

// PointService owns the three business operations on top of the ledger:
// read the project balance, pay points to a user, bill points from one.
type PointService struct {
	cfg    *config.Config
	ledger LedgerClient
	cache  BalanceCache
}

func NewPointService(cfg *config.Config, lc LedgerClient, cache BalanceCache) *PointService {
	return &PointService{cfg: cfg, ledger: lc, cache: cache}
}

// GetProjectBalance fetches the project account from the ledger.
func (s *PointService) GetProjectBalance(ctx context.Context) (*ledger.Project, error) {
	if s.cfg.ProjectID == "" {
		return nil, ErrProjectNotConfigured
	}
	return s.ledger.GetProjectInfoByID(ctx, s.cfg.ProjectID)
}

// PayPoints transfers the fixed amount to user. Every call mints a fresh
// idempotency key, so two calls are two distinct transfers; only a
// network-level retry of the same request is deduplicated by the ledger.
func (s *PointService) PayPoints(ctx context.Context, user string) (*ledger.Transaction, error) {
	if user == "" {
		return nil, ErrNoIdentity
	}

	requestID := uuid.NewString()
	txn, err := s.ledger.CreateTransaction(ctx, user, PointAmount, payDescription, requestID)
	if err != nil {
		var apiErr *ledger.APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.StatusCode == 400:
			return nil, ErrInsufficientBalance
		case errors.As(err, &apiErr) && apiErr.StatusCode == 409:
			return nil, ErrDuplicateRequest
		case errors.As(err, &apiErr), errors.Is(err, ledger.ErrTokenNotConfigured):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
		}
	}

	s.invalidateBalance(ctx)
	return txn, nil
}

// RequestPoints creates a bill asking user to pay the fixed amount to
// the project. The caller redirects the user to the returned PaymentURL;
// both redirect targets point back at returnBaseURL.
func (s *PointService) RequestPoints(ctx context.Context, user, returnBaseURL string) (*ledger.CreateBillResponse, error) {
	if user == "" {
		return nil, ErrNoIdentity
	}

	returnURL := returnBaseURL + "/"
	bill, err := s.ledger.CreateBill(ctx, user, PointAmount, returnURL, returnURL, billDescription)
	if err != nil {
		var apiErr *ledger.APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.StatusCode == 400:
			return nil, ErrInvalidRequest
		case errors.As(err, &apiErr), errors.Is(err, ledger.ErrTokenNotConfigured):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrBillFailed, err)
		}
	}

	s.invalidateBalance(ctx)
	return bill, nil
}

func (s *PointService) invalidateBalance(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		log.Warn().Err(err).Msg("balance cache invalidation failed")
	}
}
