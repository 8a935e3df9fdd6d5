package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/genstudio/internal/clock"
	"github.com/smallbiznis/genstudio/internal/config"
	ledgerdomain "github.com/smallbiznis/genstudio/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/genstudio/internal/observability/metrics"
	"github.com/smallbiznis/genstudio/pkg/db"
	"github.com/smallbiznis/genstudio/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultReserveAttempts = 3
	defaultPageSize        = 20
	maxPageSize            = 100
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       ledgerdomain.Repository
	Clock      clock.Clock         `optional:"true"`
	Config     config.Config       `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       ledgerdomain.Repository
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics

	reserveAttempts uint
	retryDelay      time.Duration
	// inTx is set when db is a transaction owned by the caller.
	inTx bool
}

func NewService(p Params) ledgerdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	attempts := defaultReserveAttempts
	if p.Config.Generation.ReserveMaxAttempts > 0 {
		attempts = p.Config.Generation.ReserveMaxAttempts
	}
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("ledger.service"),
		genID:           p.GenID,
		repo:            p.Repo,
		clock:           clk,
		obsMetrics:      p.ObsMetrics,
		reserveAttempts: uint(attempts),
		retryDelay:      50 * time.Millisecond,
	}
}

func (s *Service) WithTx(tx *gorm.DB) ledgerdomain.Service {
	clone := *s
	clone.db = tx
	clone.inTx = true
	return &clone
}

// Reserve debits amount from the user's balance. The conditional update is the
// only guard against overdraft; concurrent reservations serialize on the user row.
func (s *Service) Reserve(ctx context.Context, req ledgerdomain.ReserveRequest) (*ledgerdomain.CreditTransaction, error) {
	if req.UserID <= 0 {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	reserve := func() (*ledgerdomain.CreditTransaction, error) {
		var txn *ledgerdomain.CreditTransaction
		err := s.run(ctx, func(tx *gorm.DB) error {
			out, err := s.reserve(ctx, tx, req)
			if err != nil {
				return err
			}
			txn = out
			return nil
		})
		if err != nil {
			if !s.inTx && db.IsRetryableConflict(err) {
				s.log.Warn("credit reservation conflict, retrying",
					zap.Int64("user_id", req.UserID),
					zap.Error(err),
				)
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return txn, nil
	}

	attempts := s.reserveAttempts
	if s.inTx {
		// A failed statement poisons the caller's transaction.
		attempts = 1
	}
	txn, err := backoff.Retry(ctx, reserve,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.retryDelay)),
		backoff.WithMaxTries(attempts),
	)
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordCreditsReserved(ctx, req.Reason, req.Amount)
	s.log.Info("credits reserved",
		zap.Int64("user_id", req.UserID),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance_after", txn.BalanceAfter),
		zap.String("transaction_id", txn.ID.String()),
	)
	return txn, nil
}

func (s *Service) reserve(ctx context.Context, tx *gorm.DB, req ledgerdomain.ReserveRequest) (*ledgerdomain.CreditTransaction, error) {
	now := s.clock.Now().UTC()
	ok, err := s.repo.Debit(ctx, tx, req.UserID, req.Amount, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		_, exists, err := s.repo.Balance(ctx, tx, req.UserID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ledgerdomain.ErrUserNotFound
		}
		return nil, ledgerdomain.ErrInsufficientCredits
	}

	after, _, err := s.repo.Balance(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}

	txn := &ledgerdomain.CreditTransaction{
		ID:            s.genID.Generate(),
		UserID:        req.UserID,
		Type:          ledgerdomain.TransactionTypeReserve,
		Amount:        -req.Amount,
		Reason:        strings.TrimSpace(req.Reason),
		RelatedJobID:  req.RelatedJobID,
		BalanceBefore: after + req.Amount,
		BalanceAfter:  after,
		CreatedAt:     now,
	}
	if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// Refund credits amount back to the user. It is not retried: the caller decides
// whether a failed refund aborts its own state change.
func (s *Service) Refund(ctx context.Context, req ledgerdomain.RefundRequest) (*ledgerdomain.CreditTransaction, error) {
	txn, err := s.credit(ctx, req.UserID, req.Amount, req.Reason, req.RelatedJobID, ledgerdomain.TransactionTypeRefund)
	if err != nil {
		fields := []zap.Field{
			zap.Int64("user_id", req.UserID),
			zap.Int64("amount", req.Amount),
			zap.Error(err),
		}
		if req.RelatedJobID != nil {
			fields = append(fields, zap.String("job_id", req.RelatedJobID.String()))
		}
		s.log.Error("credit refund failed", fields...)
		return nil, err
	}

	s.obsMetrics.RecordCreditsRefunded(ctx, req.Reason, req.Amount)
	s.log.Info("credits refunded",
		zap.Int64("user_id", req.UserID),
		zap.Int64("amount", req.Amount),
		zap.String("reason", req.Reason),
		zap.Int64("balance_after", txn.BalanceAfter),
	)
	return txn, nil
}

func (s *Service) Grant(ctx context.Context, req ledgerdomain.GrantRequest) (*ledgerdomain.CreditTransaction, error) {
	txn, err := s.credit(ctx, req.UserID, req.Amount, req.Reason, nil, ledgerdomain.TransactionTypeGrant)
	if err != nil {
		return nil, err
	}
	s.log.Info("credits granted",
		zap.Int64("user_id", req.UserID),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance_after", txn.BalanceAfter),
	)
	return txn, nil
}

func (s *Service) credit(
	ctx context.Context,
	userID int64,
	amount int64,
	reason string,
	relatedJobID *snowflake.ID,
	txnType ledgerdomain.TransactionType,
) (*ledgerdomain.CreditTransaction, error) {
	if userID <= 0 {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	var txn *ledgerdomain.CreditTransaction
	err := s.run(ctx, func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		ok, err := s.repo.Credit(ctx, tx, userID, amount, now)
		if err != nil {
			return err
		}
		if !ok {
			return ledgerdomain.ErrUserNotFound
		}
		after, _, err := s.repo.Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		txn = &ledgerdomain.CreditTransaction{
			ID:            s.genID.Generate(),
			UserID:        userID,
			Type:          txnType,
			Amount:        amount,
			Reason:        strings.TrimSpace(reason),
			RelatedJobID:  relatedJobID,
			BalanceBefore: after - amount,
			BalanceAfter:  after,
			CreatedAt:     now,
		}
		return s.repo.InsertTransaction(ctx, tx, txn)
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *Service) GetBalance(ctx context.Context, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, ledgerdomain.ErrInvalidUser
	}
	balance, exists, err := s.repo.Balance(ctx, s.db, userID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ledgerdomain.ErrUserNotFound
	}
	return balance, nil
}

func (s *Service) ListTransactions(ctx context.Context, req ledgerdomain.ListTransactionsRequest) (ledgerdomain.ListTransactionsResponse, error) {
	if req.UserID <= 0 {
		return ledgerdomain.ListTransactionsResponse{}, ledgerdomain.ErrInvalidUser
	}

	filter := ledgerdomain.TransactionFilter{UserID: req.UserID}
	if t := strings.ToLower(strings.TrimSpace(req.Type)); t != "" {
		switch ledgerdomain.TransactionType(t) {
		case ledgerdomain.TransactionTypeReserve, ledgerdomain.TransactionTypeRefund, ledgerdomain.TransactionTypeGrant:
			filter.Type = ledgerdomain.TransactionType(t)
		default:
			return ledgerdomain.ListTransactionsResponse{}, ledgerdomain.ErrInvalidType
		}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	filter.Limit = pageSize + 1

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.Decode(token)
		if err != nil {
			return ledgerdomain.ListTransactionsResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		filter.CursorCreatedAt = &cursor.CreatedAt
		filter.CursorID = cursor.ID
	}

	items, err := s.repo.ListTransactions(ctx, s.db, filter)
	if err != nil {
		return ledgerdomain.ListTransactionsResponse{}, err
	}

	items, pageInfo := pagination.Trim(items, pageSize, func(txn *ledgerdomain.CreditTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: txn.CreatedAt.UTC(), ID: txn.ID.Int64()}
	})

	out := make([]ledgerdomain.CreditTransaction, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return ledgerdomain.ListTransactionsResponse{
		PageInfo:     pageInfo,
		Transactions: out,
	}, nil
}

// Reconcile checks that the transaction history explains the stored balance.
func (s *Service) Reconcile(ctx context.Context, userID int64) (ledgerdomain.ReconcileResult, error) {
	if userID <= 0 {
		return ledgerdomain.ReconcileResult{}, ledgerdomain.ErrInvalidUser
	}

	var result ledgerdomain.ReconcileResult
	err := s.run(ctx, func(tx *gorm.DB) error {
		balance, exists, err := s.repo.Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !exists {
			return ledgerdomain.ErrUserNotFound
		}
		totals, err := s.repo.SumTransactions(ctx, tx, userID)
		if err != nil {
			return err
		}
		expected := balance
		if totals.HasFirstEntry {
			expected = totals.FirstBefore + totals.Sum
		}
		result = ledgerdomain.ReconcileResult{
			UserID:           userID,
			Balance:          balance,
			Expected:         expected,
			TransactionCount: totals.Count,
			Consistent:       expected == balance,
		}
		return nil
	})
	if err != nil {
		return ledgerdomain.ReconcileResult{}, err
	}
	if !result.Consistent {
		s.log.Error("credit balance drift detected",
			zap.Int64("user_id", userID),
			zap.Int64("balance", result.Balance),
			zap.Int64("expected", result.Expected),
			zap.Bool("critical", true),
		)
	}
	return result, nil
}

func (s *Service) run(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.inTx {
		return fn(s.db.WithContext(ctx))
	}
	return s.db.WithContext(ctx).Transaction(fn)
}
