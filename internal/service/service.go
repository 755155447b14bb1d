package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/sequence"
	"sarisari/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const compensationTimeout = 5 * time.Second

type Service struct {
	repo   store.Repository
	seq    *sequence.Generator
	log    *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func New(repo store.Repository, seq *sequence.Generator) *Service {
	if seq == nil {
		seq = sequence.NewGenerator(time.UTC, nil)
	}
	return &Service{
		repo:   repo,
		seq:    seq,
		log:    zap.L().Named("service"),
		tracer: otel.Tracer("sarisari/backend/internal/service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: transaction id is required", store.ErrInvalidInput)
	}
	return s.repo.FindTransactionByID(ctx, id)
}

// unit tracks the ledger effects of one operation. Inside an enclosing store
// transaction nothing needs undoing; otherwise the recorded reservations and
// adjustments are reversed when the operation fails.
type unit struct {
	repo     store.Repository
	enclosed bool
	reserved [][]store.StockLine
	adjusted []store.AccountAdjustment
}

func (u *unit) reserve(ctx context.Context, lines []store.StockLine) ([]domain.Product, error) {
	products, err := u.repo.Reserve(ctx, lines)
	if err != nil {
		return nil, err
	}
	u.reserved = append(u.reserved, lines)
	return products, nil
}

func (u *unit) adjust(ctx context.Context, adj store.AccountAdjustment) (store.AdjustResult, error) {
	res, err := u.repo.Adjust(ctx, adj)
	if err != nil {
		return store.AdjustResult{}, err
	}
	u.adjusted = append(u.adjusted, adj)
	return res, nil
}

// inUnit runs fn as one all-or-nothing operation. Repositories that implement
// store.Atomic get a single enclosing transaction; the rest fall back to
// reserve-then-compensate.
func (s *Service) inUnit(ctx context.Context, fn func(u *unit) error) error {
	if atomic, ok := s.repo.(store.Atomic); ok {
		return atomic.RunInTx(ctx, func(repo store.Repository) error {
			return fn(&unit{repo: repo, enclosed: true})
		})
	}

	u := &unit{repo: s.repo}
	err := fn(u)
	if err != nil {
		s.compensate(ctx, u, err)
	}
	return err
}

func (s *Service) compensate(ctx context.Context, u *unit, cause error) {
	if u.enclosed || (len(u.reserved) == 0 && len(u.adjusted) == 0) {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	for i := len(u.adjusted) - 1; i >= 0; i-- {
		adj := u.adjusted[i]
		_, err := u.repo.Adjust(ctx, store.AccountAdjustment{
			AccountID:    adj.AccountID,
			DeltaCents:   -adj.DeltaCents,
			Reason:       "compensate " + adj.Reason,
			Compensation: true,
		})
		if err != nil {
			s.log.Error("balance compensation failed",
				zap.String("account_id", adj.AccountID),
				zap.Int64("delta_cents", -adj.DeltaCents),
				zap.NamedError("cause", cause),
				zap.Error(err))
		}
	}
	for i := len(u.reserved) - 1; i >= 0; i-- {
		if err := u.repo.Release(ctx, u.reserved[i]); err != nil {
			s.log.Error("stock compensation failed",
				zap.Int("lines", len(u.reserved[i])),
				zap.NamedError("cause", cause),
				zap.Error(err))
		}
	}
	s.log.Debug("operation compensated",
		zap.Int("reservations", len(u.reserved)),
		zap.Int("adjustments", len(u.adjusted)),
		zap.NamedError("cause", cause))
}

func (s *Service) resolveStaff(ctx context.Context, repo store.Repository, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: cashier is required", store.ErrInvalidInput)
	}
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, userID)
	}
	return user, nil
}

func (s *Service) resolveCustomer(ctx context.Context, repo store.Repository, accountID string) (*domain.Account, error) {
	acc, err := repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !acc.Active {
		return nil, fmt.Errorf("%w: account %s", store.ErrNotFound, accountID)
	}
	return acc, nil
}

// resolveActor loads the acting user and checks that the role the caller
// presents is the role the user actually holds.
func (s *Service) resolveActor(ctx context.Context, repo store.Repository) (*domain.User, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return nil, fmt.Errorf("%w: acting user is required", store.ErrInvalidInput)
	}
	user, err := s.resolveStaff(ctx, repo, actor.UserID)
	if err != nil {
		return nil, err
	}
	if actor.Role != user.Role {
		return nil, fmt.Errorf("%w: user %s does not hold role %q", store.ErrForbidden, user.ID, actor.Role)
	}
	return user, nil
}

// VerifyActor confirms that actor names an active user holding actor.Role.
func (s *Service) VerifyActor(ctx context.Context, actor domain.Actor) (*domain.User, error) {
	return s.resolveActor(WithActor(ctx, actor), s.repo)
}

func (s *Service) logAudit(ctx context.Context, action string, entityID string, fields ...zap.Field) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{UserID: "system", Role: "system"}
	}
	base := []zap.Field{
		zap.String("action", action),
		zap.String("entity_id", entityID),
		zap.String("actor_id", actor.UserID),
		zap.String("actor_role", actor.Role),
	}
	s.log.Info("audit", append(base, fields...)...)
}

// endSpan closes span. Business rejections are expected outcomes and stay
// out of the warning log; anything else is logged.
func (s *Service) endSpan(span trace.Span, op string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !isBusinessError(err) {
			s.log.Warn("operation failed",
				zap.String("op", op),
				zap.Bool("retryable", store.IsRetryable(err)),
				zap.Error(err))
		}
	}
	span.End()
}

func isBusinessError(err error) bool {
	for _, target := range []error{
		store.ErrNotFound,
		store.ErrInvalidInput,
		store.ErrInsufficientStock,
		store.ErrInsufficientPayment,
		store.ErrCreditLimitExceeded,
		store.ErrNoDebt,
		store.ErrForbidden,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
