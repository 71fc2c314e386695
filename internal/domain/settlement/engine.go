package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/core/tx"
	"routeledger/internal/core/types"
	"routeledger/internal/domain"
	"routeledger/internal/domain/cycle"
	"routeledger/internal/domain/delivery"
	"routeledger/internal/domain/payment"
	"routeledger/internal/domain/shop"
	"routeledger/pkg/logger"
)

var tracer = otel.Tracer("routeledger/settlement")

// DefaultLockKey names the cross-process settlement lock.
const DefaultLockKey = "routeledger:settlement"

// Engine settles the open cycle into an archive and opens the next one.
type Engine struct {
	repo       Repository
	shops      shop.Repository
	deliveries delivery.Repository
	payments   payment.Repository
	txm        tx.Manager
	gate       *cycle.Gate
	auth       Authorizer
	locker     Locker
	lockKey    string
	hooks      *domain.HookRegistry[*Archive]
	now        func() time.Time

	mu     sync.Mutex
	status Status
}

// EngineConfig configures the engine.
type EngineConfig struct {
	Repo       Repository
	Shops      shop.Repository
	Deliveries delivery.Repository
	Payments   payment.Repository
	TxManager  tx.Manager
	Gate       *cycle.Gate

	// Authorizer defaults to ScopeAuthorizer.
	Authorizer Authorizer
	// Locker defaults to NoopLocker.
	Locker  Locker
	LockKey string
}

// NewEngine creates an idle engine.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		repo:       cfg.Repo,
		shops:      cfg.Shops,
		deliveries: cfg.Deliveries,
		payments:   cfg.Payments,
		txm:        cfg.TxManager,
		gate:       cfg.Gate,
		auth:       cfg.Authorizer,
		locker:     cfg.Locker,
		lockKey:    cfg.LockKey,
		hooks:      domain.NewHookRegistry[*Archive](),
		now:        time.Now,
		status:     Status{State: StateIdle},
	}
	if e.auth == nil {
		e.auth = ScopeAuthorizer
	}
	if e.locker == nil {
		e.locker = NoopLocker{}
	}
	if e.lockKey == "" {
		e.lockKey = DefaultLockKey
	}
	return e
}

// Hooks returns the hook registry; AfterSettle fires once per written archive.
func (e *Engine) Hooks() *domain.HookRegistry[*Archive] {
	return e.hooks
}

// Status returns the engine state and the outcome of the last run.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Run settles the open cycle for date.
//
// The whole next state (archive, archived deliveries, closed payments, shop
// openings) is staged in memory, announced by a staged intent, then committed
// in one transaction. Either all of it becomes visible or none of it does.
// Running twice for the same date without activity in between returns the
// existing archive with AlreadySettled set.
func (e *Engine) Run(ctx context.Context, date time.Time) (*Result, error) {
	day := types.Day(date)
	ctx, span := tracer.Start(ctx, "settlement.run")
	defer span.End()
	span.SetAttributes(attribute.String("settlement.date", types.FormatDay(day)))

	if !e.auth.SettlementAuthorized(ctx) {
		return nil, apperror.NewForbidden("settlement is not authorized for this operator")
	}
	if !e.begin() {
		return nil, apperror.NewSettlementInProgress()
	}

	res, err := e.run(ctx, day)
	e.finish(day, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

func (e *Engine) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.State == StateRunning {
		return false
	}
	e.status.State = StateRunning
	return true
}

func (e *Engine) finish(day time.Time, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	e.status.LastRunAt = &now
	if err != nil {
		// failed runs are rolled back, so the engine is ready again
		e.status.State = StateIdle
		e.status.LastError = err.Error()
		return
	}
	e.status.State = StateCompleted
	e.status.LastDate = &day
	e.status.LastError = ""
}

func (e *Engine) run(ctx context.Context, day time.Time) (*Result, error) {
	dateStr := types.FormatDay(day)

	release, err := e.locker.Obtain(ctx, e.lockKey)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return nil, apperror.NewSettlementInProgress()
		}
		return nil, apperror.NewSettlementFailed(dateStr, fmt.Errorf("obtain settlement lock: %w", err))
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx, "settlement lock release failed", "error", err)
		}
	}()

	reopen := e.gate.Exclusive()
	defer reopen()

	lower, err := e.gate.Raise(ctx)
	if err != nil {
		if apperror.Is(err, apperror.CodeSettlementInProgress) {
			return nil, err
		}
		return nil, apperror.NewSettlementFailed(dateStr, err)
	}
	defer func() {
		if err := lower(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx, "settlement fence release failed", "error", err)
		}
	}()

	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, apperror.NewSettlementFailed(dateStr, err)
	}
	p, err := e.stage(ctx, day, snap)
	if err != nil {
		return nil, apperror.NewSettlementFailed(dateStr, err)
	}
	if !p.activity && p.previous != nil {
		logger.Info(ctx, "settlement skipped, date already settled",
			"date", dateStr, "archive_id", p.previous.ID, "sequence", p.previous.Sequence)
		return &Result{Archive: p.previous, AlreadySettled: true}, nil
	}

	intent := &Intent{
		ID:        id.New(),
		Date:      day,
		ArchiveID: p.archive.ID,
		Status:    IntentStaged,
		CreatedAt: e.now(),
	}
	if err := e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return e.repo.CreateIntent(ctx, intent)
	}); err != nil {
		return nil, apperror.NewSettlementFailed(dateStr, fmt.Errorf("write settlement intent: %w", err))
	}

	if err := e.apply(ctx, p, intent); err != nil {
		e.abort(ctx, intent, err)
		logger.Error(ctx, "settlement rolled back", "date", dateStr, "archive_id", p.archive.ID, "error", err)
		return nil, apperror.NewSettlementFailed(dateStr, err)
	}

	logger.Info(ctx, "settlement completed",
		"date", dateStr,
		"archive_id", p.archive.ID,
		"sequence", p.archive.Sequence,
		"deliveries", p.archive.Summary.Deliveries,
		"payments", p.archive.Summary.Payments,
		"outstanding", p.archive.Summary.Outstanding.String(),
	)
	e.hooks.Run(ctx, domain.AfterSettle, p.archive)
	return &Result{Archive: p.archive}, nil
}

// plan is the staged next state of the ledger.
type plan struct {
	archive    *Archive
	previous   *Archive
	shops      []*shop.Shop
	paymentIDs []id.ID
	pendingIDs []id.ID
	activity   bool
}

func (e *Engine) stage(ctx context.Context, day time.Time, snap *snapshot) (*plan, error) {
	archives, err := e.repo.ListArchives(ctx, day, day)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}

	now := e.now()
	a := &Archive{
		ID:         id.New(),
		Date:       day,
		Sequence:   len(archives) + 1,
		ArchivedAt: now,
		Summary:    zeroSummary(),
	}
	p := &plan{archive: a}
	if len(archives) > 0 {
		p.previous = archives[len(archives)-1]
	}

	for _, d := range snap.deliveries {
		archived := d.Clone()
		if err := archived.Archive(a.ID, now); err != nil {
			return nil, err
		}
		a.Deliveries = append(a.Deliveries, archived)
		a.Summary.Deliveries++
		a.Summary.DeliveryTotal = a.Summary.DeliveryTotal.Add(d.Total)
	}
	for _, pay := range snap.payments {
		closed := pay.Clone()
		closed.ArchiveID = &a.ID
		a.Payments = append(a.Payments, closed)
		p.paymentIDs = append(p.paymentIDs, pay.ID)
		a.Summary.Payments++
		a.Summary.PaymentTotal = a.Summary.PaymentTotal.Add(pay.Amount)
	}
	for _, entry := range snap.pending {
		closed := entry.Clone()
		closed.ArchiveID = &a.ID
		a.Pending = append(a.Pending, closed)
		p.pendingIDs = append(p.pendingIDs, entry.ID)
		a.Summary.PendingTotal = a.Summary.PendingTotal.Add(entry.Amount)
	}

	p.activity = len(snap.deliveries)+len(snap.payments)+len(snap.pending) > 0
	for _, s := range snap.shops {
		b := payment.Compute(s.ID, s.OpeningBalance, snap.deliveries, snap.pending, snap.payments)
		if s.Delivered || s.PayTomorrow {
			p.activity = true
		}
		if !s.Active && b.Outstanding.IsZero() && !s.Delivered {
			continue
		}
		a.Closings = append(a.Closings, Closing{
			ShopID:     s.ID,
			ShopName:   s.Name,
			Route:      s.Route,
			Opening:    b.Opening,
			Deliveries: b.Deliveries,
			Pending:    b.Pending,
			Payments:   b.Payments,
			Closing:    b.Outstanding,
		})
		a.Summary.Outstanding = a.Summary.Outstanding.Add(b.Outstanding)

		next := s.Clone()
		next.OpenCycle(b.Outstanding)
		p.shops = append(p.shops, next)
	}
	a.Summary.Shops = len(a.Closings)
	return p, nil
}

func (e *Engine) apply(ctx context.Context, p *plan, intent *Intent) error {
	ctx, span := tracer.Start(ctx, "settlement.apply")
	defer span.End()

	return e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := e.repo.CreateArchive(ctx, p.archive); err != nil {
			return fmt.Errorf("create archive: %w", err)
		}
		for _, d := range p.archive.Deliveries {
			if err := e.deliveries.Update(ctx, d); err != nil {
				return fmt.Errorf("archive delivery %s: %w", d.ID, err)
			}
		}
		if len(p.paymentIDs) > 0 {
			if err := e.payments.ClosePayments(ctx, p.paymentIDs, p.archive.ID); err != nil {
				return fmt.Errorf("close payments: %w", err)
			}
		}
		if len(p.pendingIDs) > 0 {
			if err := e.payments.ClosePending(ctx, p.pendingIDs, p.archive.ID); err != nil {
				return fmt.Errorf("close pending entries: %w", err)
			}
		}
		for _, s := range p.shops {
			if err := e.shops.Update(ctx, s); err != nil {
				return fmt.Errorf("open cycle for shop %s: %w", s.ID, err)
			}
			if err := e.shops.SetDelivered(ctx, s.ID, false); err != nil {
				return fmt.Errorf("reset delivered flag for shop %s: %w", s.ID, err)
			}
		}
		intent.resolve(IntentApplied, nil, e.now())
		if err := e.repo.UpdateIntent(ctx, intent); err != nil {
			return fmt.Errorf("resolve intent: %w", err)
		}
		return nil
	})
}

func (e *Engine) abort(ctx context.Context, intent *Intent, cause error) {
	aborted := intent.Clone()
	aborted.resolve(IntentAborted, cause, e.now())
	err := e.txm.RunInTransaction(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return e.repo.UpdateIntent(ctx, aborted)
	})
	if err != nil {
		// Recover resolves the intent on next start
		logger.Error(ctx, "settlement intent abort failed", "intent_id", intent.ID, "error", err)
	}
}

// Recover resolves settlement intents left staged by a crash: the intent is
// applied when its archive was committed and aborted otherwise. It returns the
// number of intents resolved. Call it once at startup before serving commands.
// While another process holds the settlement fence, its staged intent is live
// and Recover leaves it alone.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	lower, err := e.gate.Raise(ctx)
	if err != nil {
		if apperror.Is(err, apperror.CodeSettlementInProgress) {
			logger.Info(ctx, "settlement running elsewhere, recovery skipped")
			return 0, nil
		}
		return 0, err
	}
	defer func() {
		if err := lower(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx, "settlement fence release failed", "error", err)
		}
	}()

	staged, err := e.repo.ListIntents(ctx, IntentStaged)
	if err != nil {
		return 0, fmt.Errorf("list staged intents: %w", err)
	}

	for _, intent := range staged {
		status := IntentAborted
		var cause error = errors.New("interrupted before commit")
		if _, err := e.repo.GetArchive(ctx, intent.ArchiveID); err == nil {
			status, cause = IntentApplied, nil
		} else if !apperror.IsNotFound(err) {
			return 0, fmt.Errorf("check archive %s: %w", intent.ArchiveID, err)
		}

		intent.resolve(status, cause, e.now())
		if err := e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			return e.repo.UpdateIntent(ctx, intent)
		}); err != nil {
			return 0, fmt.Errorf("resolve intent %s: %w", intent.ID, err)
		}
		logger.Warn(ctx, "recovered interrupted settlement",
			"intent_id", intent.ID,
			"date", types.FormatDay(intent.Date),
			"status", string(status),
		)
	}
	return len(staged), nil
}

// Preview reports what Run would archive now, without writing anything.
func (e *Engine) Preview(ctx context.Context, date time.Time) (*Preview, error) {
	day := types.Day(date)
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	p, err := e.stage(ctx, day, snap)
	if err != nil {
		return nil, err
	}
	deleted, err := e.deliveries.List(ctx, delivery.Filter{States: []delivery.State{delivery.StateDeleted}})
	if err != nil {
		return nil, fmt.Errorf("list deleted deliveries: %w", err)
	}
	view := payment.BuildCollectionView(snap.shops, snap.deliveries, snap.pending, snap.payments, e.now())

	s := p.archive.Summary
	return &Preview{
		Date:              day,
		AlreadySettled:    !p.activity && p.previous != nil,
		NextSequence:      p.archive.Sequence,
		ActiveDeliveries:  s.Deliveries,
		DeletedDeliveries: len(deleted),
		Payments:          s.Payments,
		PendingEntries:    len(p.pendingIDs),
		DeliveryTotal:     s.DeliveryTotal,
		PaymentTotal:      s.PaymentTotal,
		PendingTotal:      s.PendingTotal,
		Outstanding:       s.Outstanding,
		PaidShops:         view.Counts[payment.StatusPaid],
		PartialShops:      view.Counts[payment.StatusPartial],
		PendingShops:      view.Counts[payment.StatusPending],
		PayTomorrowShops:  view.Counts[payment.StatusPayTomorrow],
	}, nil
}

// ListArchives returns archives dated within [from, to].
func (e *Engine) ListArchives(ctx context.Context, from, to time.Time) ([]*Archive, error) {
	if !from.IsZero() {
		from = types.Day(from)
	}
	if !to.IsZero() {
		to = types.Day(to)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, apperror.NewValidation("date range is inverted").
			WithDetail("from", types.FormatDay(from)).
			WithDetail("to", types.FormatDay(to))
	}
	return e.repo.ListArchives(ctx, from, to)
}

// GetArchive returns one archive.
func (e *Engine) GetArchive(ctx context.Context, archiveID id.ID) (*Archive, error) {
	return e.repo.GetArchive(ctx, archiveID)
}

// DailySummary totals every archive of a date.
func (e *Engine) DailySummary(ctx context.Context, date time.Time) (*DailySummary, error) {
	day := types.Day(date)
	archives, err := e.repo.ListArchives(ctx, day, day)
	if err != nil {
		return nil, err
	}
	sum := zeroSummary()
	for _, a := range archives {
		sum = sum.add(a.Summary)
	}
	return &DailySummary{Date: day, Archives: len(archives), Summary: sum}, nil
}

type snapshot struct {
	shops      []*shop.Shop
	deliveries []*delivery.Delivery
	payments   []*payment.Payment
	pending    []*payment.PendingEntry
}

func (e *Engine) snapshot(ctx context.Context) (*snapshot, error) {
	shops, err := shop.Collect(ctx, e.shops)
	if err != nil {
		return nil, err
	}
	deliveries, err := e.deliveries.List(ctx, delivery.Filter{States: []delivery.State{delivery.StateActive}})
	if err != nil {
		return nil, fmt.Errorf("list active deliveries: %w", err)
	}
	payments, err := e.payments.ListPayments(ctx, payment.Filter{OpenOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list open payments: %w", err)
	}
	pending, err := e.payments.ListPending(ctx, payment.Filter{OpenOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list open pending entries: %w", err)
	}
	return &snapshot{shops: shops, deliveries: deliveries, payments: payments, pending: pending}, nil
}
