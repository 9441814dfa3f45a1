package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/yourorg/staybook/internal/domain"
	"github.com/yourorg/staybook/internal/observability/metrics"
	"github.com/yourorg/staybook/internal/pricing"
	"github.com/yourorg/staybook/internal/reliability/retry"
)

// DiscountScheduler periodically transitions discount lifecycle states
// and refreshes cached effective prices for the properties it touched.
type DiscountScheduler struct {
	discounts  domain.DiscountRepository
	properties domain.PropertyRepository
	cache      domain.PriceCache
	resolver   *pricing.Resolver
	logger     *slog.Logger
	clock      domain.Clock
	interval   time.Duration
	retryCfg   *retry.Config

	// running guards against overlapping cycles: a tick that fires
	// while the previous cycle is still in flight is skipped, never
	// queued.
	running atomic.Bool
}

// NewDiscountScheduler creates a new scheduler.
func NewDiscountScheduler(
	discounts domain.DiscountRepository,
	properties domain.PropertyRepository,
	cache domain.PriceCache,
	resolver *pricing.Resolver,
	logger *slog.Logger,
	clock domain.Clock,
	interval time.Duration,
) *DiscountScheduler {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &DiscountScheduler{
		discounts:  discounts,
		properties: properties,
		cache:      cache,
		resolver:   resolver,
		logger:     logger,
		clock:      clock,
		interval:   interval,
		retryCfg:   retry.DefaultConfig(),
	}
}

// Start begins the scheduler loop. It runs until ctx is cancelled.
func (w *DiscountScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("discount scheduler started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("discount scheduler stopped")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one cycle unless the previous one is still in progress, in
// which case it reports false and does nothing.
func (w *DiscountScheduler) Tick(ctx context.Context) bool {
	if !w.running.CompareAndSwap(false, true) {
		w.logger.Warn("previous scheduler cycle still running, skipping tick")
		metrics.ObserveCycle("skipped", 0)
		return false
	}
	defer w.running.Store(false)

	w.runCycle(ctx)
	return true
}

func (w *DiscountScheduler) runCycle(ctx context.Context) {
	start := time.Now()
	now := w.clock.Now()

	// Transient store faults on the batch read retry with backoff; a
	// cycle that still cannot list gives up until the next tick.
	discounts, err := retry.Do(ctx, w.retryCfg, w.logger, "list actionable discounts",
		func(ctx context.Context) ([]*domain.Discount, error) {
			return w.discounts.ListActionable(ctx)
		})
	if err != nil {
		w.logger.Error("failed to list discounts", slog.String("error", err.Error()))
		metrics.ObserveCycle("error", time.Since(start))
		return
	}

	// Property -> viewer contexts whose cached price went stale this
	// cycle. The empty viewer is the all-users row.
	stale := map[string]map[string]struct{}{}

	for _, d := range discounts {
		next, err := nextStatus(d, now)
		if err != nil {
			// Malformed records are isolated: logged, counted, skipped.
			w.logger.Warn("skipping malformed discount",
				slog.String("discount_id", d.ID),
				slog.String("error", err.Error()),
			)
			metrics.ObserveMalformedDiscount()
			continue
		}
		if next == d.Status {
			continue
		}

		if err := w.discounts.UpdateStatus(ctx, d.ID, d.Status, next, now); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Lost a race with a concurrent writer; the record has
				// already moved on.
				w.logger.Debug("discount already transitioned", slog.String("discount_id", d.ID))
				continue
			}
			w.logger.Error("failed to transition discount",
				slog.String("discount_id", d.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		metrics.ObserveTransition(string(d.Status), string(next))

		viewers, ok := stale[d.PropertyID]
		if !ok {
			viewers = map[string]struct{}{"": {}}
			stale[d.PropertyID] = viewers
		}
		if d.Scope == domain.ScopeUsers {
			for _, id := range d.UserIDs {
				viewers[id] = struct{}{}
			}
		}
	}

	for propertyID, viewers := range stale {
		w.refreshPrices(ctx, propertyID, viewers, now)
	}

	metrics.ObserveCycle("success", time.Since(start))
	if len(stale) > 0 {
		w.logger.Info("scheduler cycle completed",
			slog.Int("discounts_scanned", len(discounts)),
			slog.Int("properties_refreshed", len(stale)),
		)
	}
}

// nextStatus applies the temporal transition rules. The order is
// strictly monotone: scheduled -> active -> expired; cancelled records
// are never returned by ListActionable.
func nextStatus(d *domain.Discount, now time.Time) (domain.DiscountStatus, error) {
	if d.StartsAt.IsZero() || d.EndsAt.IsZero() {
		return "", &domain.ValidationError{Field: "starts_at/ends_at", Reason: "discount window not set"}
	}
	if !d.EndsAt.After(d.StartsAt) {
		return "", &domain.ValidationError{Field: "ends_at", Reason: "window ends before it starts"}
	}

	switch d.Status {
	case domain.DiscountScheduled:
		if !now.Before(d.EndsAt) {
			// The whole window passed between cycles.
			return domain.DiscountExpired, nil
		}
		if !now.Before(d.StartsAt) {
			return domain.DiscountActive, nil
		}
	case domain.DiscountActive:
		if !now.Before(d.EndsAt) {
			return domain.DiscountExpired, nil
		}
	}
	return d.Status, nil
}

// refreshPrices recomputes the cached effective price for every stale
// viewer context of one property. Faults here degrade the cache, not
// the cycle.
func (w *DiscountScheduler) refreshPrices(ctx context.Context, propertyID string, viewers map[string]struct{}, now time.Time) {
	prop, err := w.properties.GetByID(ctx, propertyID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.logger.Debug("skipping price refresh for deleted property", slog.String("property_id", propertyID))
			return
		}
		w.logger.Error("failed to load property for price refresh",
			slog.String("property_id", propertyID),
			slog.String("error", err.Error()),
		)
		metrics.ObservePriceRecompute("error")
		return
	}

	actives, err := w.discounts.ListActiveForProperty(ctx, propertyID)
	if err != nil {
		w.logger.Error("failed to list active discounts",
			slog.String("property_id", propertyID),
			slog.String("error", err.Error()),
		)
		metrics.ObservePriceRecompute("error")
		return
	}

	for viewerID := range viewers {
		q := w.resolver.ResolvePrice(prop, viewerID, actives, now)
		price := &domain.EffectivePrice{
			PropertyID: q.PropertyID,
			ViewerID:   q.ViewerID,
			Currency:   q.Currency,
			BasePrice:  q.BasePrice,
			FinalPrice: q.FinalPrice,
			DiscountID: q.DiscountID,
			ComputedAt: now,
		}
		if err := w.cache.Set(ctx, price); err != nil {
			w.logger.Error("failed to cache effective price",
				slog.String("property_id", propertyID),
				slog.String("error", err.Error()),
			)
			metrics.ObservePriceRecompute("error")
			continue
		}
		metrics.ObservePriceRecompute("success")
	}
}
