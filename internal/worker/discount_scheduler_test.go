package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourorg/staybook/internal/domain"
	"github.com/yourorg/staybook/internal/pricing"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type memDiscountRepo struct {
	mu        sync.Mutex
	discounts map[string]*domain.Discount
	// listGate, when set, blocks ListActionable until released. Used to
	// hold a cycle open while another tick fires.
	listGate chan struct{}
}

func newMemDiscountRepo(discounts ...*domain.Discount) *memDiscountRepo {
	m := &memDiscountRepo{discounts: map[string]*domain.Discount{}}
	for _, d := range discounts {
		m.discounts[d.ID] = d
	}
	return m
}

func (m *memDiscountRepo) ListActionable(ctx context.Context) ([]*domain.Discount, error) {
	if m.listGate != nil {
		<-m.listGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Discount
	for _, d := range m.discounts {
		if d.IsDeleted {
			continue
		}
		if d.Status == domain.DiscountScheduled || d.Status == domain.DiscountActive {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memDiscountRepo) UpdateStatus(ctx context.Context, id string, from, to domain.DiscountStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.discounts[id]
	if !ok || d.Status != from {
		return domain.ErrNotFound
	}
	d.Status = to
	d.UpdatedAt = at
	return nil
}

func (m *memDiscountRepo) ListActiveForProperty(ctx context.Context, propertyID string) ([]*domain.Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Discount
	for _, d := range m.discounts {
		if d.PropertyID == propertyID && d.Status == domain.DiscountActive && !d.IsDeleted {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memDiscountRepo) status(id string) domain.DiscountStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discounts[id].Status
}

type memPropertyRepo struct {
	properties map[string]*domain.Property
}

func (m *memPropertyRepo) GetByID(ctx context.Context, id string) (*domain.Property, error) {
	p, ok := m.properties[id]
	if !ok || p.IsDeleted {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

type memPriceCache struct {
	mu     sync.Mutex
	prices map[string]*domain.EffectivePrice
}

func newMemPriceCache() *memPriceCache {
	return &memPriceCache{prices: map[string]*domain.EffectivePrice{}}
}

func (m *memPriceCache) Set(ctx context.Context, price *domain.EffectivePrice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[price.PropertyID+"|"+price.ViewerID] = price
	return nil
}

func (m *memPriceCache) Get(ctx context.Context, propertyID, viewerID string) (*domain.EffectivePrice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[propertyID+"|"+viewerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var schedNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func newScheduler(discounts *memDiscountRepo, props map[string]*domain.Property, cache *memPriceCache) *DiscountScheduler {
	resolver := pricing.NewResolver(map[string]int32{"USD": 2, "JPY": 0}, 10)
	return NewDiscountScheduler(
		discounts,
		&memPropertyRepo{properties: props},
		cache,
		resolver,
		discardLogger(),
		&fakeClock{now: schedNow},
		time.Minute,
	)
}

func usd(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestTickActivatesScheduledDiscountAndRefreshesPrice(t *testing.T) {
	disc := &domain.Discount{
		ID:         "d1",
		PropertyID: "p1",
		Status:     domain.DiscountScheduled,
		ValueType:  domain.ValuePercentage,
		Value:      usd("20"),
		Scope:      domain.ScopeAllUsers,
		StartsAt:   schedNow.Add(-time.Hour),
		EndsAt:     schedNow.Add(time.Hour),
	}
	repo := newMemDiscountRepo(disc)
	props := map[string]*domain.Property{
		"p1": {ID: "p1", Currency: "USD", BasePrice: usd("100.00")},
	}
	cache := newMemPriceCache()

	sched := newScheduler(repo, props, cache)
	if !sched.Tick(context.Background()) {
		t.Fatal("tick reported skipped")
	}

	if got := repo.status("d1"); got != domain.DiscountActive {
		t.Fatalf("expected active, got %s", got)
	}

	price, err := cache.Get(context.Background(), "p1", "")
	if err != nil {
		t.Fatalf("expected cached price: %v", err)
	}
	if !price.FinalPrice.Equal(usd("80.00")) {
		t.Fatalf("expected final price 80.00, got %s", price.FinalPrice)
	}
	if price.DiscountID != "d1" {
		t.Fatalf("expected discount d1 applied, got %q", price.DiscountID)
	}
}

func TestTickExpiresActiveDiscount(t *testing.T) {
	disc := &domain.Discount{
		ID:         "d1",
		PropertyID: "p1",
		Status:     domain.DiscountActive,
		ValueType:  domain.ValueFixed,
		Value:      usd("15"),
		Scope:      domain.ScopeAllUsers,
		StartsAt:   schedNow.Add(-2 * time.Hour),
		EndsAt:     schedNow.Add(-time.Minute),
	}
	repo := newMemDiscountRepo(disc)
	props := map[string]*domain.Property{
		"p1": {ID: "p1", Currency: "USD", BasePrice: usd("100.00")},
	}
	cache := newMemPriceCache()

	sched := newScheduler(repo, props, cache)
	sched.Tick(context.Background())

	if got := repo.status("d1"); got != domain.DiscountExpired {
		t.Fatalf("expected expired, got %s", got)
	}

	// The refreshed price carries no discount anymore.
	price, err := cache.Get(context.Background(), "p1", "")
	if err != nil {
		t.Fatalf("expected cached price: %v", err)
	}
	if !price.FinalPrice.Equal(usd("100.00")) {
		t.Fatalf("expected base price restored, got %s", price.FinalPrice)
	}
	if price.DiscountID != "" {
		t.Fatalf("expected no discount on price, got %q", price.DiscountID)
	}
}

func TestTickExpiresScheduledDiscountWhoseWindowPassed(t *testing.T) {
	disc := &domain.Discount{
		ID:         "d1",
		PropertyID: "p1",
		Status:     domain.DiscountScheduled,
		ValueType:  domain.ValuePercentage,
		Value:      usd("10"),
		Scope:      domain.ScopeAllUsers,
		StartsAt:   schedNow.Add(-3 * time.Hour),
		EndsAt:     schedNow.Add(-time.Hour),
	}
	repo := newMemDiscountRepo(disc)
	cache := newMemPriceCache()

	sched := newScheduler(repo, map[string]*domain.Property{
		"p1": {ID: "p1", Currency: "USD", BasePrice: usd("50.00")},
	}, cache)
	sched.Tick(context.Background())

	if got := repo.status("d1"); got != domain.DiscountExpired {
		t.Fatalf("expected expired, got %s", got)
	}
}

func TestTickLeavesFutureAndCancelledDiscountsAlone(t *testing.T) {
	future := &domain.Discount{
		ID:         "future",
		PropertyID: "p1",
		Status:     domain.DiscountScheduled,
		ValueType:  domain.ValuePercentage,
		Value:      usd("10"),
		Scope:      domain.ScopeAllUsers,
		StartsAt:   schedNow.Add(time.Hour),
		EndsAt:     schedNow.Add(2 * time.Hour),
	}
	cancelled := &domain.Discount{
		ID:         "cancelled",
		PropertyID: "p1",
		Status:     domain.DiscountCancelled,
		ValueType:  domain.ValuePercentage,
		Value:      usd("10"),
		Scope:      domain.ScopeAllUsers,
		StartsAt:   schedNow.Add(-time.Hour),
		EndsAt:     schedNow.Add(time.Hour),
	}
	repo := newMemDiscountRepo(future, cancelled)
	cache := newMemPriceCache()

	sched := newScheduler(repo, map[string]*domain.Property{
		"p1": {ID: "p1", Currency: "USD", BasePrice: usd("50.00")},
	}, cache)
	sched.Tick(context.Background())

	if got := repo.status("future"); got != domain.DiscountScheduled {
		t.Fatalf("future discount moved to %s", got)
	}
	if got := repo.status("cancelled"); got != domain.DiscountCancelled {
		t.Fatalf("cancelled discount moved to %s", got)
	}
	if _, err := cache.Get(context.Background(), "p1", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("no price refresh expected when nothing transitioned")
	}
}

func TestTickIsolatesMalformedDiscount(t *testing.T) {
	malformed := &domain.Discount{
		ID:         "bad",
		PropertyID: "p1",
		Status:     domain.DiscountScheduled,
		ValueType:  domain.ValuePercentage,
		Value:      usd("10"),
		Scope:      domain.ScopeAllUsers,
		// Zero StartsAt/EndsAt: the record never validates.
	}
	healthy := &domain.Discount{
		ID:         "good",
		PropertyID: "p2",
		Status:     domain.DiscountScheduled,
		ValueType:  domain.ValuePercentage,
		Value:      usd("25"),
		Scope:      domain.ScopeAllUsers,
		StartsAt:   schedNow.Add(-time.Hour),
		EndsAt:     schedNow.Add(time.Hour),
	}
	repo := newMemDiscountRepo(malformed, healthy)
	cache := newMemPriceCache()

	sched := newScheduler(repo, map[string]*domain.Property{
		"p2": {ID: "p2", Currency: "USD", BasePrice: usd("200.00")},
	}, cache)
	sched.Tick(context.Background())

	if got := repo.status("bad"); got != domain.DiscountScheduled {
		t.Fatalf("malformed discount should stay put, got %s", got)
	}
	if got := repo.status("good"); got != domain.DiscountActive {
		t.Fatalf("healthy discount should still transition, got %s", got)
	}
	price, err := cache.Get(context.Background(), "p2", "")
	if err != nil {
		t.Fatalf("expected cached price for healthy property: %v", err)
	}
	if !price.FinalPrice.Equal(usd("150.00")) {
		t.Fatalf("expected 150.00, got %s", price.FinalPrice)
	}
}

func TestTickRefreshesUserScopedViewerRows(t *testing.T) {
	disc := &domain.Discount{
		ID:         "d1",
		PropertyID: "p1",
		Status:     domain.DiscountScheduled,
		ValueType:  domain.ValuePercentage,
		Value:      usd("50"),
		Scope:      domain.ScopeUsers,
		UserIDs:    []string{"vip-1"},
		StartsAt:   schedNow.Add(-time.Hour),
		EndsAt:     schedNow.Add(time.Hour),
	}
	repo := newMemDiscountRepo(disc)
	cache := newMemPriceCache()

	sched := newScheduler(repo, map[string]*domain.Property{
		"p1": {ID: "p1", Currency: "USD", BasePrice: usd("100.00")},
	}, cache)
	sched.Tick(context.Background())

	vip, err := cache.Get(context.Background(), "p1", "vip-1")
	if err != nil {
		t.Fatalf("expected vip price: %v", err)
	}
	if !vip.FinalPrice.Equal(usd("50.00")) {
		t.Fatalf("expected 50.00 for vip, got %s", vip.FinalPrice)
	}

	everyone, err := cache.Get(context.Background(), "p1", "")
	if err != nil {
		t.Fatalf("expected all-users price: %v", err)
	}
	if !everyone.FinalPrice.Equal(usd("100.00")) {
		t.Fatalf("expected base price for anonymous viewer, got %s", everyone.FinalPrice)
	}
}

func TestTickSkipsWhenCycleAlreadyRunning(t *testing.T) {
	disc := &domain.Discount{
		ID:         "d1",
		PropertyID: "p1",
		Status:     domain.DiscountScheduled,
		ValueType:  domain.ValuePercentage,
		Value:      usd("10"),
		Scope:      domain.ScopeAllUsers,
		StartsAt:   schedNow.Add(-time.Hour),
		EndsAt:     schedNow.Add(time.Hour),
	}
	repo := newMemDiscountRepo(disc)
	repo.listGate = make(chan struct{})
	cache := newMemPriceCache()

	sched := newScheduler(repo, map[string]*domain.Property{
		"p1": {ID: "p1", Currency: "USD", BasePrice: usd("100.00")},
	}, cache)

	firstDone := make(chan bool)
	go func() {
		firstDone <- sched.Tick(context.Background())
	}()

	// Wait until the first cycle has claimed the guard and is parked
	// inside ListActionable.
	deadline := time.After(time.Second)
	for !sched.running.Load() {
		select {
		case <-deadline:
			t.Fatal("first cycle never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if sched.Tick(context.Background()) {
		t.Fatal("second tick should have been skipped")
	}

	close(repo.listGate)
	if !<-firstDone {
		t.Fatal("first tick should have run")
	}
	if got := repo.status("d1"); got != domain.DiscountActive {
		t.Fatalf("expected active after first cycle, got %s", got)
	}
}

func TestTickSkipsPriceRefreshForDeletedProperty(t *testing.T) {
	disc := &domain.Discount{
		ID:         "d1",
		PropertyID: "gone",
		Status:     domain.DiscountActive,
		ValueType:  domain.ValuePercentage,
		Value:      usd("10"),
		Scope:      domain.ScopeAllUsers,
		StartsAt:   schedNow.Add(-2 * time.Hour),
		EndsAt:     schedNow.Add(-time.Hour),
	}
	repo := newMemDiscountRepo(disc)
	cache := newMemPriceCache()

	sched := newScheduler(repo, map[string]*domain.Property{}, cache)
	sched.Tick(context.Background())

	// The transition still lands even though the property is gone.
	if got := repo.status("d1"); got != domain.DiscountExpired {
		t.Fatalf("expected expired, got %s", got)
	}
	if _, err := cache.Get(context.Background(), "gone", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("no price should be cached for a missing property")
	}
}
