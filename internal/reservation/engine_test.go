package reservation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-seat-inventory/internal/domain"
	"github.com/robertarktes/event-seat-inventory/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu           sync.Mutex
	holds        map[uuid.UUID]domain.Hold
	settings     map[uuid.UUID]domain.EventSettings
	seatPrice    int64
	reserveErr   error
	releaseCalls int
	takenSeats   map[uuid.UUID]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		holds:     map[uuid.UUID]domain.Hold{},
		settings:  map[uuid.UUID]domain.EventSettings{},
		seatPrice:  1000,
		takenSeats: map[uuid.UUID]bool{},
	}
}

func (f *fakeStore) ReserveSeat(_ context.Context, hold domain.Hold, _ time.Time) (domain.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserveErr != nil {
		return domain.Hold{}, f.reserveErr
	}
	hold.UnitPriceMinor = f.seatPrice
	f.holds[hold.ID] = hold
	return hold, nil
}

func (f *fakeStore) ReserveSeats(_ context.Context, holds []domain.Hold, _ time.Time) ([]domain.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var unavailable []domain.UnavailableSeat
	for _, h := range holds {
		if f.takenSeats[*h.SeatID] {
			unavailable = append(unavailable, domain.UnavailableSeat{SeatID: *h.SeatID, Reason: domain.SeatReasonUnavailable})
		}
	}
	if len(unavailable) > 0 {
		return nil, &domain.SeatsUnavailableError{Seats: unavailable}
	}
	out := make([]domain.Hold, len(holds))
	for i, h := range holds {
		h.UnitPriceMinor = f.seatPrice
		f.holds[h.ID] = h
		f.takenSeats[*h.SeatID] = true
		out[i] = h
	}
	return out, nil
}

func (f *fakeStore) ReserveTicketClass(_ context.Context, hold domain.Hold, _ time.Time) (domain.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserveErr != nil {
		return domain.Hold{}, f.reserveErr
	}
	hold.UnitPriceMinor = 250
	f.holds[hold.ID] = hold
	return hold, nil
}

func (f *fakeStore) GetHold(_ context.Context, tenantID, holdID uuid.UUID) (domain.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holds[holdID]
	if !ok || h.TenantID != tenantID {
		return domain.Hold{}, domain.NotFoundf("hold %s not found", holdID)
	}
	return h, nil
}

func (f *fakeStore) ConfirmHold(_ context.Context, hold domain.Hold, price domain.PriceBreakdown, now time.Time) (domain.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.holds[hold.ID]
	if h.Status != domain.HoldHeld || h.ExpiresAt.Before(now) {
		return domain.Hold{}, domain.Conflictf("hold %s is no longer held", hold.ID)
	}
	h.Status = domain.HoldConfirmed
	h.ConfirmedAt = &now
	h.Price = &price
	f.holds[h.ID] = h
	return h, nil
}

func (f *fakeStore) ReleaseHold(_ context.Context, hold domain.Hold, reason string) (domain.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.holds[hold.ID]
	if h.Status != domain.HoldHeld {
		return domain.Hold{}, domain.Conflictf("hold %s is no longer held", hold.ID)
	}
	f.releaseCalls++
	h.Status = domain.HoldReleased
	h.ReleaseReason = reason
	f.holds[h.ID] = h
	return h, nil
}

func (f *fakeStore) SweepExpired(_ context.Context, tenantID, eventID uuid.UUID, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, h := range f.holds {
		if h.TenantID == tenantID && h.EventID == eventID && h.Status == domain.HoldHeld && h.ExpiresAt.Before(now) {
			h.Status = domain.HoldExpired
			f.holds[id] = h
			n += h.Quantity
		}
	}
	return n, nil
}

func (f *fakeStore) GetEventSettings(_ context.Context, _, eventID uuid.UUID) (domain.EventSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[eventID]
	if !ok {
		return domain.EventSettings{}, domain.NotFoundf("no settings")
	}
	return s, nil
}

func (f *fakeStore) UpsertEventSettings(_ context.Context, s domain.EventSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[s.EventID] = s
	return nil
}

type recordingAudit struct {
	actions []string
}

func (a *recordingAudit) LogHold(_ context.Context, action string, _ domain.Hold) error {
	a.actions = append(a.actions, action)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type fixture struct {
	store  *fakeStore
	audit  *recordingAudit
	clock  *clock
	engine *Engine
	tenant uuid.UUID
	event  uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		store:  newFakeStore(),
		audit:  &recordingAudit{},
		clock:  &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		tenant: uuid.New(),
		event:  uuid.New(),
	}
	f.engine = NewEngine(f.store, f.audit, observability.NopLogger(), Options{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     15 * time.Minute,
		Currency:   "EUR",
		Now:        f.clock.Now,
	})
	return f
}

func (f *fixture) reserveSeat(t *testing.T, holder string) domain.Hold {
	t.Helper()
	seat := uuid.New()
	hold, err := f.engine.Reserve(context.Background(), ReserveRequest{
		TenantID:  f.tenant,
		EventID:   f.event,
		Selector:  domain.UnitSelector{SeatID: &seat},
		HolderRef: holder,
	})
	require.NoError(t, err)
	return hold
}

func TestReserveSeat(t *testing.T) {
	f := newFixture()
	hold := f.reserveSeat(t, "buyer-1")

	assert.Equal(t, domain.HoldHeld, hold.Status)
	assert.Equal(t, domain.UnitSeat, hold.Kind)
	assert.Equal(t, 1, hold.Quantity)
	assert.Equal(t, int64(1000), hold.UnitPriceMinor)
	assert.Equal(t, f.clock.t.Add(5*time.Minute), hold.ExpiresAt)
}

func TestReserveUsesEventHoldTTL(t *testing.T) {
	f := newFixture()
	f.store.settings[f.event] = domain.EventSettings{TenantID: f.tenant, EventID: f.event, HoldTTL: 2 * time.Minute}

	hold, err := f.engine.Reserve(context.Background(), ReserveRequest{
		TenantID:  f.tenant,
		EventID:   f.event,
		Selector:  domain.UnitSelector{TicketClass: "GA", Quantity: 3},
		HolderRef: "buyer",
	})
	require.NoError(t, err)
	assert.Equal(t, f.clock.t.Add(2*time.Minute), hold.ExpiresAt)
	assert.Equal(t, 3, hold.Quantity)
	assert.Equal(t, "GA", hold.TicketClass)
}

func TestReserveValidation(t *testing.T) {
	f := newFixture()
	seat := uuid.New()
	cases := map[string]ReserveRequest{
		"no holder":       {Selector: domain.UnitSelector{SeatID: &seat}},
		"seat and class":  {Selector: domain.UnitSelector{SeatID: &seat, TicketClass: "GA", Quantity: 1}, HolderRef: "b"},
		"nothing":         {HolderRef: "b"},
		"zero quantity":   {Selector: domain.UnitSelector{TicketClass: "GA"}, HolderRef: "b"},
		"ttl above max":   {Selector: domain.UnitSelector{SeatID: &seat}, HolderRef: "b", TTL: time.Hour},
		"negative ttl":    {Selector: domain.UnitSelector{SeatID: &seat}, HolderRef: "b", TTL: -time.Second},
		"seat quantity 2": {Selector: domain.UnitSelector{SeatID: &seat, Quantity: 2}, HolderRef: "b"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			req.TenantID, req.EventID = f.tenant, f.event
			_, err := f.engine.Reserve(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Empty(t, f.store.holds)
}

func TestReservePassesStoreConflictThrough(t *testing.T) {
	f := newFixture()
	f.store.reserveErr = domain.Conflictf("seat taken")
	seat := uuid.New()
	_, err := f.engine.Reserve(context.Background(), ReserveRequest{
		TenantID: f.tenant, EventID: f.event, Selector: domain.UnitSelector{SeatID: &seat}, HolderRef: "b",
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestReserveSeatsAllOrNothing(t *testing.T) {
	f := newFixture()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	holds, err := f.engine.ReserveSeats(context.Background(), ReserveSeatsRequest{
		TenantID: f.tenant, EventID: f.event, SeatIDs: domain.SeatSelection{a, b}, HolderRef: "buyer",
	})
	require.NoError(t, err)
	require.Len(t, holds, 2)
	assert.Equal(t, a, *holds[0].SeatID)
	assert.Equal(t, b, *holds[1].SeatID)
	assert.Equal(t, holds[0].ExpiresAt, holds[1].ExpiresAt)
	assert.NotEqual(t, holds[0].ID, holds[1].ID)

	_, err = f.engine.ReserveSeats(context.Background(), ReserveSeatsRequest{
		TenantID: f.tenant, EventID: f.event, SeatIDs: domain.SeatSelection{c, b}, HolderRef: "other",
	})
	require.ErrorIs(t, err, domain.ErrConflict)
	var unavailable *domain.SeatsUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []domain.UnavailableSeat{{SeatID: b, Reason: domain.SeatReasonUnavailable}}, unavailable.Seats)
	assert.False(t, f.store.takenSeats[c], "seat c stays free")
	assert.Len(t, f.store.holds, 2)
}

func TestReserveSeatsValidation(t *testing.T) {
	f := newFixture()
	seat := uuid.New()
	tooMany := make(domain.SeatSelection, domain.MaxSeatsPerOrder+1)
	for i := range tooMany {
		tooMany[i] = uuid.New()
	}
	cases := map[string]ReserveSeatsRequest{
		"no seats":  {HolderRef: "b"},
		"no holder": {SeatIDs: domain.SeatSelection{seat}},
		"duplicate": {SeatIDs: domain.SeatSelection{seat, seat}, HolderRef: "b"},
		"nil id":    {SeatIDs: domain.SeatSelection{uuid.Nil}, HolderRef: "b"},
		"too many":  {SeatIDs: tooMany, HolderRef: "b"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			req.TenantID, req.EventID = f.tenant, f.event
			_, err := f.engine.ReserveSeats(context.Background(), req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Empty(t, f.store.holds)
}

func TestConfirmComputesPrice(t *testing.T) {
	f := newFixture()
	f.store.settings[f.event] = domain.EventSettings{TenantID: f.tenant, EventID: f.event, TaxRate: decimal.NewFromInt(18)}
	hold := f.reserveSeat(t, "buyer")

	confirmed, err := f.engine.Confirm(context.Background(), f.tenant, hold.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.Price)
	assert.Equal(t, int64(1000), confirmed.Price.SubtotalMinor)
	assert.Equal(t, int64(180), confirmed.Price.TaxMinor)
	assert.Equal(t, int64(1180), confirmed.Price.TotalMinor)
	assert.Equal(t, "EUR", confirmed.Price.Currency)
	assert.Equal(t, []string{"hold.confirmed"}, f.audit.actions)

	again, err := f.engine.Confirm(context.Background(), f.tenant, hold.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, confirmed.ID, again.ID)
	assert.Len(t, f.audit.actions, 1)
}

func TestConfirmRejections(t *testing.T) {
	f := newFixture()
	hold := f.reserveSeat(t, "buyer")

	_, err := f.engine.Confirm(context.Background(), f.tenant, hold.ID, "someone-else")
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.engine.Confirm(context.Background(), uuid.New(), hold.ID, "buyer")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f.clock.t = f.clock.t.Add(6 * time.Minute)
	_, err = f.engine.Confirm(context.Background(), f.tenant, hold.ID, "buyer")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestReleaseTwiceIsOk(t *testing.T) {
	f := newFixture()
	hold := f.reserveSeat(t, "buyer")

	released, err := f.engine.Release(context.Background(), f.tenant, hold.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldReleased, released.Status)
	assert.Equal(t, ReasonCancelled, released.ReleaseReason)

	again, err := f.engine.Release(context.Background(), f.tenant, hold.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldReleased, again.Status)
	assert.Equal(t, 1, f.store.releaseCalls)
}

func TestReleaseRejections(t *testing.T) {
	f := newFixture()
	hold := f.reserveSeat(t, "buyer")

	_, err := f.engine.Release(context.Background(), f.tenant, hold.ID, "someone-else")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.engine.Release(context.Background(), uuid.New(), hold.ID, "buyer")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.engine.Confirm(context.Background(), f.tenant, hold.ID, "buyer")
	require.NoError(t, err)
	_, err = f.engine.Release(context.Background(), f.tenant, hold.ID, "buyer")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestReleaseExpiredHoldIsNoop(t *testing.T) {
	f := newFixture()
	hold := f.reserveSeat(t, "buyer")
	f.clock.t = f.clock.t.Add(10 * time.Minute)

	got, err := f.engine.Release(context.Background(), f.tenant, hold.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, domain.HoldExpired, got.Status)
	assert.Equal(t, 0, f.store.releaseCalls)
}

func TestGetHoldReportsLazyExpiry(t *testing.T) {
	f := newFixture()
	hold := f.reserveSeat(t, "buyer")

	got, err := f.engine.GetHold(context.Background(), f.tenant, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldHeld, got.Status)

	f.clock.t = f.clock.t.Add(5*time.Minute + time.Second)
	got, err = f.engine.GetHold(context.Background(), f.tenant, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldExpired, got.Status)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture()
	f.reserveSeat(t, "a")
	f.reserveSeat(t, "b")
	f.clock.t = f.clock.t.Add(time.Hour)
	f.reserveSeat(t, "c")

	n, err := f.engine.SweepExpired(context.Background(), f.tenant, f.event)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestApplyPayment(t *testing.T) {
	f := newFixture()
	paid := f.reserveSeat(t, "buyer")
	failed := f.reserveSeat(t, "buyer")

	got, err := f.engine.ApplyPayment(context.Background(), PaymentResult{
		TenantID: f.tenant, HoldID: paid.ID, HolderRef: "buyer", Status: PaymentSucceeded,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.HoldConfirmed, got.Status)

	got, err = f.engine.ApplyPayment(context.Background(), PaymentResult{
		TenantID: f.tenant, HoldID: failed.ID, HolderRef: "buyer", Status: PaymentFailed,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.HoldReleased, got.Status)
	assert.Equal(t, ReasonPaymentFailed, got.ReleaseReason)

	_, err = f.engine.ApplyPayment(context.Background(), PaymentResult{TenantID: f.tenant, HoldID: paid.ID, HolderRef: "buyer", Status: "refunded"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSettings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	s, err := f.engine.Settings(ctx, f.tenant, f.event)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, s.HoldTTL)
	assert.Equal(t, "EUR", s.Currency)
	assert.True(t, s.TaxRate.IsZero())

	_, err = f.engine.UpdateSettings(ctx, domain.EventSettings{TenantID: f.tenant, EventID: f.event, TaxRate: decimal.NewFromInt(101)})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.engine.UpdateSettings(ctx, domain.EventSettings{TenantID: f.tenant, EventID: f.event, HoldTTL: time.Hour})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.engine.UpdateSettings(ctx, domain.EventSettings{TenantID: f.tenant, EventID: f.event, TaxRate: decimal.NewFromInt(7), HoldTTL: 90 * time.Second, Currency: "USD"})
	require.NoError(t, err)
	s, err = f.engine.Settings(ctx, f.tenant, f.event)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, s.HoldTTL)
	assert.Equal(t, "USD", s.Currency)
	assert.True(t, s.TaxRate.Equal(decimal.NewFromInt(7)))
}
