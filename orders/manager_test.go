package orders

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"bazaar/auth"
	"bazaar/errs"
	"bazaar/memdb"
	"bazaar/models"
	"bazaar/mq"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	shopper = auth.Actor{UserID: "u-shopper", Roles: []auth.Role{auth.Shopper}}
	other   = auth.Actor{UserID: "u-other", Roles: []auth.Role{auth.Shopper}}
	vendor  = auth.Actor{UserID: "u-vendor", Roles: []auth.Role{auth.Vendor}}
	rival   = auth.Actor{UserID: "u-rival", Roles: []auth.Role{auth.Vendor}}
	admin   = auth.Actor{UserID: "u-admin", Roles: []auth.Role{auth.Admin}}

	fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	m      *Manager
	repo   *memdb.Orders
	hosts  *memdb.Hosts
	events *mq.Recorder
}

func newFixture(t *testing.T, strict bool) *fixture {
	t.Helper()
	f := &fixture{repo: memdb.NewOrders(), hosts: memdb.NewHosts(), events: &mq.Recorder{}}
	f.hosts.Put(models.StoreHost, models.Host{ID: "s-1", Name: "Shop", Owner: "u-vendor"})
	f.hosts.Put(models.StoreHost, models.Host{ID: "s-2", Name: "Rival", Owner: "u-rival"})
	f.hosts.Put(models.ProductHost, models.Host{ID: "p-1", Name: "Mug"})
	f.hosts.Put(models.ProductHost, models.Host{ID: "p-2", Name: "Plate"})
	f.m = NewManager(f.repo, auth.NewPolicy(nil), Options{
		Strict:  strict,
		Catalog: f.hosts,
		Events:  f.events,
		Now:     func() time.Time { return fixedNow },
	})
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) create(t *testing.T) *models.Order {
	t.Helper()
	o, err := f.m.Create(context.Background(), shopper, CreateInput{
		Store: "s-1",
		Items: []ItemInput{
			{Product: "p-1", Quantity: 2, Price: dec("10.00")},
			{Product: "p-2", Quantity: 1, Price: dec("5.50")},
		},
		ShippingInfo: map[string]any{"city": "Porto"},
	})
	require.NoError(t, err)
	return o
}

func TestCreateComputesTotal(t *testing.T) {
	f := newFixture(t, false)
	o := f.create(t)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "u-shopper", o.User)
	assert.Equal(t, models.StatusPending, o.Status)
	assert.True(t, dec("25.50").Equal(o.Total), "total %s", o.Total)
	assert.Nil(t, o.Tracking)
	assert.Equal(t, fixedNow, o.CreatedAt)
	assert.Equal(t, []string{mq.OrderCreated}, f.events.Names())

	stored, err := f.repo.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(models.ItemsTotal(stored.Items)))
}

func TestCreateDecimalTotalIsExact(t *testing.T) {
	f := newFixture(t, false)
	o, err := f.m.Create(context.Background(), shopper, CreateInput{
		Store: "s-1",
		Items: []ItemInput{
			{Product: "p-1", Quantity: 3, Price: dec("0.10")},
			{Product: "p-2", Quantity: 1, Price: dec("0.20")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "0.5", o.Total.String())
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	cases := map[string]CreateInput{
		"no items":       {Store: "s-1"},
		"empty items":    {Store: "s-1", Items: []ItemInput{}},
		"no store":       {Items: []ItemInput{{Product: "p-1", Quantity: 1, Price: dec("1")}}},
		"zero quantity":  {Store: "s-1", Items: []ItemInput{{Product: "p-1", Quantity: 0, Price: dec("1")}}},
		"negative price": {Store: "s-1", Items: []ItemInput{{Product: "p-1", Quantity: 1, Price: dec("-1")}}},
		"no product":     {Store: "s-1", Items: []ItemInput{{Quantity: 1, Price: dec("1")}}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.m.Create(ctx, shopper, in)
			assert.True(t, errs.Is(err, errs.Validation), "got %v", err)
		})
	}
	assert.Empty(t, f.events.Names())
}

func TestCreateChecksCatalog(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.m.Create(ctx, shopper, CreateInput{
		Store: "missing",
		Items: []ItemInput{{Product: "p-1", Quantity: 1, Price: dec("1")}},
	})
	assert.True(t, errs.Is(err, errs.NotFound))

	_, err = f.m.Create(ctx, shopper, CreateInput{
		Store: "s-1",
		Items: []ItemInput{{Product: "nope", Quantity: 1, Price: dec("1")}},
	})
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestCreateRequiresIdentity(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.m.Create(context.Background(), auth.Actor{}, CreateInput{
		Store: "s-1",
		Items: []ItemInput{{Product: "p-1", Quantity: 1, Price: dec("1")}},
	})
	assert.True(t, errs.Is(err, errs.Forbidden))
}

func TestGetOwnerOrAdmin(t *testing.T) {
	f := newFixture(t, false)
	o := f.create(t)
	ctx := context.Background()

	_, err := f.m.Get(ctx, shopper, o.ID)
	assert.NoError(t, err)
	_, err = f.m.Get(ctx, admin, o.ID)
	assert.NoError(t, err)

	_, err = f.m.Get(ctx, other, o.ID)
	assert.True(t, errs.Is(err, errs.Forbidden))
	_, err = f.m.Get(ctx, vendor, o.ID)
	assert.True(t, errs.Is(err, errs.Forbidden))

	_, err = f.m.Get(ctx, admin, "missing")
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestListings(t *testing.T) {
	f := newFixture(t, false)
	o := f.create(t)
	ctx := context.Background()

	mine, err := f.m.ListMine(ctx, shopper)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, o.ID, mine[0].ID)

	none, err := f.m.ListMine(ctx, other)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = f.m.ListByStore(ctx, shopper, "s-1")
	assert.True(t, errs.Is(err, errs.Forbidden))
	byStore, err := f.m.ListByStore(ctx, vendor, "s-1")
	require.NoError(t, err)
	assert.Len(t, byStore, 1)

	_, err = f.m.ListAll(ctx, vendor)
	assert.True(t, errs.Is(err, errs.Forbidden))
	all, err := f.m.ListAll(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpdateStatusPermissive(t *testing.T) {
	f := newFixture(t, false)
	o := f.create(t)
	ctx := context.Background()

	got, err := f.m.UpdateStatus(ctx, vendor, o.ID, StatusInput{Status: models.StatusDelivered})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got.Status)
	assert.Nil(t, got.Tracking)
	assert.True(t, dec("25.50").Equal(got.Total), "total %s", got.Total)

	// Backwards moves are allowed unless strict mode is on.
	got, err = f.m.UpdateStatus(ctx, admin, o.ID, StatusInput{Status: models.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	assert.Equal(t, []string{mq.OrderCreated, mq.OrderStatusUpdated, mq.OrderStatusUpdated}, f.events.Names())
}

func TestUpdateStatusRejections(t *testing.T) {
	f := newFixture(t, false)
	o := f.create(t)
	ctx := context.Background()

	_, err := f.m.UpdateStatus(ctx, shopper, o.ID, StatusInput{Status: models.StatusShipped})
	assert.True(t, errs.Is(err, errs.Forbidden))

	_, err = f.m.UpdateStatus(ctx, vendor, o.ID, StatusInput{Status: "lost"})
	assert.True(t, errs.Is(err, errs.Validation))

	_, err = f.m.UpdateStatus(ctx, vendor, "missing", StatusInput{Status: models.StatusShipped})
	assert.True(t, errs.Is(err, errs.NotFound))

	stored, err := f.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestUpdateStatusStrict(t *testing.T) {
	f := newFixture(t, true)
	o := f.create(t)
	ctx := context.Background()

	_, err := f.m.UpdateStatus(ctx, vendor, o.ID, StatusInput{Status: models.StatusShipped})
	assert.True(t, errs.Is(err, errs.Conflict), "skipping processing must fail, got %v", err)

	for _, s := range []models.Status{models.StatusProcessing, models.StatusProcessing, models.StatusShipped, models.StatusDelivered} {
		_, err := f.m.UpdateStatus(ctx, vendor, o.ID, StatusInput{Status: s})
		require.NoError(t, err, "to %s", s)
	}

	_, err = f.m.UpdateStatus(ctx, admin, o.ID, StatusInput{Status: models.StatusPending})
	assert.True(t, errs.Is(err, errs.Conflict))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(false, models.StatusDelivered, models.StatusPending))
	assert.True(t, CanTransition(true, models.StatusShipped, models.StatusShipped))
	assert.True(t, CanTransition(true, "", models.StatusProcessing))
	assert.False(t, CanTransition(true, models.StatusDelivered, models.StatusShipped))
	assert.False(t, CanTransition(true, models.StatusPending, models.StatusDelivered))
}

func TestTrackingUpdatesAppendInOrder(t *testing.T) {
	f := newFixture(t, false)
	o := f.create(t)
	ctx := context.Background()

	got, err := f.m.UpdateStatus(ctx, vendor, o.ID, StatusInput{
		Status:         models.StatusProcessing,
		TrackingUpdate: &TrackingUpdateInput{Description: "Packed", Location: "Depot"},
	})
	require.NoError(t, err)
	require.NotNil(t, got.Tracking)
	require.Len(t, got.Tracking.Updates, 1)
	first := got.Tracking.Updates[0]
	assert.Equal(t, "processing", first.Status, "label defaults to the new status")
	assert.Equal(t, "Packed", first.Description)
	assert.Equal(t, "Depot", first.Location)

	got, err = f.m.UpdateStatus(ctx, vendor, o.ID, StatusInput{
		Status:         models.StatusShipped,
		TrackingUpdate: &TrackingUpdateInput{Status: "in transit", Location: "Hub"},
	})
	require.NoError(t, err)
	require.Len(t, got.Tracking.Updates, 2)
	assert.Equal(t, first, got.Tracking.Updates[0], "earlier updates are never rewritten")
	assert.Equal(t, "in transit", got.Tracking.Updates[1].Status)
	assert.True(t, got.Tracking.Updates[1].Timestamp.After(first.Timestamp),
		"timestamps must increase even with a frozen clock")
}

func TestAddTracking(t *testing.T) {
	f := newFixture(t, false)
	o := f.create(t)
	ctx := context.Background()

	got, err := f.m.AddTracking(ctx, vendor, o.ID, TrackingInput{
		TrackingNumber: "TRK-9", Carrier: "UPS", EstimatedDelivery: "2026-05-09",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status, "adding tracking leaves the status alone")
	require.NotNil(t, got.Tracking)
	assert.Equal(t, "TRK-9", got.Tracking.Number)
	assert.Equal(t, "UPS", got.Tracking.Carrier)
	require.NotNil(t, got.Tracking.EstimatedDelivery)
	assert.Equal(t, time.Date(2026, 5, 9, 0, 0, 0, 0, time.UTC), *got.Tracking.EstimatedDelivery)
	require.Len(t, got.Tracking.Updates, 1)
	assert.True(t, dec("25.50").Equal(got.Total), "total %s", got.Total)
	u := got.Tracking.Updates[0]
	assert.Equal(t, "shipped", u.Status)
	assert.Equal(t, "Order shipped via UPS", u.Description)
	assert.Equal(t, "Warehouse", u.Location)

	// A second call replaces carrier details but keeps the history.
	got, err = f.m.AddTracking(ctx, admin, o.ID, TrackingInput{TrackingNumber: "TRK-10", Carrier: "DHL"})
	require.NoError(t, err)
	assert.Equal(t, "TRK-10", got.Tracking.Number)
	assert.Nil(t, got.Tracking.EstimatedDelivery)
	assert.Len(t, got.Tracking.Updates, 2)

	_, err = f.m.AddTracking(ctx, shopper, o.ID, TrackingInput{TrackingNumber: "x", Carrier: "y"})
	assert.True(t, errs.Is(err, errs.Forbidden))
	_, err = f.m.AddTracking(ctx, vendor, o.ID, TrackingInput{Carrier: "y"})
	assert.True(t, errs.Is(err, errs.Validation))
	_, err = f.m.AddTracking(ctx, vendor, o.ID, TrackingInput{TrackingNumber: "x", Carrier: "y", EstimatedDelivery: "soon"})
	assert.True(t, errs.Is(err, errs.Validation))

	assert.Equal(t, []string{mq.OrderCreated, mq.OrderTrackingAdded, mq.OrderTrackingAdded}, f.events.Names())
}

// staleRepo fails the first n updates with a version conflict.
type staleRepo struct {
	*memdb.Orders
	mu sync.Mutex
	n  int
}

func (r *staleRepo) Update(ctx context.Context, o *models.Order) error {
	r.mu.Lock()
	if r.n > 0 {
		r.n--
		r.mu.Unlock()
		return errs.ErrStale
	}
	r.mu.Unlock()
	return r.Orders.Update(ctx, o)
}

func TestStaleWritesAreRetried(t *testing.T) {
	ctx := context.Background()
	repo := &staleRepo{Orders: memdb.NewOrders(), n: 5}
	m := NewManager(repo, auth.NewPolicy(nil), Options{Events: &mq.Recorder{}})
	o, err := m.Create(ctx, shopper, CreateInput{
		Store: "s-1",
		Items: []ItemInput{{Product: "p-1", Quantity: 1, Price: dec("1")}},
	})
	require.NoError(t, err)

	got, err := m.UpdateStatus(ctx, admin, o.ID, StatusInput{Status: models.StatusProcessing})
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)

	// A write that never wins gives up when the caller's deadline passes.
	repo.mu.Lock()
	repo.n = 1 << 30
	repo.mu.Unlock()
	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = m.UpdateStatus(short, admin, o.ID, StatusInput{Status: models.StatusShipped})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Persistence), "got %v", err)
	assert.ErrorIs(t, err, errs.ErrStale)
}

func TestConcurrentTrackingUpdatesAreNotLost(t *testing.T) {
	f := newFixture(t, false)
	o := f.create(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errsCh := make(chan error, 2)
	for _, loc := range []string{"A", "B"} {
		wg.Add(1)
		go func(loc string) {
			defer wg.Done()
			_, err := f.m.UpdateStatus(ctx, vendor, o.ID, StatusInput{
				Status:         models.StatusProcessing,
				TrackingUpdate: &TrackingUpdateInput{Location: loc},
			})
			errsCh <- err
		}(loc)
	}
	wg.Wait()
	close(errsCh)
	for err := range errsCh {
		require.NoError(t, err)
	}

	stored, err := f.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, stored.Tracking.Updates, 2)
	assert.True(t, stored.Tracking.Updates[1].Timestamp.After(stored.Tracking.Updates[0].Timestamp))
}

// slowOrders delays every read so concurrent writers overlap.
type slowOrders struct {
	*memdb.Orders
}

func (r slowOrders) Get(ctx context.Context, id string) (*models.Order, error) {
	time.Sleep(2 * time.Millisecond)
	return r.Orders.Get(ctx, id)
}

func TestContendedTrackingUpdatesAllLand(t *testing.T) {
	f := newFixture(t, false)
	o := f.create(t)
	m := NewManager(slowOrders{f.repo}, auth.NewPolicy(nil), Options{Catalog: f.hosts, Events: &mq.Recorder{}})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	const writers = 10
	var wg sync.WaitGroup
	errsCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.UpdateStatus(ctx, vendor, o.ID, StatusInput{
				Status:         models.StatusProcessing,
				TrackingUpdate: &TrackingUpdateInput{Location: fmt.Sprintf("hub-%d", i)},
			})
			errsCh <- err
		}(i)
	}
	wg.Wait()
	close(errsCh)
	for err := range errsCh {
		require.NoError(t, err)
	}

	stored, err := f.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Tracking.Updates, writers)
	assert.True(t, dec("25.50").Equal(stored.Total))
}

func TestTotalSurvivesFulfilment(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	o, err := f.m.Create(ctx, shopper, CreateInput{
		Store: "s-1",
		Items: []ItemInput{{Product: "p-1", Quantity: 3, Price: dec("10")}},
	})
	require.NoError(t, err)
	require.True(t, dec("30").Equal(o.Total), "total %s", o.Total)

	shipped, err := f.m.UpdateStatus(ctx, vendor, o.ID, StatusInput{Status: models.StatusShipped})
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, shipped.Status)
	assert.True(t, dec("30").Equal(shipped.Total), "after status: %s", shipped.Total)

	tracked, err := f.m.AddTracking(ctx, vendor, o.ID, TrackingInput{TrackingNumber: "FX1", Carrier: "FedEx"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, tracked.Status)
	assert.True(t, dec("30").Equal(tracked.Total), "after tracking: %s", tracked.Total)
	require.Len(t, tracked.Tracking.Updates, 1)
	assert.Equal(t, "Order shipped via FedEx", tracked.Tracking.Updates[0].Description)

	stored, err := f.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, dec("30").Equal(stored.Total))
	assert.Len(t, stored.Items, 1)
}

func TestOtherStoresVendorsAreDenied(t *testing.T) {
	f := newFixture(t, false)
	o := f.create(t)
	ctx := context.Background()

	_, err := f.m.UpdateStatus(ctx, rival, o.ID, StatusInput{Status: models.StatusDelivered})
	assert.True(t, errs.Is(err, errs.Forbidden), "got %v", err)
	_, err = f.m.AddTracking(ctx, rival, o.ID, TrackingInput{TrackingNumber: "x", Carrier: "y"})
	assert.True(t, errs.Is(err, errs.Forbidden), "got %v", err)
	_, err = f.m.ListByStore(ctx, rival, "s-1")
	assert.True(t, errs.Is(err, errs.Forbidden), "got %v", err)
	_, err = f.m.ForSlip(ctx, rival, o.ID)
	assert.True(t, errs.Is(err, errs.Forbidden), "got %v", err)
	_, err = f.m.Scan(ctx, rival, o.ID, "")
	assert.True(t, errs.Is(err, errs.Forbidden), "got %v", err)

	stored, err := f.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Nil(t, stored.Tracking)

	// The rival still runs its own store.
	own, err := f.m.ListByStore(ctx, rival, "s-2")
	require.NoError(t, err)
	assert.Empty(t, own)

	// Orders of a store that is gone are left to admins.
	_, err = f.m.ListByStore(ctx, vendor, "closed")
	assert.True(t, errs.Is(err, errs.Forbidden))
	_, err = f.m.ListByStore(ctx, admin, "closed")
	assert.NoError(t, err)
}

func TestSlipAccess(t *testing.T) {
	f := newFixture(t, false)
	o := f.create(t)
	ctx := context.Background()

	for _, a := range []auth.Actor{shopper, vendor, admin} {
		_, err := f.m.ForSlip(ctx, a, o.ID)
		assert.NoError(t, err, a.UserID)
	}
	_, err := f.m.ForSlip(ctx, other, o.ID)
	assert.True(t, errs.Is(err, errs.Forbidden))
}

func TestScan(t *testing.T) {
	f := newFixture(t, false)
	o := f.create(t)
	ctx := context.Background()

	res, err := f.m.Scan(ctx, vendor, o.ID, "")
	require.NoError(t, err)
	assert.Equal(t, o.ID, res.Order.ID)
	assert.True(t, res.Current)

	_, err = f.m.AddTracking(ctx, vendor, o.ID, TrackingInput{TrackingNumber: "T2", Carrier: "UPS"})
	require.NoError(t, err)
	res, err = f.m.Scan(ctx, vendor, o.ID, "")
	require.NoError(t, err)
	assert.False(t, res.Current, "slip printed before tracking was added")
	res, err = f.m.Scan(ctx, admin, o.ID, "T2")
	require.NoError(t, err)
	assert.True(t, res.Current)

	_, err = f.m.Scan(ctx, shopper, o.ID, "T2")
	assert.True(t, errs.Is(err, errs.Forbidden))
	_, err = f.m.Scan(ctx, vendor, "missing", "")
	assert.True(t, errs.Is(err, errs.NotFound))
}
