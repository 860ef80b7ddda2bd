package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bazaar/auth"
	"bazaar/errs"
	"bazaar/models"
	"bazaar/mq"
	"bazaar/utils"

	"github.com/shopspring/decimal"
)

// Repository persists order documents. Update must fail with errs.ErrStale
// when the stored version differs from o.Version, and bump o.Version on success.
type Repository interface {
	Insert(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id string) (*models.Order, error)
	Update(ctx context.Context, o *models.Order) error
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
	ListByStore(ctx context.Context, storeID string) ([]models.Order, error)
	ListAll(ctx context.Context) ([]models.Order, error)
}

// Catalog answers whether a store or product id resolves, and who owns it.
type Catalog interface {
	Exists(ctx context.Context, kind models.HostKind, id string) (bool, error)
	GetHost(ctx context.Context, kind models.HostKind, id string) (*models.Host, error)
}

type Options struct {
	// Strict enables the forward-only transition table.
	Strict bool
	// Catalog, when set, is used to reject orders for unknown stores or
	// products and to find store owners. Without it only admins may fulfil.
	Catalog Catalog
	Events  mq.Publisher
	Now     func() time.Time
}

// Manager owns order creation, status transitions and tracking.
type Manager struct {
	repo    Repository
	policy  *auth.Policy
	catalog Catalog
	events  mq.Publisher
	strict  bool
	now     func() time.Time
}

func NewManager(repo Repository, policy *auth.Policy, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Events == nil {
		opts.Events = mq.LogPublisher{}
	}
	return &Manager{
		repo:    repo,
		policy:  policy,
		catalog: opts.Catalog,
		events:  opts.Events,
		strict:  opts.Strict,
		now:     opts.Now,
	}
}

func (m *Manager) Strict() bool { return m.strict }

// clock returns the current time at BSON date precision.
func (m *Manager) clock() time.Time {
	return m.now().UTC().Truncate(time.Millisecond)
}

type ItemInput struct {
	Product  string          `json:"product" validate:"required"`
	Quantity int             `json:"quantity" validate:"min=1"`
	Price    decimal.Decimal `json:"price"`
}

type CreateInput struct {
	Store        string         `json:"store" validate:"required"`
	Items        []ItemInput    `json:"items" validate:"required,min=1,dive"`
	ShippingInfo map[string]any `json:"shippingInfo"`
}

// Create places a pending order for actor. The total is computed from the
// prices the client sent; they are not re-checked against the catalog.
func (m *Manager) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*models.Order, error) {
	if err := m.policy.Authorize(actor, auth.CreateOrder, ""); err != nil {
		return nil, err
	}
	if err := utils.Validate(in); err != nil {
		return nil, err
	}

	items := make([]models.OrderItem, len(in.Items))
	for i, it := range in.Items {
		if it.Price.IsNegative() {
			return nil, errs.Validationf("items[%d].price must not be negative", i)
		}
		items[i] = models.OrderItem{Product: it.Product, Quantity: it.Quantity, Price: it.Price}
	}
	if err := m.checkReferences(ctx, in.Store, items); err != nil {
		return nil, err
	}

	now := m.clock()
	o := &models.Order{
		ID:           utils.GetUUID(),
		User:         actor.UserID,
		Store:        in.Store,
		Items:        items,
		Total:        models.ItemsTotal(items),
		Status:       models.StatusPending,
		ShippingInfo: in.ShippingInfo,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.repo.Insert(ctx, o); err != nil {
		return nil, errs.Wrap(err, "create order")
	}

	mq.Emit(ctx, m.events, mq.Event{
		Name: mq.OrderCreated, EntityType: "order", EntityID: o.ID,
		ItemType: "store", ItemID: o.Store, ActorID: actor.UserID,
	})
	return o, nil
}

func (m *Manager) checkReferences(ctx context.Context, store string, items []models.OrderItem) error {
	if m.catalog == nil {
		return nil
	}
	ok, err := m.catalog.Exists(ctx, models.StoreHost, store)
	if err != nil {
		return errs.Wrap(err, "check store")
	}
	if !ok {
		return errs.NotFoundf("Store not found")
	}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if seen[it.Product] {
			continue
		}
		seen[it.Product] = true
		ok, err := m.catalog.Exists(ctx, models.ProductHost, it.Product)
		if err != nil {
			return errs.Wrap(err, "check product")
		}
		if !ok {
			return errs.NotFoundf("Product %s not found", it.Product)
		}
	}
	return nil
}

// Get returns an order to its owner or an admin.
func (m *Manager) Get(ctx context.Context, actor auth.Actor, id string) (*models.Order, error) {
	return m.load(ctx, actor, auth.ViewOrder, id)
}

// ForSlip returns an order for packing-slip rendering to its buyer, the
// store's owner or an admin.
func (m *Manager) ForSlip(ctx context.Context, actor auth.Actor, id string) (*models.Order, error) {
	o, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, errs.Wrap(err, "load order")
	}
	if m.policy.Allowed(actor, auth.PrintSlip, o.User) {
		return o, nil
	}
	if err := m.authorizeStore(ctx, actor, auth.PrintSlip, o.Store); err != nil {
		return nil, err
	}
	return o, nil
}

// ScanResult is what a scanned packing slip resolves to. Current is false
// when the slip was printed before the tracking number last changed.
type ScanResult struct {
	Order   *models.Order `json:"order"`
	Current bool          `json:"current"`
}

// Scan looks up the order named by a verified slip for the store's staff.
func (m *Manager) Scan(ctx context.Context, actor auth.Actor, id, trackingNumber string) (*ScanResult, error) {
	o, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, errs.Wrap(err, "load order")
	}
	if err := m.authorizeStore(ctx, actor, auth.ScanSlip, o.Store); err != nil {
		return nil, err
	}
	number := ""
	if o.Tracking != nil {
		number = o.Tracking.Number
	}
	return &ScanResult{Order: o, Current: number == trackingNumber}, nil
}

func (m *Manager) load(ctx context.Context, actor auth.Actor, op auth.Operation, id string) (*models.Order, error) {
	o, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, errs.Wrap(err, "load order")
	}
	if err := m.policy.Authorize(actor, op, o.User); err != nil {
		return nil, err
	}
	return o, nil
}

// storeOwner resolves who runs storeID. Without a catalog, or once the store
// is gone, there is no owner and only admins pass.
func (m *Manager) storeOwner(ctx context.Context, storeID string) (string, error) {
	if m.catalog == nil || storeID == "" {
		return "", nil
	}
	h, err := m.catalog.GetHost(ctx, models.StoreHost, storeID)
	if errs.Is(err, errs.NotFound) {
		return "", nil
	}
	if err != nil {
		return "", errs.Wrap(err, "load store")
	}
	return h.OwnerID(), nil
}

func (m *Manager) authorizeStore(ctx context.Context, actor auth.Actor, op auth.Operation, storeID string) error {
	owner, err := m.storeOwner(ctx, storeID)
	if err != nil {
		return err
	}
	return m.policy.Authorize(actor, op, owner)
}

// authorizeOrder checks actor against the owner of the store order id was
// placed with. An order's store never changes, so this holds across retries.
func (m *Manager) authorizeOrder(ctx context.Context, actor auth.Actor, op auth.Operation, id string) error {
	o, err := m.repo.Get(ctx, id)
	if err != nil {
		return errs.Wrap(err, "load order")
	}
	return m.authorizeStore(ctx, actor, op, o.Store)
}

func (m *Manager) ListMine(ctx context.Context, actor auth.Actor) ([]models.Order, error) {
	if err := m.policy.Authorize(actor, auth.ListOwnOrders, ""); err != nil {
		return nil, err
	}
	orders, err := m.repo.ListByUser(ctx, actor.UserID)
	return orders, errs.Wrap(err, "list user orders")
}

// ListByStore returns a store's orders to its owner or an admin.
func (m *Manager) ListByStore(ctx context.Context, actor auth.Actor, storeID string) ([]models.Order, error) {
	if err := m.authorizeStore(ctx, actor, auth.ListStoreOrders, storeID); err != nil {
		return nil, err
	}
	orders, err := m.repo.ListByStore(ctx, storeID)
	return orders, errs.Wrap(err, "list store orders")
}

func (m *Manager) ListAll(ctx context.Context, actor auth.Actor) ([]models.Order, error) {
	if err := m.policy.Authorize(actor, auth.ListAllOrders, ""); err != nil {
		return nil, err
	}
	orders, err := m.repo.ListAll(ctx)
	return orders, errs.Wrap(err, "list orders")
}

type TrackingUpdateInput struct {
	Status      string `json:"status"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

type StatusInput struct {
	Status         models.Status        `json:"status" validate:"required"`
	TrackingUpdate *TrackingUpdateInput `json:"trackingUpdate"`
}

// UpdateStatus sets the order status and optionally appends a tracking update.
// Only the store's owner or an admin may do it.
func (m *Manager) UpdateStatus(ctx context.Context, actor auth.Actor, id string, in StatusInput) (*models.Order, error) {
	if err := utils.Validate(in); err != nil {
		return nil, err
	}
	if !in.Status.Valid() {
		return nil, errs.Validationf("status must be one of %v", models.Statuses)
	}
	if err := m.authorizeOrder(ctx, actor, auth.UpdateOrderStatus, id); err != nil {
		return nil, err
	}

	o, err := m.mutate(ctx, id, func(o *models.Order) error {
		if err := checkTransition(m.strict, o.Status, in.Status); err != nil {
			return err
		}
		o.Status = in.Status
		if tu := in.TrackingUpdate; tu != nil {
			label := tu.Status
			if label == "" {
				label = string(in.Status)
			}
			m.appendUpdate(o, models.TrackingUpdate{Status: label, Description: tu.Description, Location: tu.Location})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	mq.Emit(ctx, m.events, mq.Event{
		Name: mq.OrderStatusUpdated, EntityType: "order", EntityID: o.ID,
		ItemType: "status", ItemID: string(o.Status), ActorID: actor.UserID,
	})
	return o, nil
}

type TrackingInput struct {
	TrackingNumber    string `json:"trackingNumber" validate:"required"`
	Carrier           string `json:"carrier" validate:"required"`
	EstimatedDelivery string `json:"estimatedDelivery"`
}

// AddTracking records carrier details and appends a "shipped" event. The
// order status itself is left alone.
func (m *Manager) AddTracking(ctx context.Context, actor auth.Actor, id string, in TrackingInput) (*models.Order, error) {
	if err := utils.Validate(in); err != nil {
		return nil, err
	}
	eta, err := parseDate(in.EstimatedDelivery)
	if err != nil {
		return nil, err
	}
	if err := m.authorizeOrder(ctx, actor, auth.AddTracking, id); err != nil {
		return nil, err
	}

	o, err := m.mutate(ctx, id, func(o *models.Order) error {
		if o.Tracking == nil {
			o.Tracking = &models.Tracking{Updates: []models.TrackingUpdate{}}
		}
		o.Tracking.Number = in.TrackingNumber
		o.Tracking.Carrier = in.Carrier
		o.Tracking.EstimatedDelivery = eta
		m.appendUpdate(o, models.TrackingUpdate{
			Status:      string(models.StatusShipped),
			Description: fmt.Sprintf("Order shipped via %s", in.Carrier),
			Location:    "Warehouse",
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	mq.Emit(ctx, m.events, mq.Event{
		Name: mq.OrderTrackingAdded, EntityType: "order", EntityID: o.ID,
		ItemType: "carrier", ItemID: in.Carrier, ActorID: actor.UserID,
	})
	return o, nil
}

// appendUpdate stamps u with a server time strictly after the previous update.
func (m *Manager) appendUpdate(o *models.Order, u models.TrackingUpdate) {
	if o.Tracking == nil {
		o.Tracking = &models.Tracking{Updates: []models.TrackingUpdate{}}
	}
	ts := m.clock()
	if n := len(o.Tracking.Updates); n > 0 {
		if last := o.Tracking.Updates[n-1].Timestamp; !ts.After(last) {
			ts = last.Add(time.Millisecond)
		}
	}
	u.Timestamp = ts
	o.Tracking.Updates = append(o.Tracking.Updates, u)
}

// mutate runs a read-modify-write on one order, re-reading on version
// conflicts until ctx ends.
func (m *Manager) mutate(ctx context.Context, id string, apply func(*models.Order) error) (*models.Order, error) {
	var saved *models.Order
	err := utils.RetryStale(ctx, "order "+id, func() error {
		o, err := m.repo.Get(ctx, id)
		if err != nil {
			return errs.Wrap(err, "load order")
		}
		if err := apply(o); err != nil {
			return err
		}
		o.UpdatedAt = m.clock()

		if err := m.repo.Update(ctx, o); err != nil {
			if errors.Is(err, errs.ErrStale) {
				return err
			}
			return errs.Wrap(err, "save order")
		}
		saved = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errs.Validationf("estimatedDelivery must be a date (YYYY-MM-DD or RFC 3339)")
}
