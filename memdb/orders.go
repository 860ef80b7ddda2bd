// Package memdb keeps orders and review hosts in process memory. It honours
// the same version checks as the MongoDB stores, so it can stand in for them
// in tests and in STORE_BACKEND=memory development runs.
package memdb

import (
	"context"
	"sort"
	"sync"

	"bazaar/errs"
	"bazaar/models"
)

type Orders struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
}

func NewOrders() *Orders {
	return &Orders{orders: make(map[string]*models.Order)}
}

func (s *Orders) Insert(ctx context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return errs.Conflictf("order %s already exists", o.ID)
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *Orders) Get(ctx context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, errs.NotFoundf("Order not found")
	}
	return o.Clone(), nil
}

func (s *Orders) Update(ctx context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok {
		return errs.NotFoundf("Order not found")
	}
	if cur.Version != o.Version {
		return errs.ErrStale
	}
	o.Version++
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *Orders) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	return s.list(func(o *models.Order) bool { return o.User == userID }), nil
}

func (s *Orders) ListByStore(ctx context.Context, storeID string) ([]models.Order, error) {
	return s.list(func(o *models.Order) bool { return o.Store == storeID }), nil
}

func (s *Orders) ListAll(ctx context.Context) ([]models.Order, error) {
	return s.list(func(*models.Order) bool { return true }), nil
}

// list returns matching orders, newest first.
func (s *Orders) list(match func(*models.Order) bool) []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Order{}
	for _, o := range s.orders {
		if match(o) {
			out = append(out, *o.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
