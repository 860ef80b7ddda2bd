package memdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"bazaar/errs"
	"bazaar/models"
)

type hostKey struct {
	kind models.HostKind
	id   string
}

// Hosts stores products and stores with their embedded reviews.
type Hosts struct {
	mu    sync.RWMutex
	hosts map[hostKey]*models.Host
}

func NewHosts() *Hosts {
	return &Hosts{hosts: make(map[hostKey]*models.Host)}
}

// Put creates or replaces a host document.
func (s *Hosts) Put(kind models.HostKind, h models.Host) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h.Kind = kind
	s.hosts[hostKey{kind, h.ID}] = h.Clone()
}

func (s *Hosts) GetHost(ctx context.Context, kind models.HostKind, id string) (*models.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hosts[hostKey{kind, id}]
	if !ok {
		return nil, errs.NotFoundf("%s not found", label(kind))
	}
	return h.Clone(), nil
}

func (s *Hosts) ListHosts(ctx context.Context, kind models.HostKind) ([]models.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Host{}
	for k, h := range s.hosts {
		if k.kind == kind {
			out = append(out, *h.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveReviews writes the review collection and its aggregates in one step,
// provided nobody else wrote the host since it was read.
func (s *Hosts) SaveReviews(ctx context.Context, h *models.Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := hostKey{h.Kind, h.ID}
	cur, ok := s.hosts[key]
	if !ok {
		return errs.NotFoundf("%s not found", label(h.Kind))
	}
	if cur.Version != h.Version {
		return errs.ErrStale
	}
	h.Version++
	next := cur.Clone()
	next.Reviews = append([]models.Review(nil), h.Reviews...)
	next.Rating = h.Rating
	next.NumReviews = h.NumReviews
	next.Version = h.Version
	s.hosts[key] = next
	return nil
}

func (s *Hosts) Exists(ctx context.Context, kind models.HostKind, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.hosts[hostKey{kind, id}]
	return ok, nil
}

func label(kind models.HostKind) string {
	if kind == models.StoreHost {
		return "Store"
	}
	return "Product"
}

// Seed loads products and stores from a JSON document of the form
// {"products": [...], "stores": [...]}.
func (s *Hosts) Seed(r io.Reader) (int, error) {
	var doc struct {
		Products []models.Host `json:"products"`
		Stores   []models.Host `json:"stores"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("decode seed: %w", err)
	}
	for _, h := range doc.Products {
		h.Recompute()
		s.Put(models.ProductHost, h)
	}
	for _, h := range doc.Stores {
		h.Recompute()
		s.Put(models.StoreHost, h)
	}
	return len(doc.Products) + len(doc.Stores), nil
}
