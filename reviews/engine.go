package reviews

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"time"

	"bazaar/auth"
	"bazaar/errs"
	"bazaar/models"
	"bazaar/mq"
	"bazaar/utils"
)

// HostRepository loads products and stores with their embedded reviews.
// SaveReviews writes reviews, rating, numReviews and version in one update and
// fails with errs.ErrStale if the host changed since it was read.
type HostRepository interface {
	GetHost(ctx context.Context, kind models.HostKind, id string) (*models.Host, error)
	ListHosts(ctx context.Context, kind models.HostKind) ([]models.Host, error)
	SaveReviews(ctx context.Context, h *models.Host) error
}

type Options struct {
	Events mq.Publisher
	Now    func() time.Time
}

// Engine keeps one review per user per host and the host's cached rating
// in step with its reviews.
type Engine struct {
	hosts  HostRepository
	policy *auth.Policy
	events mq.Publisher
	now    func() time.Time
}

func NewEngine(hosts HostRepository, policy *auth.Policy, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Events == nil {
		opts.Events = mq.LogPublisher{}
	}
	return &Engine{hosts: hosts, policy: policy, events: opts.Events, now: opts.Now}
}

type ReviewInput struct {
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"required"`
}

func (in *ReviewInput) check() error {
	in.Comment = strings.TrimSpace(in.Comment)
	return utils.Validate(in)
}

// Result is what a review mutation reports back: the review touched, if any,
// and the host's aggregates after the write.
type Result struct {
	Review     *models.Review `json:"review,omitempty"`
	Rating     float64        `json:"rating"`
	NumReviews int            `json:"numReviews"`
}

func result(h *models.Host, r *models.Review) *Result {
	return &Result{Review: r, Rating: h.Rating, NumReviews: h.NumReviews}
}

func (e *Engine) Add(ctx context.Context, actor auth.Actor, kind models.HostKind, hostID string, in ReviewInput) (*Result, error) {
	if err := e.precheck(actor, kind); err != nil {
		return nil, err
	}
	if err := in.check(); err != nil {
		return nil, err
	}

	var added models.Review
	h, err := e.mutate(ctx, kind, hostID, func(h *models.Host) error {
		if indexByUser(h.Reviews, actor.UserID) >= 0 {
			return errs.Conflictf("%s already reviewed", label(kind))
		}
		added = models.Review{
			ID:      utils.GetUUID(),
			User:    actor.UserID,
			Rating:  in.Rating,
			Comment: in.Comment,
			Date:    e.now().UTC().Truncate(time.Millisecond),
		}
		h.Reviews = append(h.Reviews, added)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, mq.ReviewAdded, actor, kind, hostID, added.ID)
	return result(h, &added), nil
}

// Update rewrites the caller's rating and comment. The review keeps its
// original date.
func (e *Engine) Update(ctx context.Context, actor auth.Actor, kind models.HostKind, hostID string, in ReviewInput) (*Result, error) {
	if err := e.precheck(actor, kind); err != nil {
		return nil, err
	}
	if err := in.check(); err != nil {
		return nil, err
	}

	var updated models.Review
	h, err := e.mutate(ctx, kind, hostID, func(h *models.Host) error {
		i := indexByUser(h.Reviews, actor.UserID)
		if i < 0 {
			return errs.NotFoundf("Review not found")
		}
		h.Reviews[i].Rating = in.Rating
		h.Reviews[i].Comment = in.Comment
		updated = h.Reviews[i]
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, mq.ReviewUpdated, actor, kind, hostID, updated.ID)
	return result(h, &updated), nil
}

// DeleteOwn removes the caller's review from the host.
func (e *Engine) DeleteOwn(ctx context.Context, actor auth.Actor, kind models.HostKind, hostID string) (*Result, error) {
	if err := e.precheck(actor, kind); err != nil {
		return nil, err
	}
	return e.remove(ctx, actor, kind, hostID, func(reviews []models.Review) int {
		return indexByUser(reviews, actor.UserID)
	})
}

// DeleteByID is the moderation path: an admin removes any review by id.
func (e *Engine) DeleteByID(ctx context.Context, actor auth.Actor, kind models.HostKind, hostID, reviewID string) (*Result, error) {
	if err := e.policy.Authorize(actor, auth.ModerateReviews, ""); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, errs.Validationf("unknown review host %q", kind)
	}
	return e.remove(ctx, actor, kind, hostID, func(reviews []models.Review) int {
		return slices.IndexFunc(reviews, func(r models.Review) bool { return r.ID == reviewID })
	})
}

func (e *Engine) remove(ctx context.Context, actor auth.Actor, kind models.HostKind, hostID string, find func([]models.Review) int) (*Result, error) {
	var removed models.Review
	h, err := e.mutate(ctx, kind, hostID, func(h *models.Host) error {
		i := find(h.Reviews)
		if i < 0 {
			return errs.NotFoundf("Review not found")
		}
		removed = h.Reviews[i]
		h.Reviews = slices.Delete(h.Reviews, i, i+1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, mq.ReviewDeleted, actor, kind, hostID, removed.ID)
	return result(h, nil), nil
}

// ListAll flattens every review on every host of kind for moderation.
func (e *Engine) ListAll(ctx context.Context, actor auth.Actor, kind models.HostKind) ([]models.ReviewListing, error) {
	if err := e.policy.Authorize(actor, auth.ModerateReviews, ""); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, errs.Validationf("unknown review host %q", kind)
	}
	hosts, err := e.hosts.ListHosts(ctx, kind)
	if err != nil {
		return nil, errs.Wrap(err, "list "+string(kind)+"s")
	}
	out := []models.ReviewListing{}
	for _, h := range hosts {
		for _, r := range h.Reviews {
			out = append(out, models.ReviewListing{Review: r, HostKind: kind, HostID: h.ID, HostName: h.Name})
		}
	}
	return out, nil
}

// HostReviews is the public read of a host's reviews and aggregates.
func (e *Engine) HostReviews(ctx context.Context, kind models.HostKind, hostID string) (*models.Host, error) {
	if !kind.Valid() {
		return nil, errs.Validationf("unknown review host %q", kind)
	}
	h, err := e.hosts.GetHost(ctx, kind, hostID)
	if err != nil {
		return nil, errs.Wrap(err, "load "+string(kind))
	}
	if h.Reviews == nil {
		h.Reviews = []models.Review{}
	}
	return h, nil
}

// Analytics summarizes a store's reviews for its owner or an admin.
func (e *Engine) Analytics(ctx context.Context, actor auth.Actor, storeID string) (*models.StoreAnalytics, error) {
	h, err := e.hosts.GetHost(ctx, models.StoreHost, storeID)
	if err != nil {
		return nil, errs.Wrap(err, "load store")
	}
	if err := e.policy.Authorize(actor, auth.StoreAnalytics, h.OwnerID()); err != nil {
		return nil, err
	}

	stats := models.ReviewStats{
		TotalReviews:       h.NumReviews,
		AverageRating:      h.Rating,
		RatingDistribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
	}
	for _, r := range h.Reviews {
		if r.Rating >= 1 && r.Rating <= 5 {
			stats.RatingDistribution[r.Rating]++
		}
	}

	recent := slices.Clone(h.Reviews)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Date.After(recent[j].Date) })
	if len(recent) > 5 {
		recent = recent[:5]
	}
	if recent == nil {
		recent = []models.Review{}
	}
	return &models.StoreAnalytics{ReviewStats: stats, RecentReviews: recent}, nil
}

func (e *Engine) precheck(actor auth.Actor, kind models.HostKind) error {
	if err := e.policy.Authorize(actor, auth.WriteReview, ""); err != nil {
		return err
	}
	if !kind.Valid() {
		return errs.Validationf("unknown review host %q", kind)
	}
	return nil
}

// mutate applies change to a fresh copy of the host, recomputes the
// aggregates and saves both together. A version conflict re-reads the host
// and reapplies change, so checks inside it always see committed state.
// Conflicts are retried until ctx ends.
func (e *Engine) mutate(ctx context.Context, kind models.HostKind, id string, change func(*models.Host) error) (*models.Host, error) {
	var saved *models.Host
	err := utils.RetryStale(ctx, string(kind)+" "+id, func() error {
		h, err := e.hosts.GetHost(ctx, kind, id)
		if err != nil {
			return errs.Wrap(err, "load "+string(kind))
		}
		h.Kind = kind
		if err := change(h); err != nil {
			return err
		}
		h.Recompute()

		if err := e.hosts.SaveReviews(ctx, h); err != nil {
			if errors.Is(err, errs.ErrStale) {
				return err
			}
			return errs.Wrap(err, "save "+string(kind))
		}
		saved = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (e *Engine) emit(ctx context.Context, name string, actor auth.Actor, kind models.HostKind, hostID, reviewID string) {
	mq.Emit(ctx, e.events, mq.Event{
		Name: name, EntityType: "review", EntityID: reviewID,
		ItemType: string(kind), ItemID: hostID, ActorID: actor.UserID,
	})
}

func indexByUser(reviews []models.Review, userID string) int {
	return slices.IndexFunc(reviews, func(r models.Review) bool { return r.User == userID })
}

func label(kind models.HostKind) string {
	if kind == models.StoreHost {
		return "Store"
	}
	return "Product"
}
