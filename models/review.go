package models

import "time"

// HostKind names the two entity types that carry an embedded review collection.
type HostKind string

const (
	ProductHost HostKind = "product"
	StoreHost   HostKind = "store"
)

func (k HostKind) Valid() bool { return k == ProductHost || k == StoreHost }

type Review struct {
	ID      string    `json:"_id" bson:"_id"`
	User    string    `json:"user" bson:"user"`
	Rating  int       `json:"rating" bson:"rating"`
	Comment string    `json:"comment" bson:"comment"`
	Date    time.Time `json:"date" bson:"date"`
}

// Host is the slice of a product or store document this core reads and writes.
// Rating and NumReviews are caches of Reviews.
type Host struct {
	ID         string   `json:"_id" bson:"_id"`
	Kind       HostKind `json:"kind" bson:"-"`
	Name       string   `json:"name" bson:"name"`
	Owner      string   `json:"owner,omitempty" bson:"owner,omitempty"`
	CreatedBy  string   `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	Reviews    []Review `json:"reviews" bson:"reviews"`
	Rating     float64  `json:"rating" bson:"rating"`
	NumReviews int      `json:"numReviews" bson:"numReviews"`
	Version    int64    `json:"-" bson:"version"`
}

// OwnerID is the store owner, or the user who listed the product.
func (h *Host) OwnerID() string {
	if h.Owner != "" {
		return h.Owner
	}
	return h.CreatedBy
}

// Recompute derives Rating and NumReviews from Reviews. An empty collection
// rates 0.
func (h *Host) Recompute() {
	h.NumReviews = len(h.Reviews)
	if h.NumReviews == 0 {
		h.Rating = 0
		return
	}
	sum := 0
	for _, r := range h.Reviews {
		sum += r.Rating
	}
	h.Rating = float64(sum) / float64(h.NumReviews)
}

func (h *Host) Clone() *Host {
	if h == nil {
		return nil
	}
	c := *h
	c.Reviews = append([]Review(nil), h.Reviews...)
	return &c
}

// ReviewListing is one review flattened out of its host for moderation.
type ReviewListing struct {
	Review
	HostKind HostKind `json:"hostKind"`
	HostID   string   `json:"hostId"`
	HostName string   `json:"hostName"`
}

type ReviewStats struct {
	TotalReviews       int         `json:"totalReviews"`
	AverageRating      float64     `json:"averageRating"`
	RatingDistribution map[int]int `json:"ratingDistribution"`
}

// StoreAnalytics is the owner's view of a store's reviews.
type StoreAnalytics struct {
	ReviewStats   ReviewStats `json:"reviewStats"`
	RecentReviews []Review    `json:"recentReviews"`
}
