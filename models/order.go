package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Money goes over the wire as JSON numbers, the way clients send it.
	decimal.MarshalJSONWithoutQuotes = true
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
)

// Statuses lists the lifecycle in forward order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// OrderItem captures the unit price at checkout; it is never re-read from the catalog.
type OrderItem struct {
	Product  string          `json:"product" bson:"product"`
	Quantity int             `json:"quantity" bson:"quantity"`
	Price    decimal.Decimal `json:"price" bson:"price"`
}

type TrackingUpdate struct {
	Status      string    `json:"status" bson:"status"`
	Description string    `json:"description" bson:"description"`
	Location    string    `json:"location" bson:"location"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
}

type Tracking struct {
	Number            string           `json:"number,omitempty" bson:"number,omitempty"`
	Carrier           string           `json:"carrier,omitempty" bson:"carrier,omitempty"`
	EstimatedDelivery *time.Time       `json:"estimatedDelivery,omitempty" bson:"estimatedDelivery,omitempty"`
	Updates           []TrackingUpdate `json:"updates" bson:"updates"`
}

type Order struct {
	ID           string          `json:"_id" bson:"_id"`
	User         string          `json:"user" bson:"user"`
	Store        string          `json:"store" bson:"store"`
	Items        []OrderItem     `json:"items" bson:"items"`
	Total        decimal.Decimal `json:"total" bson:"total"`
	Status       Status          `json:"status" bson:"status"`
	ShippingInfo map[string]any  `json:"shippingInfo,omitempty" bson:"shippingInfo,omitempty"`
	Tracking     *Tracking       `json:"tracking,omitempty" bson:"tracking,omitempty"`
	CreatedAt    time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt" bson:"updatedAt"`
	Version      int64           `json:"-" bson:"version"`
}

func (it OrderItem) LineTotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// ItemsTotal is the sum of price times quantity over items.
func ItemsTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Clone returns a deep copy so stored documents are never shared with callers.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	if o.ShippingInfo != nil {
		c.ShippingInfo = copyMap(o.ShippingInfo)
	}
	if o.Tracking != nil {
		t := *o.Tracking
		t.Updates = append([]TrackingUpdate(nil), o.Tracking.Updates...)
		if o.Tracking.EstimatedDelivery != nil {
			eta := *o.Tracking.EstimatedDelivery
			t.EstimatedDelivery = &eta
		}
		c.Tracking = &t
	}
	return &c
}

// copyMap copies the nested maps and arrays a decoded JSON object can hold.
// Other values are scalars and are shared as is.
func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return copyMap(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
