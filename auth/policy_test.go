package auth

import (
	"testing"

	"bazaar/errs"

	"github.com/stretchr/testify/assert"
)

func TestPolicyRoles(t *testing.T) {
	p := NewPolicy(nil)
	shopper := Actor{UserID: "u1", Roles: []Role{Shopper}}
	vendor := Actor{UserID: "v1", Roles: []Role{Vendor}}
	admin := Actor{UserID: "a1", Roles: []Role{Admin}}

	tests := []struct {
		name  string
		actor Actor
		op    Operation
		owner string
		want  bool
	}{
		{"shopper creates order", shopper, CreateOrder, "", true},
		{"shopper updates status", shopper, UpdateOrderStatus, "", false},
		{"store owner updates status", vendor, UpdateOrderStatus, "v1", true},
		{"other vendor updates status", vendor, UpdateOrderStatus, "v2", false},
		{"vendor of unknown store", vendor, AddTracking, "", false},
		{"other vendor lists store orders", vendor, ListStoreOrders, "v2", false},
		{"admin adds tracking", admin, AddTracking, "", true},
		{"owner views order", shopper, ViewOrder, "u1", true},
		{"stranger views order", shopper, ViewOrder, "u2", false},
		{"vendor views foreign order", vendor, ViewOrder, "u1", false},
		{"admin views order", admin, ViewOrder, "u1", true},
		{"store owner prints slip", vendor, PrintSlip, "v1", true},
		{"other vendor prints slip", vendor, PrintSlip, "u1", false},
		{"other vendor scans slip", vendor, ScanSlip, "v2", false},
		{"shopper moderates", shopper, ModerateReviews, "", false},
		{"store owner analytics", vendor, StoreAnalytics, "v1", true},
		{"other vendor analytics", vendor, StoreAnalytics, "v2", false},
		{"empty owner never matches", Actor{UserID: "x"}, ViewOrder, "", false},
		{"anonymous", Actor{Roles: []Role{Admin}}, ListAllOrders, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Allowed(tt.actor, tt.op, tt.owner))
		})
	}
}

func TestAuthorizeReturnsForbidden(t *testing.T) {
	p := NewPolicy(nil)
	err := p.Authorize(Actor{UserID: "u1", Roles: []Role{Shopper}}, ListAllOrders, "")
	assert.True(t, errs.Is(err, errs.Forbidden))
	assert.NoError(t, p.Authorize(Actor{UserID: "a", Roles: []Role{Admin}}, ListAllOrders, ""))
}

func TestUnknownOperationDenied(t *testing.T) {
	p := NewPolicy(map[Operation]Rule{})
	assert.False(t, p.Allowed(Actor{UserID: "a", Roles: []Role{Admin}}, CreateOrder, ""))
}
