package auth

import (
	"slices"

	"bazaar/errs"
)

type Role string

const (
	Shopper Role = "shopper"
	Vendor  Role = "vendor"
	Admin   Role = "admin"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Roles  []Role
}

func (a Actor) Has(role Role) bool {
	return slices.Contains(a.Roles, role)
}

func (a Actor) IsAdmin() bool { return a.Has(Admin) }

type Operation string

const (
	CreateOrder       Operation = "order:create"
	ViewOrder         Operation = "order:view"
	ListOwnOrders     Operation = "order:list-own"
	ListStoreOrders   Operation = "order:list-store"
	ListAllOrders     Operation = "order:list-all"
	UpdateOrderStatus Operation = "order:update-status"
	AddTracking       Operation = "order:add-tracking"
	PrintSlip         Operation = "order:slip"
	ScanSlip          Operation = "order:scan-slip"
	WriteReview       Operation = "review:write"
	ModerateReviews   Operation = "review:moderate"
	StoreAnalytics    Operation = "store:analytics"
)

// Rule grants an operation to any of Roles. With Owner set, the resource
// owner is allowed as well, whatever their role.
type Rule struct {
	Roles []Role
	Owner bool
}

type Policy struct {
	rules map[Operation]Rule
}

var anyone = []Role{Shopper, Vendor, Admin}

// DefaultRules mirror the marketplace's role model: shoppers buy and review,
// vendors fulfil the orders of the stores they own, admins moderate. For the
// fulfilment operations the owner is the store's owner, not the buyer.
func DefaultRules() map[Operation]Rule {
	return map[Operation]Rule{
		CreateOrder:       {Roles: anyone},
		ListOwnOrders:     {Roles: anyone},
		WriteReview:       {Roles: anyone},
		ViewOrder:         {Roles: []Role{Admin}, Owner: true},
		PrintSlip:         {Roles: []Role{Admin}, Owner: true},
		ScanSlip:          {Roles: []Role{Admin}, Owner: true},
		ListStoreOrders:   {Roles: []Role{Admin}, Owner: true},
		UpdateOrderStatus: {Roles: []Role{Admin}, Owner: true},
		AddTracking:       {Roles: []Role{Admin}, Owner: true},
		ListAllOrders:     {Roles: []Role{Admin}},
		ModerateReviews:   {Roles: []Role{Admin}},
		StoreAnalytics:    {Roles: []Role{Admin}, Owner: true},
	}
}

func NewPolicy(rules map[Operation]Rule) *Policy {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Policy{rules: rules}
}

// Allowed reports whether actor may perform op on a resource owned by ownerID.
// An empty ownerID never matches.
func (p *Policy) Allowed(actor Actor, op Operation, ownerID string) bool {
	if actor.UserID == "" {
		return false
	}
	rule, ok := p.rules[op]
	if !ok {
		return false
	}
	if rule.Owner && ownerID != "" && ownerID == actor.UserID {
		return true
	}
	for _, r := range rule.Roles {
		if actor.Has(r) {
			return true
		}
	}
	return false
}

// Authorize is Allowed returning a Forbidden error on deny.
func (p *Policy) Authorize(actor Actor, op Operation, ownerID string) error {
	if !p.Allowed(actor, op, ownerID) {
		return errs.Forbiddenf("not authorized to %s", op)
	}
	return nil
}
