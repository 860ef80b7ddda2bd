package routes

import (
	"bazaar/idempotency"
	"bazaar/orders"
	"bazaar/ratelim"
	"bazaar/reviews"

	"github.com/julienschmidt/httprouter"
)

func RoutesWrapper(router *httprouter.Router, oh *orders.Handlers, rh *reviews.Handlers, keys idempotency.Store, rateLimiter *ratelim.RateLimiter) {
	AddOrderRoutes(router, oh, keys, rateLimiter)
	AddReviewRoutes(router, rh, rateLimiter)
}
