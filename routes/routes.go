package routes

import (
	"time"

	"bazaar/idempotency"
	"bazaar/middleware"
	"bazaar/models"
	"bazaar/orders"
	"bazaar/ratelim"
	"bazaar/reviews"

	"github.com/julienschmidt/httprouter"
)

// Checkout retries replay the first response for a day.
const idempotencyTTL = 24 * time.Hour

func AddOrderRoutes(router *httprouter.Router, h *orders.Handlers, keys idempotency.Store, rateLimiter *ratelim.RateLimiter) {
	protect := func(next httprouter.Handle) httprouter.Handle {
		return rateLimiter.Limit(middleware.Authenticate(next))
	}
	router.POST("/api/orders", protect(idempotency.Middleware(keys, idempotencyTTL)(h.CreateOrder)))
	router.POST("/api/orders/scan", protect(h.ScanSlip))
	router.GET("/api/orders", protect(h.MyOrders))
	router.GET("/api/orders/:id", protect(h.GetOrder))
	router.PUT("/api/orders/:id/status", protect(h.UpdateStatus))
	router.PUT("/api/orders/:id/tracking", protect(h.AddTracking))
	router.GET("/api/orders/:id/slip", protect(h.PrintSlip))
	router.GET("/api/stores/:id/orders", protect(h.StoreOrders))
	router.GET("/api/admin/orders", protect(h.AllOrders))
}

func AddReviewRoutes(router *httprouter.Router, h *reviews.Handlers, rateLimiter *ratelim.RateLimiter) {
	protect := func(next httprouter.Handle) httprouter.Handle {
		return rateLimiter.Limit(middleware.Authenticate(next))
	}
	for _, host := range []struct {
		kind models.HostKind
		base string
	}{
		{models.ProductHost, "/api/products/:id/reviews"},
		{models.StoreHost, "/api/stores/:id/reviews"},
	} {
		router.GET(host.base, rateLimiter.Limit(h.List(host.kind)))
		router.POST(host.base, protect(h.Add(host.kind)))
		router.PUT(host.base, protect(h.Update(host.kind)))
		router.DELETE(host.base, protect(h.DeleteOwn(host.kind)))
	}
	router.GET("/api/stores/:id/analytics", protect(h.StoreAnalytics))

	router.GET("/api/admin/reviews/products", protect(h.AdminList(models.ProductHost)))
	router.GET("/api/admin/reviews/stores", protect(h.AdminList(models.StoreHost)))
	router.DELETE("/api/admin/reviews/products/:hostId/:reviewId", protect(h.AdminDelete(models.ProductHost)))
	router.DELETE("/api/admin/reviews/stores/:hostId/:reviewId", protect(h.AdminDelete(models.StoreHost)))
}
