package reviews

import (
	"context"
	"net/http"
	"time"

	"bazaar/models"
	"bazaar/utils"

	"github.com/julienschmidt/httprouter"
)

// Handlers serve the same review routes for products and stores; each
// constructor is bound to one host kind. Host ids come from the ":id" param.
type Handlers struct {
	Engine  *Engine
	Timeout time.Duration
}

func (h *Handlers) context(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(r.Context(), timeout)
}

// GET /api/{products,stores}/:id/reviews
func (h *Handlers) List(kind models.HostKind) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx, cancel := h.context(r)
		defer cancel()

		host, err := h.Engine.HostReviews(ctx, kind, ps.ByName("id"))
		if err != nil {
			utils.RespondWithAppError(w, "get reviews", err)
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, utils.M{
			"_id":        host.ID,
			"name":       host.Name,
			"rating":     host.Rating,
			"numReviews": host.NumReviews,
			"reviews":    host.Reviews,
		})
	}
}

// POST /api/{products,stores}/:id/reviews
func (h *Handlers) Add(kind models.HostKind) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx, cancel := h.context(r)
		defer cancel()

		var in ReviewInput
		if err := utils.DecodeJSON(r, &in); err != nil {
			utils.RespondWithAppError(w, "add review", err)
			return
		}
		res, err := h.Engine.Add(ctx, utils.ActorFromRequest(r), kind, ps.ByName("id"), in)
		if err != nil {
			utils.RespondWithAppError(w, "add review", err)
			return
		}
		respond(w, http.StatusCreated, "Review added", res)
	}
}

// PUT /api/{products,stores}/:id/reviews
func (h *Handlers) Update(kind models.HostKind) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx, cancel := h.context(r)
		defer cancel()

		var in ReviewInput
		if err := utils.DecodeJSON(r, &in); err != nil {
			utils.RespondWithAppError(w, "update review", err)
			return
		}
		res, err := h.Engine.Update(ctx, utils.ActorFromRequest(r), kind, ps.ByName("id"), in)
		if err != nil {
			utils.RespondWithAppError(w, "update review", err)
			return
		}
		respond(w, http.StatusOK, "Review updated", res)
	}
}

// DELETE /api/{products,stores}/:id/reviews
func (h *Handlers) DeleteOwn(kind models.HostKind) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx, cancel := h.context(r)
		defer cancel()

		res, err := h.Engine.DeleteOwn(ctx, utils.ActorFromRequest(r), kind, ps.ByName("id"))
		if err != nil {
			utils.RespondWithAppError(w, "delete review", err)
			return
		}
		respond(w, http.StatusOK, "Review removed", res)
	}
}

// GET /api/admin/reviews/{products,stores}
func (h *Handlers) AdminList(kind models.HostKind) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		ctx, cancel := h.context(r)
		defer cancel()

		listing, err := h.Engine.ListAll(ctx, utils.ActorFromRequest(r), kind)
		if err != nil {
			utils.RespondWithAppError(w, "list reviews", err)
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, listing)
	}
}

// DELETE /api/admin/reviews/{products,stores}/:hostId/:reviewId
func (h *Handlers) AdminDelete(kind models.HostKind) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx, cancel := h.context(r)
		defer cancel()

		res, err := h.Engine.DeleteByID(ctx, utils.ActorFromRequest(r), kind, ps.ByName("hostId"), ps.ByName("reviewId"))
		if err != nil {
			utils.RespondWithAppError(w, "moderate review", err)
			return
		}
		respond(w, http.StatusOK, "Review removed", res)
	}
}

// GET /api/stores/:id/analytics
func (h *Handlers) StoreAnalytics(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := h.context(r)
	defer cancel()

	stats, err := h.Engine.Analytics(ctx, utils.ActorFromRequest(r), ps.ByName("id"))
	if err != nil {
		utils.RespondWithAppError(w, "store analytics", err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, stats)
}

func respond(w http.ResponseWriter, status int, msg string, res *Result) {
	body := utils.M{
		"ok":         true,
		"message":    msg,
		"rating":     res.Rating,
		"numReviews": res.NumReviews,
	}
	if res.Review != nil {
		body["review"] = res.Review
	}
	utils.RespondWithJSON(w, status, body)
}
