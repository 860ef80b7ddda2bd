package orders

import (
	"context"
	"net/http"
	"time"

	"bazaar/errs"
	"bazaar/slips"
	"bazaar/utils"

	"github.com/julienschmidt/httprouter"
)

// Handlers exposes the Manager over HTTP. Routes are expected to sit behind
// middleware.Authenticate.
type Handlers struct {
	Manager    *Manager
	Timeout    time.Duration
	SlipSecret []byte
}

func (h *Handlers) context(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(r.Context(), timeout)
}

// POST /api/orders
func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := h.context(r)
	defer cancel()

	var in CreateInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondWithAppError(w, "create order", err)
		return
	}
	o, err := h.Manager.Create(ctx, utils.ActorFromRequest(r), in)
	if err != nil {
		utils.RespondWithAppError(w, "create order", err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, o)
}

// GET /api/orders
func (h *Handlers) MyOrders(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := h.context(r)
	defer cancel()

	orders, err := h.Manager.ListMine(ctx, utils.ActorFromRequest(r))
	if err != nil {
		utils.RespondWithAppError(w, "list my orders", err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, orders)
}

// GET /api/admin/orders
func (h *Handlers) AllOrders(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := h.context(r)
	defer cancel()

	orders, err := h.Manager.ListAll(ctx, utils.ActorFromRequest(r))
	if err != nil {
		utils.RespondWithAppError(w, "list all orders", err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, orders)
}

// GET /api/stores/:id/orders
func (h *Handlers) StoreOrders(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := h.context(r)
	defer cancel()

	orders, err := h.Manager.ListByStore(ctx, utils.ActorFromRequest(r), ps.ByName("id"))
	if err != nil {
		utils.RespondWithAppError(w, "list store orders", err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, orders)
}

// GET /api/orders/:id
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := h.context(r)
	defer cancel()

	o, err := h.Manager.Get(ctx, utils.ActorFromRequest(r), ps.ByName("id"))
	if err != nil {
		utils.RespondWithAppError(w, "get order", err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, o)
}

// PUT /api/orders/:id/status
func (h *Handlers) UpdateStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := h.context(r)
	defer cancel()

	var in StatusInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondWithAppError(w, "update order status", err)
		return
	}
	o, err := h.Manager.UpdateStatus(ctx, utils.ActorFromRequest(r), ps.ByName("id"), in)
	if err != nil {
		utils.RespondWithAppError(w, "update order status", err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, o)
}

// PUT /api/orders/:id/tracking
func (h *Handlers) AddTracking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := h.context(r)
	defer cancel()

	var in TrackingInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondWithAppError(w, "add tracking", err)
		return
	}
	o, err := h.Manager.AddTracking(ctx, utils.ActorFromRequest(r), ps.ByName("id"), in)
	if err != nil {
		utils.RespondWithAppError(w, "add tracking", err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, o)
}

// GET /api/orders/:id/slip
func (h *Handlers) PrintSlip(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := h.context(r)
	defer cancel()

	o, err := h.Manager.ForSlip(ctx, utils.ActorFromRequest(r), ps.ByName("id"))
	if err != nil {
		utils.RespondWithAppError(w, "print slip", err)
		return
	}
	pdf, err := slips.Render(o, h.SlipSecret)
	if err != nil {
		utils.RespondWithAppError(w, "print slip", err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=slip-"+o.ID+".pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

type scanInput struct {
	Payload string `json:"payload" validate:"required"`
}

// POST /api/orders/scan
func (h *Handlers) ScanSlip(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := h.context(r)
	defer cancel()

	var in scanInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondWithAppError(w, "scan slip", err)
		return
	}
	orderID, number, ok := slips.Verify(in.Payload, h.SlipSecret)
	if !ok {
		utils.RespondWithAppError(w, "scan slip", errs.Validationf("invalid slip signature"))
		return
	}
	res, err := h.Manager.Scan(ctx, utils.ActorFromRequest(r), orderID, number)
	if err != nil {
		utils.RespondWithAppError(w, "scan slip", err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, res)
}
