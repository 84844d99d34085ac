package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/coffee-store/internal/domain/order"
	"github.com/xenking/coffee-store/internal/domain/pricing"
)

func (h *Handler) readOrderRequest(w http.ResponseWriter, r *http.Request) ([]pricing.LineRequest, error) {
	body, err := readBody(w, r)
	if err != nil {
		return nil, err
	}
	return decodeOrderRequest(body)
}

func (h *Handler) quoteOrder(w http.ResponseWriter, r *http.Request) {
	lines, err := h.readOrderRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Quote(r.Context(), lines)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeQuote(e, o) })
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	lines, err := h.readOrderRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Place(r.Context(), lines)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+o.ID)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	lines, err := h.readOrderRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Update(r.Context(), r.PathValue("id"), lines)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i])
			}
		})
	})
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var _ OrderService = (*order.Service)(nil)
