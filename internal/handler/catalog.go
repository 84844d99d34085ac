package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/coffee-store/internal/domain/auth"
	"github.com/xenking/coffee-store/internal/domain/catalog"
)

func (h *Handler) listItems(kind catalog.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := h.catalog.List(r.Context(), kind)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeItems(e, items) })
	}
}

func (h *Handler) getItem(kind catalog.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		it, err := h.catalog.Get(r.Context(), kind, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeItem(e, *it) })
	}
}

func (h *Handler) createItem(kind catalog.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.RequireScope(r.Context(), auth.ScopeCatalogWrite); err != nil {
			writeError(w, r, err)
			return
		}
		in, err := h.readItemInput(w, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		it, err := h.catalog.Create(r.Context(), kind, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeItem(e, *it) })
	}
}

func (h *Handler) updateItem(kind catalog.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.RequireScope(r.Context(), auth.ScopeCatalogWrite); err != nil {
			writeError(w, r, err)
			return
		}
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		in, err := h.readItemInput(w, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		it, err := h.catalog.Update(r.Context(), kind, id, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeItem(e, *it) })
	}
}

func (h *Handler) deleteItem(kind catalog.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.RequireScope(r.Context(), auth.ScopeCatalogWrite); err != nil {
			writeError(w, r, err)
			return
		}
		id, err := pathID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := h.catalog.Delete(r.Context(), kind, id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) readItemInput(w http.ResponseWriter, r *http.Request) (catalog.Input, error) {
	body, err := readBody(w, r)
	if err != nil {
		return catalog.Input{}, err
	}
	return decodeItemInput(body)
}

var _ CatalogService = (*catalog.Service)(nil)
