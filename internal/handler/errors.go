package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coffee-store/internal/domain/auth"
	"github.com/xenking/coffee-store/internal/domain/catalog"
	"github.com/xenking/coffee-store/internal/domain/order"
	"github.com/xenking/coffee-store/internal/domain/pricing"
	"github.com/xenking/coffee-store/pkg/httpmiddleware"
)

// errBadRequest is matched by malformed request bodies and path values.
var errBadRequest = errors.New("bad request")

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Is(target error) bool { return target == errBadRequest }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// writeError maps domain errors to HTTP statuses. Unexpected errors are
// logged and hidden behind a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		inputErr *pricing.InputError
		ruleErr  *pricing.RuleConfigError
		itemErr  *catalog.InvalidItemError
		reqErr   *requestError
		missing  *catalog.ItemNotFoundError
	)
	switch {
	case errors.As(err, &inputErr):
		httpmiddleware.WriteError(w, http.StatusBadRequest, inputErr.Error())
	case errors.As(err, &itemErr):
		httpmiddleware.WriteError(w, http.StatusBadRequest, itemErr.Error())
	case errors.As(err, &reqErr):
		httpmiddleware.WriteError(w, http.StatusBadRequest, reqErr.Error())
	case errors.As(err, &ruleErr):
		httpmiddleware.WriteError(w, http.StatusBadRequest, ruleErr.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		httpmiddleware.WriteError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrForbidden):
		httpmiddleware.WriteError(w, http.StatusForbidden, "forbidden")
	case errors.As(err, &missing):
		httpmiddleware.WriteError(w, http.StatusNotFound, missing.Error())
	case errors.Is(err, order.ErrNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, "order not found")
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
