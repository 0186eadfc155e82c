package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/intra/internal/intra/service"
	"github.com/aussiebroadwan/intra/internal/intra/state"
	"github.com/aussiebroadwan/intra/pkg/httpx"
	"github.com/aussiebroadwan/intra/pkg/intrasdk"
	"github.com/aussiebroadwan/intra/pkg/slogx"
)

// writeError maps a service or SDK error to an HTTP answer. The error kind
// becomes the "error" code so clients can branch without parsing text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		slogx.FromContext(r.Context()).Warn("request failed", "status", status, "err", err)
	}
	httpx.WriteError(w, status, code, intrasdk.MessageOf(err))
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrLoginRequired):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, state.ErrUnknownSlot):
		return http.StatusNotFound, "unknown_slot"
	case errors.Is(err, intrasdk.ErrStaleFlow):
		return http.StatusConflict, "login_superseded"
	}

	kind := intrasdk.KindOf(err)
	switch kind {
	case intrasdk.KindNotAuthenticated, intrasdk.KindSessionExpired:
		return http.StatusUnauthorized, string(kind)
	case intrasdk.KindUserNotFound:
		return http.StatusNotFound, string(kind)
	case intrasdk.KindTokenExchangeFailed:
		if s := intrasdk.StatusOf(err); s >= 500 {
			return http.StatusBadGateway, string(kind)
		}
		return http.StatusBadRequest, string(kind)
	case intrasdk.KindNetwork:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, string(kind)
		}
		return http.StatusBadGateway, string(kind)
	case intrasdk.KindMalformedResponse,
		intrasdk.KindIdentityFetchFailed,
		intrasdk.KindProjectsFetchFailed,
		intrasdk.KindRequestFailed:
		return http.StatusBadGateway, string(kind)
	}
	return http.StatusInternalServerError, "server_error"
}
