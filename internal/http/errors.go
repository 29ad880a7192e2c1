package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/service/catalog"
	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/service/mcpserver"
)

// statusFor maps service errors onto HTTP status codes and client messages.
func statusFor(err error) (int, string) {
	var failed *mcpserver.FailedError
	switch {
	case errors.Is(err, mcpserver.ErrInvalidInput), errors.Is(err, catalog.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, mcpserver.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, mcpserver.ErrAlreadyExists), errors.Is(err, catalog.ErrAlreadyImported):
		return http.StatusConflict, err.Error()
	case errors.As(err, &failed):
		return http.StatusBadGateway, mcpserver.ErrServerFailed.Error() + ": " + failed.Error()
	case errors.Is(err, mcpserver.ErrPollTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, err.Error()
	case errors.Is(err, mcpserver.ErrBadGateway):
		return http.StatusBadGateway, "Bad Gateway: " + err.Error()
	case errors.Is(err, catalog.ErrImportFailed):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
	}
	writeError(w, status, msg)
}
