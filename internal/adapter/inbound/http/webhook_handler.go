package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/approval"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/envelope"
)

// DefaultMaxBodyBytes caps the inbound envelope size.
const DefaultMaxBodyBytes = 32 << 20

// Gateway classifies and acts on one request descriptor.
type Gateway interface {
	Handle(ctx context.Context, d envelope.Descriptor, requestID string) (*envelope.Response, error)
}

// Authenticator checks the Authorization header of a webhook call.
type Authenticator interface {
	Enabled() bool
	Verify(authHeader string) bool
}

// webhookHandler serves POST /webhook.
func webhookHandler(gateway Gateway, authn Authenticator, maxBody int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := LoggerFromContext(r.Context())

		if r.Method != http.MethodPost {
			notFound(w)
			return
		}

		if authn != nil && authn.Enabled() && !authn.Verify(r.Header.Get("Authorization")) {
			logger.Warn("webhook call rejected: bad gateway secret")
			plainText(w, http.StatusUnauthorized, "Unauthorized\n")
			return
		}

		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				plainText(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large\n")
				return
			}
			plainText(w, http.StatusBadRequest, fmt.Sprintf("Bad JSON: %v\n", err))
			return
		}

		d, err := envelope.DecodeRequest(data)
		if err != nil {
			logger.Debug("malformed webhook payload", "error", err)
			plainText(w, http.StatusBadRequest, fmt.Sprintf("Bad JSON: %v\n", err))
			return
		}

		resp, err := gateway.Handle(r.Context(), d, RequestIDFromContext(r.Context()))
		if err != nil {
			if errors.Is(err, approval.ErrQueueClosed) {
				plainText(w, http.StatusServiceUnavailable, "Service Unavailable: gateway is shutting down\n")
				return
			}
			plainText(w, http.StatusBadGateway, fmt.Sprintf("Bad Gateway: %v\n", err))
			return
		}

		out, err := resp.Marshal()
		if err != nil {
			logger.Error("failed to encode response envelope", "error", err)
			plainText(w, http.StatusInternalServerError, "Internal Server Error\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	})
}

func plainText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}

func notFound(w http.ResponseWriter) {
	plainText(w, http.StatusNotFound, "not found\n")
}
