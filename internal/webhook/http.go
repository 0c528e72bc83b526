package webhook

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	heikeErrors "github.com/harunnryd/heike/internal/errors"
)

// HTTPConfig bundles the inbound transport settings distinct from the
// signing/dedup settings Router already owns.
type HTTPConfig struct {
	Addr               string
	RateLimitPerMinute int
}

// NewServerMux builds a chi.Router exposing POST /webhooks/events,
// returning 200 on any accepted (including duplicate) delivery, 401 on
// signature failure, 429 on either httprate's per-IP cap or the Rate
// Limiter's (C4) admission denial, and whatever status the error
// taxonomy assigns for anything else Router.Process rejects with.
// Grounded in iruldev-golang-api-hexagonal's chi.NewRouter middleware
// stack idiom (RequestID/RealIP/Recoverer), with httprate layered on
// top for the per-IP admission control spec.md §4.8 requires ahead of
// the Router's own HMAC verification.
func NewServerMux(r *Router, cfg HTTPConfig, logger *slog.Logger) chi.Router {
	if logger == nil {
		logger = slog.Default()
	}

	limit := cfg.RateLimitPerMinute
	if limit <= 0 {
		limit = 120
	}

	mux := chi.NewRouter()
	mux.Use(chiMiddleware.RequestID)
	mux.Use(chiMiddleware.RealIP)
	mux.Use(chiMiddleware.Recoverer)
	mux.Use(httprate.LimitByIP(limit, time.Minute))

	mux.Post("/webhooks/events", func(w http.ResponseWriter, req *http.Request) {
		handleEvent(r, logger, w, req)
	})

	return mux
}

func handleEvent(r *Router, logger *slog.Logger, w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	deliveryID := req.Header.Get("X-Delivery-Id")
	eventType := req.Header.Get("X-Event-Type")
	action := req.Header.Get("X-Event-Action")
	signature := req.Header.Get("X-Hub-Signature-256")

	result := r.Process(req.Context(), body, deliveryID, eventType, action, signature)
	if result.Err != nil {
		status := heikeErrors.HTTPStatus(result.Err)
		logger.Warn("webhook rejected", "error", result.Err, "delivery_id", deliveryID, "status", status)
		http.Error(w, result.Err.Error(), status)
		return
	}

	for name, herr := range result.HandlerErrs {
		logger.Error("webhook handler failed", "handler", name, "error", herr, "delivery_id", deliveryID)
	}

	w.WriteHeader(http.StatusOK)
}
