package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/stream"
	"github.com/wardenhq/warden/internal/webhook"
)

const maxWebhookBodyBytes = 2 << 20 // 2MB

// deniedMessage is the only body ever returned for a signature failure.
// It must not name the algorithm, the expected digest, or any secret.
const deniedMessage = "webhook rejected"

// DeliveryRecorder persists per-provider delivery counters for the gated
// status endpoint.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, provider, outcome string) error
	ListProviderStatus(ctx context.Context) ([]model.ProviderStatus, error)
}

// WebhookHandler accepts provider-signed deliveries. The pipeline is:
// verify signature over the raw body, deduplicate atomically, acknowledge.
// Body parsing and business processing happen asynchronously downstream,
// so neither a malformed body nor an unfamiliar event type affects the
// synchronous response.
type WebhookHandler struct {
	verifier *webhook.Verifier
	dedup    webhook.IdempotencyStore
	recorder DeliveryRecorder
	events   *stream.Hub
	logger   *slog.Logger
}

// NewWebhookHandler wires the ingress pipeline.
func NewWebhookHandler(verifier *webhook.Verifier, dedup webhook.IdempotencyStore, recorder DeliveryRecorder, events *stream.Hub, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier: verifier,
		dedup:    dedup,
		recorder: recorder,
		events:   events,
		logger:   logger,
	}
}

// Ingress returns the POST handler for one provider's ingress path.
func (h *WebhookHandler) Ingress(providerName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, ok := webhook.LookupProvider(providerName)
		if !ok {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
		rawBody, err := io.ReadAll(r.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
				return
			}
			writeError(w, http.StatusBadRequest, "unreadable body")
			return
		}

		signature := r.Header.Get(provider.SignatureHeader)
		if err := h.verifier.Verify(provider.Name, signature, rawBody); err != nil {
			h.count(r.Context(), provider.Name, "rejected")
			h.logger.Warn("webhook signature rejected", "provider", provider.Name)
			writeError(w, http.StatusUnauthorized, deniedMessage)
			return
		}

		deliveryID := webhook.DeliveryID(provider, r.Header.Get(provider.DeliveryHeader), rawBody)
		first, err := h.dedup.RecordIfNew(r.Context(), provider.Name, deliveryID)
		if err != nil {
			// Without a confirmed atomic write the delivery cannot be
			// accepted as first; fail closed.
			h.logger.Error("idempotency store unavailable", "provider", provider.Name, "error", err)
			writeError(w, http.StatusServiceUnavailable, "delivery not accepted")
			return
		}
		if !first {
			h.count(r.Context(), provider.Name, "duplicate")
			writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
			return
		}

		h.count(r.Context(), provider.Name, "accepted")
		h.events.Publish(stream.NewEvent("webhook.received", map[string]string{
			"provider":    provider.Name,
			"delivery_id": deliveryID,
		}))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

// Status serves GET /webhooks/status, a gated diagnostic reporting
// per-provider delivery counts.
func (h *WebhookHandler) Status(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.recorder.ListProviderStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: statuses,
		Meta:     &model.ResponseMeta{Count: len(statuses)},
	})
}

func (h *WebhookHandler) count(ctx context.Context, provider, outcome string) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.RecordDelivery(ctx, provider, outcome); err != nil {
		h.logger.Warn("failed to record delivery counter", "provider", provider, "error", err)
	}
}
