package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/alertbot/internal/crypto"
	"github.com/alanyoungcy/alertbot/internal/service"
)

const maxAlertBody = 64 << 10

// AlertDeliverer validates and forwards an alert webhook.
type AlertDeliverer interface {
	Deliver(ctx context.Context, d service.Delivery) error
}

// AlertHandler serves POST /api/bots/{id}/alerts.
type AlertHandler struct {
	alerts AlertDeliverer
	logger *slog.Logger
}

// NewAlertHandler creates an AlertHandler.
func NewAlertHandler(alerts AlertDeliverer, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, logger: logger}
}

// PostAlert accepts a JSON {"alert": "..."} or plain-text body. The alert
// is queued on the bot; 202 means accepted, not acted on.
func (h *AlertHandler) PostAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := botID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bot id")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAlertBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	err = h.alerts.Deliver(r.Context(), service.Delivery{
		BotID:      id,
		Body:       body,
		Signature:  r.Header.Get(crypto.SignatureHeader),
		DeliveryID: r.Header.Get("X-Alert-ID"),
	})
	if err != nil {
		h.logger.InfoContext(r.Context(), "handler: alert rejected",
			slog.Int64("bot_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
