package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/alertbot/internal/crypto"
	"github.com/alanyoungcy/alertbot/internal/domain"
)

// AlertTarget receives validated alerts. *bot.Registry satisfies it.
type AlertTarget interface {
	Alert(ctx context.Context, id int64, kind domain.AlertKind) error
}

// Delivery is one inbound alert webhook call.
type Delivery struct {
	BotID int64
	Body  []byte
	// Signature is the X-Alert-Signature header, if any.
	Signature string
	// DeliveryID is the X-Alert-ID header; repeats within the dedup TTL
	// are rejected.
	DeliveryID string
}

// AlertService authenticates, de-duplicates and forwards alert webhooks.
type AlertService struct {
	target   AlertTarget
	locks    domain.LockManager
	secret   []byte
	dedupTTL time.Duration
	logger   *slog.Logger
}

// NewAlertService creates an AlertService. An empty secret accepts
// unsigned alerts; a nil lock manager disables de-duplication.
func NewAlertService(
	target AlertTarget,
	locks domain.LockManager,
	secret []byte,
	dedupTTL time.Duration,
	logger *slog.Logger,
) *AlertService {
	return &AlertService{
		target:   target,
		locks:    locks,
		secret:   secret,
		dedupTTL: dedupTTL,
		logger:   logger.With(slog.String("component", "alert_service")),
	}
}

// ParseAlertBody accepts either a JSON object {"alert": "<kind>"} or the
// bare kind as plain text, which is what chart alert webhooks send.
func ParseAlertBody(body []byte) (domain.AlertKind, error) {
	trimmed := bytes.TrimSpace(body)
	raw := string(trimmed)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var msg struct {
			Alert string `json:"alert"`
		}
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return "", fmt.Errorf("%w: malformed body: %v", domain.ErrUnknownAlert, err)
		}
		raw = msg.Alert
	}
	return domain.ParseAlertKind(strings.TrimSpace(raw))
}

// Deliver validates d and forwards it to the target bot.
func (s *AlertService) Deliver(ctx context.Context, d Delivery) error {
	if len(s.secret) > 0 && !crypto.VerifyBody(s.secret, d.Body, d.Signature) {
		return fmt.Errorf("alert_service: bad signature: %w", domain.ErrUnauthorized)
	}

	kind, err := ParseAlertBody(d.Body)
	if err != nil {
		return fmt.Errorf("alert_service: %w", err)
	}

	release := func() {}
	if d.DeliveryID != "" && s.locks != nil {
		key := "alert:" + strconv.FormatInt(d.BotID, 10) + ":" + d.DeliveryID
		// A delivered claim is left to expire so redeliveries inside the TTL
		// are rejected.
		unlock, err := s.locks.Acquire(ctx, key, s.dedupTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			return fmt.Errorf("alert_service: delivery %s: %w", d.DeliveryID, domain.ErrDuplicateAlert)
		case err != nil:
			s.logger.WarnContext(ctx, "dedup claim failed, delivering anyway",
				slog.String("delivery_id", d.DeliveryID),
				slog.String("error", err.Error()),
			)
		case unlock != nil:
			release = unlock
		}
	}

	if err := s.target.Alert(ctx, d.BotID, kind); err != nil {
		// Free the claim so the sender can retry with the same delivery id.
		release()
		return fmt.Errorf("alert_service: bot %d: %w", d.BotID, err)
	}
	s.logger.DebugContext(ctx, "alert delivered",
		slog.Int64("bot_id", d.BotID),
		slog.String("alert", string(kind)),
	)
	return nil
}
