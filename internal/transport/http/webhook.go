package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

// DedupAdmitter is the slice of the dedup gate the webhook endpoint needs.
type DedupAdmitter interface {
	TryAcquire(ctx context.Context, bot domain.BotType, updateID int64) domain.DedupOutcome
	MarkProcessed(ctx context.Context, bot domain.BotType, updateID int64) error
	ReleaseProcessing(ctx context.Context, bot domain.BotType, updateID int64) error
}

// UpdateHandler processes one admitted webhook update (bot command glue,
// out of scope here).
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, bot domain.BotType, update json.RawMessage) error
}

type webhookUpdate struct {
	UpdateID int64 `json:"update_id"`
}

// HandleWebhook admits platform updates through the dedup gate before
// handing them to the bot layer. The platform retries on non-2xx, so only a
// handler failure after a successful claim returns an error status.
func HandleWebhook(gate DedupAdmitter, handler UpdateHandler, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		bot := domain.BotType(chi.URLParam(r, "bot"))
		switch bot {
		case domain.BotTypeShop, domain.BotTypeAdmin:
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "unknown bot")
			return
		}

		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		var upd webhookUpdate
		if err := json.Unmarshal(raw, &upd); err != nil || upd.UpdateID == 0 {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "update_id required")
			return
		}

		outcome := gate.TryAcquire(r.Context(), bot, upd.UpdateID)
		if outcome != domain.DedupAcquired {
			// Duplicate or in-flight elsewhere: acknowledge so the platform
			// stops redelivering.
			w.WriteHeader(http.StatusOK)
			return
		}

		if err := handler.HandleUpdate(r.Context(), bot, raw); err != nil {
			logger.Error("update handling failed",
				"bot", string(bot), "update_id", upd.UpdateID, "err", err)
			// Free the record so the platform's retry can re-acquire now
			// instead of waiting out the staleness window.
			if relErr := gate.ReleaseProcessing(r.Context(), bot, upd.UpdateID); relErr != nil {
				logger.Error("dedup release failed",
					"bot", string(bot), "update_id", upd.UpdateID, "err", relErr)
			}
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		if err := gate.MarkProcessed(r.Context(), bot, upd.UpdateID); err != nil {
			logger.Error("dedup mark failed",
				"bot", string(bot), "update_id", upd.UpdateID, "err", err)
		}
		w.WriteHeader(http.StatusOK)
	}
}
