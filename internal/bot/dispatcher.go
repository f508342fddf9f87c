// Package bot holds the thin glue between admitted webhook updates and the
// application services. Command parsing and reply formatting for the bots
// live in the bot frontends; this dispatcher only reacts to the updates that
// drive order state.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

type OrderFinalizer interface {
	MarkPaid(ctx context.Context, orderID, providerChargeID string) error
}

type Dispatcher struct {
	orders OrderFinalizer
	logger *slog.Logger
}

func NewDispatcher(orders OrderFinalizer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{orders: orders, logger: logger}
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		SuccessfulPayment *struct {
			InvoicePayload          string `json:"invoice_payload"`
			ProviderPaymentChargeID string `json:"provider_payment_charge_id"`
		} `json:"successful_payment"`
	} `json:"message"`
}

// HandleUpdate reacts to payment confirmations; anything else is
// acknowledged and left to the bot frontends.
func (d *Dispatcher) HandleUpdate(ctx context.Context, bot domain.BotType, raw json.RawMessage) error {
	var upd update
	if err := json.Unmarshal(raw, &upd); err != nil {
		return fmt.Errorf("decode update: %w", err)
	}

	if upd.Message != nil && upd.Message.SuccessfulPayment != nil {
		sp := upd.Message.SuccessfulPayment
		// The invoice payload carries the order id set at dispatch time.
		if sp.InvoicePayload == "" {
			return fmt.Errorf("successful_payment without invoice payload")
		}
		return d.orders.MarkPaid(ctx, sp.InvoicePayload, sp.ProviderPaymentChargeID)
	}

	d.logger.Debug("update ignored", "bot", string(bot), "update_id", upd.UpdateID)
	return nil
}
