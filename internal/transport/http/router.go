package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Offers      OfferCreator
	Checkout    CheckoutRunner
	Orders      OrderReader
	Dedup       DedupAdmitter
	Updates     UpdateHandler
	Logger      *slog.Logger
	CORSOrigins []string
}

// NewRouter wires the service endpoints. The webhook path carries both bots;
// everything else serves the mini-app.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(deps.Logger))

	r.Get("/health", HealthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/webhook/{bot}", HandleWebhook(deps.Dedup, deps.Updates, deps.Logger))

	r.Post("/offers", HandleCreateOffer(deps.Offers))
	r.Post("/checkout", HandleCheckout(deps.Checkout))
	r.Get("/orders/{orderID}", HandleGetOrder(deps.Orders))
	r.Post("/orders/{orderID}/cancel", HandleCancelOrder(deps.Orders))
	r.Post("/payments/callback", HandlePaymentCallback(deps.Orders))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})

	return CORS(deps.CORSOrigins, r)
}
