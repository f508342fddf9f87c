package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

func TestHandleWebhook(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		path           string
		body           string
		outcome        domain.DedupOutcome
		handlerErr     error
		expectedStatus int
		wantHandled    bool
		wantMarked     bool
		wantReleased   bool
	}{
		{
			name:           "acquired update is processed and marked",
			path:           "/webhook/shop",
			body:           `{"update_id":100}`,
			outcome:        domain.DedupAcquired,
			expectedStatus: http.StatusOK,
			wantHandled:    true,
			wantMarked:     true,
		},
		{
			name:           "duplicate is acknowledged without processing",
			path:           "/webhook/shop",
			body:           `{"update_id":100}`,
			outcome:        domain.DedupAlreadyProcessed,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "in-flight update is acknowledged without processing",
			path:           "/webhook/shop",
			body:           `{"update_id":100}`,
			outcome:        domain.DedupInProgress,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "handler failure releases the claim and errors",
			path:           "/webhook/admin",
			body:           `{"update_id":100}`,
			outcome:        domain.DedupAcquired,
			handlerErr:     errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			wantHandled:    true,
			wantReleased:   true,
		},
		{
			name:           "unknown bot",
			path:           "/webhook/other",
			body:           `{"update_id":100}`,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "missing update id",
			path:           "/webhook/shop",
			body:           `{"message":{}}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid body",
			path:           "/webhook/shop",
			body:           `{not json`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gate := &stubGate{outcome: tt.outcome}
			handler := &stubUpdateHandler{err: tt.handlerErr}

			r := chi.NewRouter()
			r.Post("/webhook/{bot}", HandleWebhook(gate, handler, nil))

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if handler.called != tt.wantHandled {
				t.Fatalf("handler called = %v, want %v", handler.called, tt.wantHandled)
			}
			if gate.marked != tt.wantMarked {
				t.Fatalf("marked = %v, want %v", gate.marked, tt.wantMarked)
			}
			if gate.released != tt.wantReleased {
				t.Fatalf("released = %v, want %v", gate.released, tt.wantReleased)
			}
		})
	}
}

type stubGate struct {
	outcome  domain.DedupOutcome
	marked   bool
	released bool
}

func (s *stubGate) TryAcquire(_ context.Context, _ domain.BotType, _ int64) domain.DedupOutcome {
	return s.outcome
}

func (s *stubGate) MarkProcessed(_ context.Context, _ domain.BotType, _ int64) error {
	s.marked = true
	return nil
}

func (s *stubGate) ReleaseProcessing(_ context.Context, _ domain.BotType, _ int64) error {
	s.released = true
	return nil
}

type stubUpdateHandler struct {
	err    error
	called bool
	bot    domain.BotType
	raw    json.RawMessage
}

func (s *stubUpdateHandler) HandleUpdate(_ context.Context, bot domain.BotType, raw json.RawMessage) error {
	s.called = true
	s.bot = bot
	s.raw = raw
	return s.err
}
