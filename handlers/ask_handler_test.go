package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/huzzy12/Andrew-Wilkinson-AI/services"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/audit"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/generation"
	"github.com/huzzy12/Andrew-Wilkinson-AI/services/retrieval"
	"github.com/huzzy12/Andrew-Wilkinson-AI/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockAnswerService is a mock implementation of AnswerService
type MockAnswerService struct {
	mock.Mock
}

func (m *MockAnswerService) Answer(ctx context.Context, query string) (*retrieval.Answer, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*retrieval.Answer), args.Error(1)
}

func postAsk(handler *AskHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.HandleAsk(w, req)
	return w
}

func TestHandleAsk_Success(t *testing.T) {
	service := new(MockAnswerService)
	handler := NewAskHandler(service, zap.NewNop())

	service.On("Answer", mock.Anything, "How do I hire?").Return(&retrieval.Answer{
		Answer:  "Hire slowly.",
		Sources: []string{"On Hiring", "On Firing"},
		Backend: "openrouter",
	}, nil)

	w := postAsk(handler, `{"query":"How do I hire?"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response struct {
		Data retrieval.Answer `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "Hire slowly.", response.Data.Answer)
	assert.Equal(t, []string{"On Hiring", "On Firing"}, response.Data.Sources)
	assert.False(t, response.Data.Degraded)

	service.AssertExpectations(t)
}

func TestHandleAsk_RequestErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"empty body", "", ""},
		{"malformed json", `{"query":`, ""},
		{"unknown field", `{"query":"hi","model":"x"}`, ""},
		{"missing query", `{}`, "query"},
		{"blank query", `{"query":"   "}`, "query"},
		{"query too long", `{"query":"` + strings.Repeat("a", 2001) + `"}`, "query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockAnswerService)
			handler := NewAskHandler(service, zap.NewNop())

			w := postAsk(handler, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)

			var response utils.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, "bad_request", response.Error)
			if tt.wantField != "" {
				assert.Contains(t, response.Details, tt.wantField)
			}

			service.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleAsk_ColdIndexTimeout(t *testing.T) {
	service := new(MockAnswerService)
	handler := NewAskHandler(service, zap.NewNop())
	service.On("Answer", mock.Anything, "question").
		Return(nil, services.ErrIndexUnavailable.Wrap(context.DeadlineExceeded))

	w := postAsk(handler, `{"query":"question"}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "service_unavailable", response.Error)
	assert.Contains(t, response.Message, "still being built")
}

func TestHandleAsk_MultibyteQueryWithinLimit(t *testing.T) {
	service := new(MockAnswerService)
	handler := NewAskHandler(service, zap.NewNop())
	query := strings.Repeat("é", 2000)

	service.On("Answer", mock.Anything, query).Return(&retrieval.Answer{Answer: "ok", Sources: []string{}}, nil)

	w := postAsk(handler, `{"query":"`+query+`"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	service.AssertExpectations(t)
}

func TestHandleAsk_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"embedding unconfigured", services.ErrEmbeddingUnconfigured, http.StatusServiceUnavailable},
		{"embedding failed", services.ErrBackendUnavailable.Wrap(nil), http.StatusBadGateway},
		{"nothing embedded", services.ErrEmptyIndex, http.StatusInternalServerError},
		{"index still building", services.ErrIndexUnavailable.Wrap(context.DeadlineExceeded), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockAnswerService)
			handler := NewAskHandler(service, zap.NewNop())
			service.On("Answer", mock.Anything, "question").Return(nil, tt.err)

			w := postAsk(handler, `{"query":"question"}`)

			assert.Equal(t, tt.wantStatus, w.Code)

			var response utils.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.NotEmpty(t, response.Message)
		})
	}
}

type fakeBackends struct{}

func (fakeBackends) Backends() []string { return []string{"openrouter", "gemini"} }

func (fakeBackends) GetStats() map[string]generation.BackendStats {
	return map[string]generation.BackendStats{
		"openrouter": {Outcomes: map[generation.Outcome]int{generation.OutcomeAnswered: 2}},
	}
}

type fakeAudit struct{}

func (fakeAudit) GetStats() audit.Stats { return audit.Stats{BufferSize: 10, WorkerCount: 2, Started: true} }

func TestHandleStatus(t *testing.T) {
	t.Run("with audit", func(t *testing.T) {
		handler := NewStatusHandler("development",
			staticIndex{retrieval.Stats{Ready: true, Chunks: 12, Dimensions: 768}},
			fakeBackends{}, fakeAudit{}, zap.NewNop())

		w := httptest.NewRecorder()
		handler.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Data StatusResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "development", response.Data.Environment)
		assert.Equal(t, 12, response.Data.Index.Chunks)
		assert.Equal(t, []string{"openrouter", "gemini"}, response.Data.Backends)
		assert.Equal(t, 2, response.Data.BackendStats["openrouter"].Outcomes[generation.OutcomeAnswered])
		require.NotNil(t, response.Data.Audit)
		assert.True(t, response.Data.Audit.Started)
	})

	t.Run("without audit", func(t *testing.T) {
		handler := NewStatusHandler("production", staticIndex{}, fakeBackends{}, nil, zap.NewNop())

		w := httptest.NewRecorder()
		handler.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

		var response map[string]map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.NotContains(t, response["data"], "audit")
	})
}
