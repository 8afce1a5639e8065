package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/huzzy12/Andrew-Wilkinson-AI/models"
	"github.com/huzzy12/Andrew-Wilkinson-AI/repositories"
	"github.com/huzzy12/Andrew-Wilkinson-AI/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockQueryLogRepository struct {
	mock.Mock
}

func (m *MockQueryLogRepository) Insert(ctx context.Context, log *models.QueryLog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *MockQueryLogRepository) GetByRequestID(ctx context.Context, requestID string) (*models.QueryLog, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueryLog), args.Error(1)
}

func (m *MockQueryLogRepository) ListRecent(ctx context.Context, limit, offset int) ([]*models.QueryLog, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.QueryLog), args.Error(1)
}

func getQueries(handler *QueryLogHandler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	handler.HandleList(w, req)
	return w
}

func TestHandleListQueries_Recent(t *testing.T) {
	repo := new(MockQueryLogRepository)
	handler := NewQueryLogHandler(repo, zap.NewNop())
	logs := []*models.QueryLog{
		models.NewQueryLog("req-2", "money?").WithAnswer("openrouter", false, []string{"On Money"}),
		models.NewQueryLog("req-1", "divorce?").WithAnswer("gemini", true, []string{"On Divorce"}),
	}
	repo.On("ListRecent", mock.Anything, 20, 0).Return(logs, nil)

	w := getQueries(handler, "/api/v1/queries")

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	queries, ok := data["queries"].([]interface{})
	require.True(t, ok)
	require.Len(t, queries, 2)
	assert.Equal(t, "req-2", queries[0].(map[string]interface{})["request_id"])
	assert.EqualValues(t, 20, data["limit"])
	repo.AssertExpectations(t)
}

func TestHandleListQueries_Paging(t *testing.T) {
	repo := new(MockQueryLogRepository)
	handler := NewQueryLogHandler(repo, zap.NewNop())
	repo.On("ListRecent", mock.Anything, 5, 10).Return([]*models.QueryLog{}, nil)

	w := getQueries(handler, "/api/v1/queries?limit=5&offset=10")

	assert.Equal(t, http.StatusOK, w.Code)
	repo.AssertExpectations(t)
}

func TestHandleListQueries_InvalidPaging(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"limit not a number", "/api/v1/queries?limit=ten"},
		{"limit zero", "/api/v1/queries?limit=0"},
		{"limit too large", "/api/v1/queries?limit=101"},
		{"negative offset", "/api/v1/queries?offset=-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockQueryLogRepository)
			handler := NewQueryLogHandler(repo, zap.NewNop())

			w := getQueries(handler, tt.target)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			repo.AssertNotCalled(t, "ListRecent", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestHandleListQueries_ByRequestID(t *testing.T) {
	repo := new(MockQueryLogRepository)
	handler := NewQueryLogHandler(repo, zap.NewNop())
	log := models.NewQueryLog("req-7", "work?").WithAnswer("openrouter", false, []string{"On Work"})
	repo.On("GetByRequestID", mock.Anything, "req-7").Return(log, nil)
	repo.On("GetByRequestID", mock.Anything, "missing").
		Return(nil, fmt.Errorf("query log for request missing: %w", repositories.ErrNotFound))

	w := getQueries(handler, "/api/v1/queries?request_id=req-7")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "work?", decodeData(t, w)["query"])

	w = getQueries(handler, "/api/v1/queries?request_id=missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleListQueries_DatabaseErrorHidesCause(t *testing.T) {
	repo := new(MockQueryLogRepository)
	handler := NewQueryLogHandler(repo, zap.NewNop())
	repo.On("ListRecent", mock.Anything, 20, 0).Return(nil, errors.New("pq: password authentication failed"))

	w := getQueries(handler, "/api/v1/queries")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestHandleListQueries_AuditDisabled(t *testing.T) {
	handler := NewQueryLogHandler(nil, zap.NewNop())

	w := getQueries(handler, "/api/v1/queries")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "query audit trail is disabled", response.Message)
}
