package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"serwer-licencji/internal/database"
)

func sessionsRouter() *chi.Mux {
	router := chi.NewRouter()
	router.Get("/api/v1/software/{softwareId}/sessions", testServer.ListSessionsHandler)
	return router
}

func TestListSessionsHandler(t *testing.T) {
	createTestSoftwareAPI(t, "AP03", 5)
	createTestAllocationAPI(t, "alloc_ap03_u1", "AP03", 1)
	createTestAllocationAPI(t, "alloc_ap03_u2", "AP03", 2)

	closedID := checkoutTestSessionAPI(t, "AP03", 1)
	closed, err := testServer.store.CloseSession(context.Background(), closedID)
	require.NoError(t, err)
	require.True(t, closed)

	activeID := checkoutTestSessionAPI(t, "AP03", 2)

	t.Run("without filter returns every session", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/software/AP03/sessions", nil)
		rr := httptest.NewRecorder()
		sessionsRouter().ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var sessions []database.ActiveSession
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sessions))
		require.Len(t, sessions, 2)

		ids := map[string]bool{}
		for _, s := range sessions {
			ids[s.SessionID.String()] = true
		}
		require.True(t, ids[closedID.String()])
		require.True(t, ids[activeID.String()])
	})

	t.Run("status filter narrows the result", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/software/AP03/sessions?status=closed", nil)
		rr := httptest.NewRecorder()
		sessionsRouter().ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var sessions []database.ActiveSession
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sessions))
		require.Len(t, sessions, 1)
		require.Equal(t, closedID, sessions[0].SessionID)
		require.Equal(t, "closed", sessions[0].Status)
	})

	t.Run("limit and offset paginate", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/software/AP03/sessions?limit=1&offset=1", nil)
		rr := httptest.NewRecorder()
		sessionsRouter().ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var sessions []database.ActiveSession
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sessions))
		require.Len(t, sessions, 1)
	})

	t.Run("invalid limit is rejected", func(t *testing.T) {
		for _, raw := range []string{"abc", "0", "-5", "1001"} {
			req := httptest.NewRequest("GET", "/api/v1/software/AP03/sessions?limit="+raw, nil)
			rr := httptest.NewRecorder()
			sessionsRouter().ServeHTTP(rr, req)
			require.Equal(t, http.StatusBadRequest, rr.Code, "limit=%s", raw)
		}
	})

	t.Run("invalid offset is rejected", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/software/AP03/sessions?offset=-1", nil)
		rr := httptest.NewRecorder()
		sessionsRouter().ServeHTTP(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestListActiveSessionsHandler(t *testing.T) {
	createTestSoftwareAPI(t, "AP04", 5)
	createTestAllocationAPI(t, "alloc_ap04_u1", "AP04", 1)
	sessionID := checkoutTestSessionAPI(t, "AP04", 1)

	req := httptest.NewRequest("GET", "/api/v1/sessions", nil)
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.ListActiveSessionsHandler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var sessions []database.ActiveSession
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sessions))

	found := false
	for _, s := range sessions {
		require.Equal(t, "active", s.Status)
		if s.SessionID == sessionID {
			found = true
			require.Equal(t, "AP04", s.SoftwareID)
			require.Equal(t, int64(1), s.UserID)
		}
	}
	require.True(t, found)
}
