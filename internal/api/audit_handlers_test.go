package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"serwer-licencji/internal/database"
	"serwer-licencji/internal/models"
)

func insertTestAuditEvent(t *testing.T, softwareID string, action string, detail string) {
	t.Helper()
	err := testServer.store.InsertAuditEvent(context.Background(), database.AuditEventParams{
		SoftwareID: &softwareID,
		Action:     action,
		Detail:     &detail,
	})
	require.NoError(t, err)
}

func TestGetAuditEventsHandler(t *testing.T) {
	insertTestAuditEvent(t, "AU90", models.AuditCheckout, "host=pc-1")
	insertTestAuditEvent(t, "AU90", models.AuditCheckin, "host=pc-1")

	req := httptest.NewRequest("GET", "/api/v1/audit", nil)
	rr := httptest.NewRecorder()

	http.HandlerFunc(testServer.GetAuditEventsHandler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var events []models.AuditEvent
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &events))

	var checkoutID int64
	seen := map[string]bool{}
	for _, event := range events {
		if event.SoftwareID != nil && *event.SoftwareID == "AU90" {
			seen[event.Action] = true
			if event.Action == models.AuditCheckout {
				checkoutID = event.ID
			}
		}
	}
	require.True(t, seen[models.AuditCheckout])
	require.True(t, seen[models.AuditCheckin])

	// Paginacja po since_id zwraca tylko nowsze zdarzenia.
	req = httptest.NewRequest("GET", fmt.Sprintf("/api/v1/audit?since_id=%d", checkoutID), nil)
	rr = httptest.NewRecorder()
	http.HandlerFunc(testServer.GetAuditEventsHandler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &events))
	for _, event := range events {
		require.Greater(t, event.ID, checkoutID)
	}
}

func TestGetAuditEventsHandler_InvalidParams(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/audit?since_id=abc", nil)
	rr := httptest.NewRecorder()
	http.HandlerFunc(testServer.GetAuditEventsHandler).ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	for _, raw := range []string{"abc", "0", "1001"} {
		req := httptest.NewRequest("GET", "/api/v1/audit?limit="+raw, nil)
		rr := httptest.NewRecorder()
		http.HandlerFunc(testServer.GetAuditEventsHandler).ServeHTTP(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code, "limit=%s", raw)
	}
}
