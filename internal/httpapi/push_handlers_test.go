package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlePushRegisterValidation(t *testing.T) {
	r := testRouter()

	t.Run("unauthorized without auth", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/push/register",
			strings.NewReader(`{"token": "device-token", "platform": "ios"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		r.handlePushRegister(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("invalid request body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.handlePushRegister(rec, authedRequest(http.MethodPost, "/api/push/register", "invalid json", "u1"))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
		if resp := decodeCallError(t, rec); resp.Code != "bad_request" {
			t.Errorf("code = %q, want bad_request", resp.Code)
		}
	})

	t.Run("blank token rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.handlePushRegister(rec, authedRequest(http.MethodPost, "/api/push/register",
			`{"token": "   ", "platform": "ios"}`, "u1"))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
		if resp := decodeCallError(t, rec); !strings.Contains(resp.Error, "token is required") {
			t.Errorf("error = %q, should mention token is required", resp.Error)
		}
	})

	t.Run("invalid platform", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.handlePushRegister(rec, authedRequest(http.MethodPost, "/api/push/register",
			`{"token": "device-token", "platform": "windows"}`, "u1"))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
		if resp := decodeCallError(t, rec); !strings.Contains(resp.Error, "platform must be") {
			t.Errorf("error = %q, should mention the allowed platforms", resp.Error)
		}
	})
}

func TestHandlePushUnregisterValidation(t *testing.T) {
	r := testRouter()

	t.Run("unauthorized without auth", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/push/unregister",
			strings.NewReader(`{"token": "device-token"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		r.handlePushUnregister(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.handlePushUnregister(rec, authedRequest(http.MethodPost, "/api/push/unregister", `{"token": ""}`, "u1"))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestPushTokensIntegration(t *testing.T) {
	db := testDB(t)
	r := integrationRouter(t, db)
	_, _, userID := seedVoiceFixtures(t, db, false)
	ctx := context.Background()

	t.Cleanup(func() {
		_, _ = db.Exec(ctx, "DELETE FROM device_push_tokens WHERE user_id = $1", userID)
	})

	t.Run("register normalizes platform and trims token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.handlePushRegister(rec, authedRequest(http.MethodPost, "/api/push/register",
			`{"token": "  outcome-device-1  ", "platform": "iOS"}`, userID))

		if rec.Code != http.StatusOK {
			t.Fatalf("register status = %d, want 200, body: %s", rec.Code, rec.Body.String())
		}

		tokens, err := r.store.GetUserPushTokens(ctx, userID)
		if err != nil {
			t.Fatalf("GetUserPushTokens: %v", err)
		}
		if len(tokens) != 1 {
			t.Fatalf("expected 1 token, got %d", len(tokens))
		}
		if tokens[0].Token != "outcome-device-1" {
			t.Errorf("token = %q, want trimmed %q", tokens[0].Token, "outcome-device-1")
		}
		if tokens[0].Platform != "ios" {
			t.Errorf("platform = %q, want normalized %q", tokens[0].Platform, "ios")
		}
	})

	t.Run("unregister removes the token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.handlePushUnregister(rec, authedRequest(http.MethodPost, "/api/push/unregister",
			`{"token": "outcome-device-1"}`, userID))

		if rec.Code != http.StatusOK {
			t.Fatalf("unregister status = %d, want 200, body: %s", rec.Code, rec.Body.String())
		}

		tokens, err := r.store.GetUserPushTokens(ctx, userID)
		if err != nil {
			t.Fatalf("GetUserPushTokens: %v", err)
		}
		if len(tokens) != 0 {
			t.Errorf("expected 0 tokens after unregister, got %d", len(tokens))
		}
	})
}
