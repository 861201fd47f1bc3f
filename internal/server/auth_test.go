package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		apiKey        string
		header        string
		wantStatus    int
		wantChallenge string
		wantError     string
	}{
		{name: "auth disabled", header: "", wantStatus: http.StatusOK},
		{name: "missing header", apiKey: "secret", wantStatus: http.StatusUnauthorized, wantChallenge: `Bearer realm="medchat"`, wantError: "authorization required"},
		{name: "wrong token", apiKey: "secret", header: "Bearer wrong-token", wantStatus: http.StatusUnauthorized, wantChallenge: `error="invalid_token"`, wantError: "invalid token"},
		{name: "basic scheme", apiKey: "secret", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized, wantError: "authorization required"},
		{name: "correct token", apiKey: "secret", header: "Bearer secret", wantStatus: http.StatusOK},
		{name: "lowercase scheme", apiKey: "secret", header: "bearer secret", wantStatus: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			authMiddleware(tc.apiKey, okHandler).ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusOK {
				return
			}
			if got := w.Header().Get("WWW-Authenticate"); !strings.Contains(got, tc.wantChallenge) {
				t.Errorf("WWW-Authenticate = %q, want it to contain %q", got, tc.wantChallenge)
			}
			var body errorResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Error != tc.wantError {
				t.Errorf("body = %+v (err %v), want error %q", body, err, tc.wantError)
			}
		})
	}
}

// TestBearerToken verifies the bearerToken extraction helper.
func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		want   string
	}{
		{"Bearer mytoken", "mytoken"},
		{"bearer mytoken", "mytoken"},
		{"BEARER mytoken", "mytoken"},
		{"Bearer  spaced ", "spaced"},
		{"Basic dXNlcjpwYXNz", ""},
		{"", ""},
		{"Bearer", ""},
		{"token only", ""},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := bearerToken(req); got != tc.want {
			t.Errorf("header=%q: expected %q, got %q", tc.header, tc.want, got)
		}
	}
}
