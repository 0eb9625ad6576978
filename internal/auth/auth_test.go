package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "diary"
)

func TestIssueAndParse(t *testing.T) {
	tok, err := Issue("s1", testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, time.Minute)

	claims, err := Parse(tok.Value, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "s1", claims.SessionID)
	assert.Equal(t, "s1", claims.Subject)
}

func TestParseRejects(t *testing.T) {
	good, err := Issue("s1", testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	expired, err := Issue("s1", testIssuer, testKey, -time.Minute)
	require.NoError(t, err)
	noSession, err := Issue("", testIssuer, testKey, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		key    string
		issuer string
	}{
		{"wrong key", good.Value, "other", testIssuer},
		{"wrong issuer", good.Value, testKey, "someone-else"},
		{"expired", expired.Value, testKey, testIssuer},
		{"no session", noSession.Value, testKey, testIssuer},
		{"garbage", "abc.def.ghi", testKey, testIssuer},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.token, tc.key, tc.issuer)
			assert.Error(t, err)
		})
	}
}

func TestIssueNeedsKey(t *testing.T) {
	_, err := Issue("s1", testIssuer, "", time.Hour)
	assert.Error(t, err)
}

func TestSessionAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/v1/session", SessionAuth(testKey, testIssuer), func(c *gin.Context) {
		c.String(http.StatusOK, SessionID(c))
	})
	tok, err := Issue("s1", testIssuer, testKey, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer " + tok.Value, http.StatusOK, "s1"},
		{"lowercase scheme", "bearer " + tok.Value, http.StatusOK, "s1"},
		{"missing", "", http.StatusUnauthorized, `{"error":"missing bearer token"}`},
		{"basic", "Basic Zm9vOmJhcg==", http.StatusUnauthorized, `{"error":"missing bearer token"}`},
		{"invalid", "Bearer nope", http.StatusUnauthorized, `{"error":"invalid token"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.body, w.Body.String())
		})
	}
}
