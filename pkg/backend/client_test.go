package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdjv-envi/wastelog/pkg/config"
)

// staticTokens is a TokenSource with a fixed token and an invalidation
// counter.
type staticTokens struct {
	token       string
	invalidated int
}

func (s *staticTokens) Token() string { return s.token }

func (s *staticTokens) Invalidate(ctx context.Context) {
	s.invalidated++
	s.token = ""
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func testClient(t *testing.T, handler http.Handler, tokens TokenSource) Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(testLogger(), &config.BackendConfig{
		Endpoint:          srv.URL,
		UploadTimeout:     5 * time.Second,
		RequestTimeout:    5 * time.Second,
		RequestsPerMinute: 600,
	}, tokens)
}

func TestLogin_DoesNotSendToken(t *testing.T) {
	tokens := &staticTokens{}

	cli := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "login", q.Get("action"))
		assert.Equal(t, "crew@example.com", q.Get("email"))
		assert.Equal(t, "id-abc", q.Get("idToken"))
		assert.Empty(t, q.Get("token"))

		_ = json.NewEncoder(w).Encode(LoginResult{
			Success:     true,
			Token:       "tok-1",
			TokenExpiry: time.Now().Add(48 * time.Hour).UnixMilli(),
			Role:        "user",
			Email:       "crew@example.com",
		})
	}), tokens)

	result, err := cli.Login(context.Background(), "crew@example.com", "id-abc")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "tok-1", result.Token)
}

func TestValidateToken_SendsTokenAsQueryParam(t *testing.T) {
	tokens := &staticTokens{token: "tok-1"}

	cli := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "validateToken", q.Get("action"))
		assert.Equal(t, "tok-1", q.Get("token"))

		_ = json.NewEncoder(w).Encode(ValidateResult{Valid: true})
	}), tokens)

	result, err := cli.ValidateToken(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestAuthedCall_NoTokenFailsFast(t *testing.T) {
	called := false

	cli := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}), &staticTokens{})

	_, err := cli.ValidateToken(context.Background())
	require.ErrorIs(t, err, ErrNoToken)
	assert.False(t, called, "no request must leave the client without a token")
}

func TestUpload_MergesTokenIntoBody(t *testing.T) {
	tokens := &staticTokens{token: "tok-1"}

	cli := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var req UploadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tok-1", req.Token)
		assert.Equal(t, "P4-hazardous-2024-01-15-12_5-Solvent-2024-01-15", req.RequestID)
		assert.Equal(t, "hazardous", req.WasteType)

		_ = json.NewEncoder(w).Encode(UploadResult{Success: true})
	}), tokens)

	result, err := cli.Upload(context.Background(), &UploadRequest{
		RequestID: "P4-hazardous-2024-01-15-12_5-Solvent-2024-01-15",
		Package:   "P4",
		WasteType: "hazardous",
		Date:      "2024-01-15",
		Volume:    "12.5",
		Waste:     "Solvent",
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted())
	assert.False(t, result.Duplicate())
}

func TestUpload_DuplicateResponseIsAccepted(t *testing.T) {
	cli := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(UploadResult{
			Success: false,
			Error:   DuplicateRequestError,
		})
	}), &staticTokens{token: "tok-1"})

	result, err := cli.Upload(context.Background(), &UploadRequest{RequestID: "r1"})
	require.NoError(t, err)
	assert.True(t, result.Duplicate())
	assert.True(t, result.Accepted())
}

func TestUpload_TimeoutSurfacesAsNetworkError(t *testing.T) {
	tokens := &staticTokens{token: "tok-1"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can detect the
		// client disconnect and cancel the request context.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	cli := NewClient(testLogger(), &config.BackendConfig{
		Endpoint:          srv.URL,
		UploadTimeout:     50 * time.Millisecond,
		RequestTimeout:    time.Second,
		RequestsPerMinute: 600,
	}, tokens)

	_, err := cli.Upload(context.Background(), &UploadRequest{RequestID: "r1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 0, tokens.invalidated, "a timeout is not a rejection")
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantErr     error
		transient   bool
		invalidated int
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized, false, 1},
		{"forbidden", http.StatusForbidden, ErrForbidden, false, 0},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited, true, 0},
		{"server error", http.StatusInternalServerError, ErrServer, true, 0},
		{"bad gateway", http.StatusBadGateway, ErrServer, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := &staticTokens{token: "tok-1"}

			cli := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}), tokens)

			_, err := cli.ValidateToken(context.Background())
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.transient, IsTransient(err))
			assert.Equal(t, tt.invalidated, tokens.invalidated)
		})
	}
}

func TestUnauthorized_InvalidatesTokenSourceOnce(t *testing.T) {
	tokens := &staticTokens{token: "tok-1"}

	cli := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "token revoked"})
	}), tokens)

	_, err := cli.ValidateToken(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, tokens.invalidated)

	// The token is gone: the next call fails fast without invalidating
	// again.
	_, err = cli.ValidateToken(context.Background())
	require.ErrorIs(t, err, ErrNoToken)
	assert.Equal(t, 1, tokens.invalidated)
}

func TestRecords_SendsRangeParams(t *testing.T) {
	cli := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "P4", q.Get("package"))
		assert.Equal(t, "hazardous", q.Get("wasteType"))
		assert.Equal(t, "2024-01-01", q.Get("from"))
		assert.Equal(t, "2024-01-31", q.Get("to"))

		_ = json.NewEncoder(w).Encode([][]any{
			{"Date", "Volume", "Waste"},
			{"2024-01-15", 12.5, "Solvent"},
		})
	}), &staticTokens{token: "tok-1"})

	rows, err := cli.Records(context.Background(), "P4", "hazardous", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestUserAction_FailureSurfacesMessage(t *testing.T) {
	cli := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "approveUser", r.URL.Query().Get("action"))
		assert.Equal(t, "new@example.com", r.URL.Query().Get("email"))

		_ = json.NewEncoder(w).Encode(actionResult{
			Success: false,
			Message: "user not found",
		})
	}), &staticTokens{token: "tok-1"})

	err := cli.ApproveUser(context.Background(), "new@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user not found")
}
