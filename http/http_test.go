package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsPathFormatter(t *testing.T) {
	tests := []struct {
		scenario   string
		statusCode int
		path       string
		expected   string
	}{
		{
			scenario:   "world path",
			statusCode: http.StatusOK,
			path:       "/worlds/42",
			expected:   "/worlds/:id",
		},
		{
			scenario:   "entity path",
			statusCode: http.StatusCreated,
			path:       "/worlds/42/entities/7",
			expected:   "/worlds/:id/entities/:id",
		},
		{
			scenario:   "static path",
			statusCode: http.StatusOK,
			path:       "/worlds",
			expected:   "/worlds",
		},
		{
			scenario:   "not found",
			statusCode: http.StatusNotFound,
			path:       "/worlds/42",
			expected:   "",
		},
		{
			scenario:   "bad request",
			statusCode: http.StatusBadRequest,
			path:       "/worlds/abc",
			expected:   "",
		},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			require.Equal(t, test.expected, MetricsPathFormatter(test.statusCode, test.path))
		})
	}
}

func TestListenAndServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		ListenAndServe(ctx, &http.Server{
			Addr:    "127.0.0.1:0",
			Handler: http.HandlerFunc(HandleHealthCheck),
		})
		close(done)
	}()

	time.Sleep(time.Millisecond * 50)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatal("servers not stopped")
	}
}

func TestProbes(t *testing.T) {
	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleHealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("ready", func(t *testing.T) {
		ready := false
		h := HandleReadyCheck(func() bool { return ready })

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		require.Equal(t, http.StatusServiceUnavailable, w.Code)

		ready = true
		w = httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("version", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleVersion("v1.2.3")(w, httptest.NewRequest(http.MethodGet, "/version", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"version":"v1.2.3"}`, w.Body.String())
	})
}

func TestHandleWithCORS(t *testing.T) {
	h := HandleWithCORS(http.HandlerFunc(HandleHealthCheck))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/worlds", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestVerifyAuthTokenHandler(t *testing.T) {
	h := VerifyAuthTokenHandler("secret", http.HandlerFunc(HandleHealthCheck))

	tests := []struct {
		scenario string
		header   string
		query    string
		status   int
	}{
		{scenario: "bearer header", header: "Bearer secret", status: http.StatusOK},
		{scenario: "query parameter", query: "?token=secret", status: http.StatusOK},
		{scenario: "wrong token", header: "Bearer nope", status: http.StatusUnauthorized},
		{scenario: "missing token", status: http.StatusUnauthorized},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/worlds"+test.query, nil)
			if test.header != "" {
				r.Header.Set("Authorization", test.header)
			}

			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			require.Equal(t, test.status, w.Code)
		})
	}

	t.Run("empty token disables the check", func(t *testing.T) {
		w := httptest.NewRecorder()
		VerifyAuthTokenHandler("", http.HandlerFunc(HandleHealthCheck)).
			ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/worlds", nil))
		require.Equal(t, http.StatusOK, w.Code)
	})
}
