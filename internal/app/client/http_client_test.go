package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"assistsync/internal/domain/document"
	"assistsync/internal/domain/sync"
)

func TestClassifyHTTP(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  sync.ErrorKind
		retryable bool
	}{
		{name: "network failure", err: errors.New("connection refused"), wantKind: sync.KindTransient, retryable: true},
		{name: "server error", err: &statusError{Status: 503}, wantKind: sync.KindTransient, retryable: true},
		{name: "rate limited", err: &statusError{Status: 429}, wantKind: sync.KindTransient, retryable: true},
		{name: "validation", err: &statusError{Status: 422}, wantKind: sync.KindValidation},
		{name: "unknown collection", err: &statusError{Status: 404}, wantKind: sync.KindValidation},
		{name: "policy", err: &statusError{Status: 403}, wantKind: sync.KindPolicy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyHTTP("upsert", "tasks", tt.err)
			assert.Equal(t, tt.wantKind, sync.KindOf(err))
			assert.Equal(t, tt.retryable, sync.IsRetryable(err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "problem json with details",
			body: `{"title":"Unprocessable Entity","detail":"validation failed","errors":[{"message":"document 0: missing required field: id"}]}`,
			want: "validation failed; document 0: missing required field: id",
		},
		{
			name: "legacy error body",
			body: `{"status":"Error","error":"missing X-User-ID header"}`,
			want: "missing X-User-ID header",
		},
		{
			name: "plain text",
			body: "bad gateway\n",
			want: "bad gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorMessage([]byte(tt.body)))
		})
	}
}

func TestHTTPRemote_SendsUserScope(t *testing.T) {
	var gotUser, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get("X-User-ID")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"Ok","processed":1}`))
	}))
	defer srv.Close()

	remote := NewHTTPRemote(srv.URL, "u1", slog.Default())
	err := remote.UpsertBatch(context.Background(), "tasks", []document.Document{{"id": "t1"}})

	require.NoError(t, err)
	assert.Equal(t, "u1", gotUser)
	assert.Equal(t, "/api/sync/tasks/batch", gotPath)
}

func TestHTTPRemote_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	remote := NewHTTPRemote(srv.URL, "u1", slog.Default())
	_, err := remote.FetchSince(context.Background(), "tasks", 0, 10)

	require.Error(t, err)
	assert.True(t, sync.IsRetryable(err))
}

func TestHTTPRemote_SubscribeURL(t *testing.T) {
	remote := NewHTTPRemote("https://sync.example.com/", "u1", slog.Default())

	u, err := remote.subscribeURL("tasks")
	require.NoError(t, err)
	assert.Equal(t, "wss://sync.example.com/api/sync/subscribe?collection=tasks", u)
}
