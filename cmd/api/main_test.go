package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscaldesk/support-platform/internal/config"
	"github.com/fiscaldesk/support-platform/internal/trigger"
)

func TestNewDirectoryUsesDirectoryToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ids":["coord-1"]}`))
	}))
	defer srv.Close()

	cfg := &config.Config{
		JWTSecret:         "signing-secret",
		DirectoryURL:      srv.URL,
		DirectoryToken:    "directory-token",
		HTTPClientTimeout: time.Second,
	}

	ids, err := newDirectory(cfg).Coordinators(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"coord-1"}, ids)
	assert.Equal(t, "Bearer directory-token", gotAuth)
	assert.NotContains(t, gotAuth, cfg.JWTSecret)
}

func TestNewDirectoryFallsBackToStaticIDs(t *testing.T) {
	cfg := &config.Config{CoordinatorIDs: []string{"coord-1"}, StudentIDs: []string{"s1"}}

	dir, ok := newDirectory(cfg).(*trigger.StaticDirectory)
	require.True(t, ok)
	assert.Equal(t, []string{"coord-1"}, dir.CoordinatorIDs)
}
