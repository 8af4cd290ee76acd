package mastodon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"push_notify/internal/model"
)

func TestGetNotification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/notifications/4242" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "The access token is invalid"}) //nolint:errcheck
			return
		}
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":   "4242",
			"type": "mention",
			"account": map[string]any{
				"id":           "109",
				"username":     "alice",
				"acct":         "alice@example.org",
				"display_name": "Alice A.",
				"avatar":       "https://files.example/avatar.png",
			},
		})
	}))
	defer srv.Close()

	c := New(srv.Client())
	n, err := c.GetNotification(context.Background(), &model.Account{Server: srv.URL, AccessToken: "test-token"}, 4242)
	require.NoError(t, err)
	assert.Equal(t, "4242", n.ID)
	assert.Equal(t, "109", n.Account.ID)
	assert.Equal(t, "Alice A.", n.Account.SafeDisplayName())
}

func TestGetNotificationUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "The access token is invalid"}) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.Client())
	_, err := c.GetNotification(context.Background(), &model.Account{Server: srv.URL, AccessToken: "bad"}, 1)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Contains(t, err.Error(), "The access token is invalid")
}

func TestGetNotificationBareHost(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"id":"1","account":{"id":"2","username":"bob"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	c := New(srv.Client()).WithScheme("http")
	n, err := c.GetNotification(context.Background(), &model.Account{Server: host}, 1)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/notifications/1", gotPath)
	assert.Equal(t, "bob", n.Account.SafeDisplayName())
}

func TestGetNotificationErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/notifications/1":
			w.Write([]byte(`not json`)) //nolint:errcheck
		case "/api/v1/notifications/2":
			w.Write([]byte(`{"id":"2"}`)) //nolint:errcheck
		case "/api/v1/notifications/3":
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte(`{"id":"3","account":{"id":"1"}}`)) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.Client())
	acc := &model.Account{Server: srv.URL}

	_, err := c.GetNotification(context.Background(), acc, 1)
	assert.ErrorContains(t, err, "decode response")

	_, err = c.GetNotification(context.Background(), acc, 2)
	assert.ErrorContains(t, err, "no account")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.GetNotification(ctx, acc, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = c.GetNotification(context.Background(), acc, 404)
	assert.True(t, IsStatus(err, http.StatusNotFound))

	_, err = c.GetNotification(context.Background(), nil, 1)
	assert.Error(t, err)

	_, err = c.GetNotification(context.Background(), &model.Account{}, 1)
	assert.Error(t, err)
}

func TestGetNotificationNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusMultipleChoices)
		w.Write([]byte(`{"id":"1","account":{"id":"2","username":"bob"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.Client())
	n, err := c.GetNotification(context.Background(), &model.Account{Server: srv.URL}, 1)
	require.Error(t, err)
	assert.Nil(t, n)
	assert.True(t, IsStatus(err, http.StatusMultipleChoices))
}

func TestSafeDisplayName(t *testing.T) {
	assert.Equal(t, "Display", model.RemoteAccount{DisplayName: "Display", Username: "user"}.SafeDisplayName())
	assert.Equal(t, "user", model.RemoteAccount{Username: "user", Acct: "user@host"}.SafeDisplayName())
	assert.Equal(t, "user@host", model.RemoteAccount{Acct: "user@host"}.SafeDisplayName())
}
