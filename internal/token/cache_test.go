package token

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/mailhub/pkg/models"
)

type update struct {
	id      int64
	access  string
	refresh string
	expires int64
}

type fakeStore struct {
	mu      sync.Mutex
	updates []update
}

func (s *fakeStore) UpdateAccountTokens(_ context.Context, id int64, access, refresh string, expiresAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update{id, access, refresh, expiresAt})
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAccount() *models.Account {
	return &models.Account{ID: 7, ClientID: "cid", ClientSecret: "secret", RefreshToken: "r1"}
}

func TestAccessTokenCacheHit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	store := &fakeStore{}
	cache := NewCache(store, srv.URL, discard())
	acc := newAccount()
	acc.AccessToken = "cached"
	acc.ExpiresAt = time.Now().Add(10 * time.Minute).UnixMilli()

	tok, err := cache.AccessToken(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, "cached", tok)
	assert.Zero(t, calls.Load())
	assert.Empty(t, store.updates)
}

func TestAccessTokenRefreshesNearExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "r1", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"fresh","refresh_token":"r2","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	store := &fakeStore{}
	cache := NewCache(store, srv.URL, discard())
	acc := newAccount()
	acc.AccessToken = "stale"
	acc.ExpiresAt = time.Now().Add(4 * time.Minute).UnixMilli()

	tok, err := cache.AccessToken(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
	assert.Equal(t, "fresh", acc.AccessToken)
	assert.Equal(t, "r2", acc.RefreshToken)

	require.Len(t, store.updates, 1)
	u := store.updates[0]
	assert.Equal(t, int64(7), u.id)
	assert.Equal(t, "r2", u.refresh)
	assert.InDelta(t, time.Now().Add(time.Hour).UnixMilli(), u.expires, float64(time.Minute.Milliseconds()))
}

func TestAccessTokenKeepsRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	store := &fakeStore{}
	acc := newAccount()
	_, err := NewCache(store, srv.URL, discard()).AccessToken(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, "r1", acc.RefreshToken)
	require.Len(t, store.updates, 1)
	assert.Equal(t, "r1", store.updates[0].refresh)
}

func TestAccessTokenMissingCredentials(t *testing.T) {
	acc := newAccount()
	acc.ClientSecret = ""
	_, err := NewCache(&fakeStore{}, "http://127.0.0.1:1", discard()).AccessToken(context.Background(), acc)
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestAccessTokenProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"invalid_grant","error_description":"AADSTS70000: grant expired"}`)
	}))
	defer srv.Close()

	store := &fakeStore{}
	acc := newAccount()
	_, err := NewCache(store, srv.URL, discard()).AccessToken(context.Background(), acc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefreshFailed)

	var re *RefreshError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "AADSTS70000: grant expired", re.Description)
	assert.Empty(t, store.updates)
	assert.Equal(t, "r1", acc.RefreshToken)
}

func TestAccessTokenCollapsesConcurrentRefresh(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	store := &fakeStore{}
	cache := NewCache(store, srv.URL, discard())

	var wg sync.WaitGroup
	tokens := make([]string, 5)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := cache.AccessToken(context.Background(), newAccount())
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, store.updates, 1)
	for _, tok := range tokens {
		assert.Equal(t, "fresh", tok)
	}
}
