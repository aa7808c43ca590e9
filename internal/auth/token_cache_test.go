package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ms-marketplace/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestTokenCache_RoundTrip(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewRedisTokenCache(client)
	ctx := context.Background()

	got, err := cache.GetToken(ctx, "svc")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, cache.SetToken(ctx, "svc", "abc", 300))
	got, err = cache.GetToken(ctx, "svc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.Token)
	assert.Equal(t, 360*time.Second, mr.TTL(M2MTokenKey+"svc"))

	other, err := cache.GetToken(ctx, "other-client")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestTokenCache_StaleInsideBuffer(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewRedisTokenCache(client)
	ctx := context.Background()

	require.NoError(t, cache.SetToken(ctx, "svc", "short-lived", 30))
	got, err := cache.GetToken(ctx, "svc")
	require.NoError(t, err)
	assert.Nil(t, got, "a token expiring within the buffer is not handed out")
}

func TestTokenCache_NoClient(t *testing.T) {
	cache := &RedisTokenCache{Now: time.Now}
	_, err := cache.GetToken(context.Background(), "svc")
	assert.Error(t, err)
	assert.Error(t, cache.SetToken(context.Background(), "svc", "x", 10))
}

func TestM2MTokenSource_FetchesOnceThenCaches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "marketplace", r.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-1","expires_in":300,"token_type":"Bearer"}`)
	}))
	defer srv.Close()

	client, _ := setupTestRedis(t)
	src := &M2MTokenSource{
		HTTP:         srv.Client(),
		Cache:        NewRedisTokenCache(client),
		TokenURL:     srv.URL,
		ClientID:     "marketplace",
		ClientSecret: "s3cret",
		Logger:       logger.Nop(),
	}

	for i := 0; i < 3; i++ {
		tok, err := src.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-1", tok)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestM2MTokenSource_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_client", http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := &M2MTokenSource{HTTP: srv.Client(), TokenURL: srv.URL, ClientID: "x", Logger: logger.Nop()}
	_, err := src.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_client")
}
