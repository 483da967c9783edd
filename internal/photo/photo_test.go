package photo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitgroups/pkg/platform/circuit"
)

const fallbackURL = "https://images.example.com/fallback.jpg"

func TestClient_RandomURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/photos/random", r.URL.Path)
		assert.Equal(t, "Client-ID key-123", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"p1","urls":{"regular":"https://images.example.com/p1.jpg","small":"x"}}`))
	}))
	defer srv.Close()

	url, err := NewClient(srv.URL+"/", "key-123").RandomURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://images.example.com/p1.jpg", url)
}

func TestClient_RandomURLErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"errors":["Rate Limit Exceeded"]}`},
		{"no url", http.StatusOK, `{"urls":{}}`},
		{"bad json", http.StatusOK, `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "k").RandomURL(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestPicker_FallsBackAndOpensCircuit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	breaker := circuit.New("photo", circuit.WithFailureThreshold(3), circuit.WithTimeout(time.Minute))
	picker := NewPicker(NewClient(srv.URL, "k"), breaker, fallbackURL)
	ctx := context.Background()

	for range 3 {
		assert.Equal(t, fallbackURL, picker.Pick(ctx))
	}
	require.True(t, breaker.IsOpen())

	assert.Equal(t, fallbackURL, picker.Pick(ctx))
	assert.Equal(t, int32(3), calls.Load(), "open circuit skips the call")
}

func TestPicker_CallerCancellationIsNotABreakerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"urls":{"regular":"https://images.example.com/p2.jpg"}}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	breaker := circuit.New("photo", circuit.WithFailureThreshold(1))
	picker := NewPicker(NewClient(srv.URL, "k"), breaker, fallbackURL)

	assert.Equal(t, fallbackURL, picker.Pick(ctx))
	assert.Equal(t, circuit.StateClosed, breaker.State())
	assert.Zero(t, breaker.Failures())
}

func TestPicker_ReturnsFetchedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"urls":{"regular":"https://images.example.com/p2.jpg"}}`))
	}))
	defer srv.Close()

	breaker := circuit.New("photo")
	picker := NewPicker(NewClient(srv.URL, "k"), breaker, fallbackURL)

	assert.Equal(t, "https://images.example.com/p2.jpg", picker.Pick(context.Background()))
	assert.Equal(t, circuit.StateClosed, breaker.State())
}
