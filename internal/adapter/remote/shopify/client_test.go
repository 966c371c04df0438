package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"shop-ingest/config"
	"shop-ingest/internal/core/domain"
	"shop-ingest/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, string, *sleepRecorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(config.ShopifyConfig{
		APIVersion:       "2023-10",
		Scheme:           "http",
		PageSize:         250,
		MaxAttempts:      3,
		RateLimitBackoff: 500 * time.Millisecond,
		NetworkBackoff:   200 * time.Millisecond,
		PageDelay:        100 * time.Millisecond,
		RequestTimeout:   5 * time.Second,
	}, nil, zerolog.Nop())
	rec := &sleepRecorder{}
	c.sleep = rec.sleep

	shop := strings.TrimPrefix(srv.URL, "http://")
	return c, shop, rec
}

func TestFetchSince_FollowsNextLinks(t *testing.T) {
	var requests []string
	var mu sync.Mutex
	var srvURL string

	c, shop, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.URL.RequestURI())
		mu.Unlock()

		assert.Equal(t, "shpat_token", r.Header.Get(accessTokenHeader))
		switch r.URL.Query().Get("page_info") {
		case "":
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2023-10/products.json?limit=250&page_info=p2>; rel="next"`, srvURL))
			_, _ = io.WriteString(w, `{"products":[{"id":1},{"id":2}]}`)
		case "p2":
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2023-10/products.json?limit=250&page_info=p1>; rel="previous", <%s/admin/api/2023-10/products.json?limit=250&page_info=p3>; rel="next"`, srvURL, srvURL))
			_, _ = io.WriteString(w, `{"products":[{"id":3}]}`)
		case "p3":
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2023-10/products.json?limit=250&page_info=p2>; rel="previous"`, srvURL))
			_, _ = io.WriteString(w, `{"products":[{"id":4}]}`)
		}
	}))
	srvURL = "http://" + shop

	items, err := c.FetchSince(context.Background(), shop, "shpat_token", domain.ResourceProducts, nil)
	require.NoError(t, err)

	require.Len(t, items, 4)
	for i, item := range items {
		assert.JSONEq(t, fmt.Sprintf(`{"id":%d}`, i+1), string(item))
	}
	assert.Equal(t, []string{
		"/admin/api/2023-10/products.json?limit=250",
		"/admin/api/2023-10/products.json?limit=250&page_info=p2",
		"/admin/api/2023-10/products.json?limit=250&page_info=p3",
	}, requests)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, sleeps.calls)
}

func TestFetchSince_SendsWatermark(t *testing.T) {
	since := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	c, shop, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/2023-10/orders.json", r.URL.Path)
		assert.Equal(t, "2024-03-01T09:00:00Z", r.URL.Query().Get("updated_at_min"))
		assert.Equal(t, "250", r.URL.Query().Get("limit"))
		_, _ = io.WriteString(w, `{"orders":[]}`)
	}))

	items, err := c.FetchSince(context.Background(), shop, "tok", domain.ResourceOrders, &since)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFetchSince_MissingKeyIsEmpty(t *testing.T) {
	c, shop, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"something_else":[{"id":1}]}`)
	}))

	items, err := c.FetchSince(context.Background(), shop, "tok", domain.ResourceCustomers, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFetchSince_RetriesRateLimit(t *testing.T) {
	var calls int
	c, shop, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"customers":[{"id":9}]}`)
	}))

	items, err := c.FetchSince(context.Background(), shop, "tok", domain.ResourceCustomers, nil)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, sleeps.calls)
}

func TestFetchSince_RateLimitExhausted(t *testing.T) {
	var calls int
	c, shop, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.FetchSince(context.Background(), shop, "tok", domain.ResourceProducts, nil)
	require.Error(t, err)

	var fetchErr *domain.RemoteFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusTooManyRequests, fetchErr.StatusCode)
	assert.Equal(t, 3, calls)
}

func TestFetchSince_ServerErrorUsesNetworkBackoff(t *testing.T) {
	var calls int
	c, shop, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"products":[]}`)
	}))

	_, err := c.FetchSince(context.Background(), shop, "tok", domain.ResourceProducts, nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, sleeps.calls)
}

func TestFetchSince_TruncatedBodyRetriedAndLogged(t *testing.T) {
	var calls int
	c, shop, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// declared length is never delivered
			w.Header().Set("Content-Length", "100")
			_, _ = io.WriteString(w, `{"products":[`)
			return
		}
		_, _ = io.WriteString(w, `{"products":[{"id":5}]}`)
	}))
	var buf bytes.Buffer
	c.log = logger.Component(logger.NewWithWriter("debug", &buf), "shopify_client")

	items, err := c.FetchSince(context.Background(), shop, "tok", domain.ResourceProducts, nil)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, sleeps.calls)

	out := buf.String()
	assert.Contains(t, out, "Retrying Admin API request")
	assert.Contains(t, out, `"status":200`)
	assert.Contains(t, out, `"attempt":1`)
	assert.Contains(t, out, "unexpected EOF")
}

func TestFetchSince_ClientErrorNotRetried(t *testing.T) {
	var calls int
	c, shop, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"errors":"[API] Invalid API key or access token"}`)
	}))

	_, err := c.FetchSince(context.Background(), shop, "bad", domain.ResourceOrders, nil)

	var fetchErr *domain.RemoteFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusUnauthorized, fetchErr.StatusCode)
	assert.Contains(t, fetchErr.URL, "/admin/api/2023-10/orders.json")
	assert.Contains(t, err.Error(), "Invalid API key")
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeps.calls)
}

func TestFetchSince_NetworkErrorExhausted(t *testing.T) {
	c, shop, sleeps := newTestClient(t, http.NotFoundHandler())
	// nothing listens on port 1
	shop = "127.0.0.1:1"

	_, err := c.FetchSince(context.Background(), shop, "tok", domain.ResourceProducts, nil)

	var fetchErr *domain.RemoteFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Zero(t, fetchErr.StatusCode)
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}, sleeps.calls)
}

func TestFetchSince_ContextCancelled(t *testing.T) {
	c, shop, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchSince(ctx, shop, "tok", domain.ResourceProducts, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegisterWebhooks(t *testing.T) {
	var got []webhookSubscription
	c, shop, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/api/2023-10/webhooks.json", r.URL.Path)

		var req webhookCreateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got = append(got, req.Webhook)

		switch req.Webhook.Topic {
		case "orders/create":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"errors":{"address":["for this topic has already been taken"]}}`)
		case "customers/create":
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"errors":"scope missing"}`)
		default:
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"webhook":{"id":1}}`)
		}
	}))

	registered, err := c.RegisterWebhooks(context.Background(), shop, "tok", "https://ingest.example.com/")

	assert.Equal(t, []string{"products/create", "orders/create"}, registered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customers/create")

	require.Len(t, got, 3)
	assert.Equal(t, webhookSubscription{
		Topic:   "products/create",
		Address: "https://ingest.example.com/webhooks/products",
		Format:  "json",
	}, got[0])
}

func TestParseNextLink(t *testing.T) {
	assert.Equal(t, "", parseNextLink(""))
	assert.Equal(t, "", parseNextLink(`<https://a/x?page_info=1>; rel="previous"`))
	assert.Equal(t, "https://a/x?page_info=2", parseNextLink(`<https://a/x?page_info=1>; rel="previous", <https://a/x?page_info=2>; rel="next"`))
}

func TestAlreadyRegistered(t *testing.T) {
	assert.True(t, alreadyRegistered([]byte(`{"errors":{"address":["has already been taken"]}}`)))
	assert.True(t, alreadyRegistered([]byte(`{"errors":{"address":"Has Already Been Taken"}}`)))
	assert.False(t, alreadyRegistered([]byte(`{"errors":{"topic":["invalid"]}}`)))
	assert.False(t, alreadyRegistered([]byte(`not json`)))
}

func TestNewClient_TagsComponent(t *testing.T) {
	var buf bytes.Buffer
	c := NewClient(config.ShopifyConfig{}, nil, logger.NewWithWriter("debug", &buf))

	c.logRetry("products", "https://acme.myshopify.com/admin/api/2023-10/products.json", 1, http.StatusBadGateway, nil)

	assert.Contains(t, buf.String(), `"component":"shopify_client"`)
	assert.Contains(t, buf.String(), `"status":502`)
}
