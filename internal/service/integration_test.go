package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"shop-ingest/config"
	httpHandler "shop-ingest/internal/adapter/http/handler"
	"shop-ingest/internal/adapter/remote/shopify"
	redisStorage "shop-ingest/internal/adapter/storage/redis"
	"shop-ingest/internal/core/domain"
	"shop-ingest/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIVersion  = "2024-01"
	testAccessToken = "shpat_test"
	webhookShop     = "demo.myshopify.com"
	webhookSecret   = "tenant-webhook-secret"
)

// fakeShop serves the Admin API list endpoints with Link-header pagination.
// Records whose updated_at is before updated_at_min are filtered out.
type fakeShop struct {
	server *httptest.Server

	mu       sync.Mutex
	records  map[string][]json.RawMessage
	failing  map[string]bool
	cursors  map[string][]json.RawMessage
	requests []shopRequest
	pageSize int
}

type shopRequest struct {
	resource string
	query    url.Values
}

func newFakeShop(t *testing.T, pageSize int) *fakeShop {
	t.Helper()
	s := &fakeShop{
		records:  make(map[string][]json.RawMessage),
		failing:  make(map[string]bool),
		cursors:  make(map[string][]json.RawMessage),
		pageSize: pageSize,
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.server.Close)
	return s
}

func (s *fakeShop) shopDomain() string {
	return strings.TrimPrefix(s.server.URL, "http://")
}

func (s *fakeShop) add(resource domain.Resource, id int64, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw := fmt.Sprintf(`{"id": %d, "updated_at": %q}`, id, updatedAt.UTC().Format(time.RFC3339))
	s.records[string(resource)] = append(s.records[string(resource)], json.RawMessage(raw))
}

func (s *fakeShop) fail(resource domain.Resource, failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[string(resource)] = failing
}

// queries returns the query of every first-page request for resource.
func (s *fakeShop) queries(resource domain.Resource) []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []url.Values
	for _, r := range s.requests {
		if r.resource == string(resource) && r.query.Get("page_info") == "" {
			out = append(out, r.query)
		}
	}
	return out
}

func (s *fakeShop) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *fakeShop) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Header.Get("X-Shopify-Access-Token") != testAccessToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	prefix := "/admin/api/" + testAPIVersion + "/"
	resource := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), ".json")
	if s.failing[resource] {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"errors":"boom"}`))
		return
	}
	query := r.URL.Query()
	s.requests = append(s.requests, shopRequest{resource: resource, query: query})

	var remaining []json.RawMessage
	if cursor := query.Get("page_info"); cursor != "" {
		remaining = s.cursors[cursor]
		delete(s.cursors, cursor)
	} else {
		remaining = s.filter(resource, query.Get("updated_at_min"))
	}

	page := remaining
	if len(page) > s.pageSize {
		page = remaining[:s.pageSize]
		cursor := uuid.NewString()
		s.cursors[cursor] = remaining[s.pageSize:]
		next := fmt.Sprintf("%s%s%s.json?limit=%d&page_info=%s", s.server.URL, prefix, resource, s.pageSize, cursor)
		w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, next))
	}

	body, _ := json.Marshal(map[string][]json.RawMessage{resource: page})
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *fakeShop) filter(resource, updatedAtMin string) []json.RawMessage {
	all := s.records[resource]
	if updatedAtMin == "" {
		return all
	}
	since, err := time.Parse(time.RFC3339, updatedAtMin)
	if err != nil {
		return nil
	}
	var out []json.RawMessage
	for _, raw := range all {
		var rec struct {
			UpdatedAt time.Time `json:"updated_at"`
		}
		if json.Unmarshal(raw, &rec) == nil && !rec.UpdatedAt.Before(since) {
			out = append(out, raw)
		}
	}
	return out
}

// testApp wires the real services over in-memory repositories, miniredis and
// the fake shop, and serves the real router.
type testApp struct {
	server   *httptest.Server
	redis    *miniredis.Miniredis
	shop     *fakeShop
	tenant   *domain.Tenant
	hook     *domain.Tenant
	jobs     *memJobs
	states   *memStates
	records  *memRecords
	logs     *memWebhookLogs
	backfill *service.BackfillOrchestrator
	poller   *service.Poller
	notifier *service.ChannelNotifier
	signer   *service.HMACWebhookSigner
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	shop := newFakeShop(t, 2)
	token := testAccessToken
	secret := webhookSecret
	tenant := &domain.Tenant{ID: uuid.New(), Name: "Fake", ShopDomain: shop.shopDomain(), AccessTokenEnc: &token}
	hook := &domain.Tenant{ID: uuid.New(), Name: "Demo", ShopDomain: webhookShop, AccessTokenEnc: &token, APISecret: &secret}

	tenants := newMemTenants(tenant, hook)
	jobs := newMemJobs()
	states := newMemStates()
	records := newMemRecords()
	logs := newMemWebhookLogs()

	log := zerolog.Nop()
	client := shopify.NewClient(config.ShopifyConfig{
		APIVersion:     testAPIVersion,
		Scheme:         "http",
		PageSize:       2,
		MaxAttempts:    1,
		RequestTimeout: 5 * time.Second,
	}, nil, log)

	codec := service.PlaintextCredentialCodec{}
	writer := service.NewRecordWriter(records)
	signer := service.NewHMACWebhookSigner()
	notifier := service.NewChannelNotifier(16)

	orchestrator := service.NewBackfillOrchestrator(jobs, tenants, states, client, codec, writer, nil, log)
	poller := service.NewPoller(jobs, orchestrator, notifier, 50*time.Millisecond, 10, log)
	backfillSvc := service.NewBackfillService(jobs, tenants, states, notifier, log)
	ingestor := service.NewWebhookIngestor(tenants, logs, redisStorage.NewDeliveryCache(rdb), signer, writer,
		service.WebhookOptions{DedupByPayloadHash: true, DedupTTL: time.Hour}, nil, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		BackfillSvc:     backfillSvc,
		WebhookIngestor: ingestor,
		TenantSvc:       service.NewTenantService(tenants, codec, client, log),
		Mode:            gin.TestMode,
		Logger:          log,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testApp{
		server:   server,
		redis:    mr,
		shop:     shop,
		tenant:   tenant,
		hook:     hook,
		jobs:     jobs,
		states:   states,
		records:  records,
		logs:     logs,
		backfill: orchestrator,
		poller:   poller,
		notifier: notifier,
		signer:   signer,
	}
}

func (a *testApp) enqueue(t *testing.T) uuid.UUID {
	t.Helper()
	resp, err := http.Post(a.server.URL+"/ingest/backfill?tenantId="+a.tenant.ID.String(), "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		OK    bool   `json:"ok"`
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body.OK)
	return uuid.MustParse(body.JobID)
}

func (a *testApp) job(t *testing.T, id uuid.UUID) domain.BackfillJob {
	t.Helper()
	resp, err := http.Get(a.server.URL + "/ingest/backfill/job/" + id.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var job domain.BackfillJob
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	return job
}

func (a *testApp) postWebhook(t *testing.T, resource, deliveryID, body, signature string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.server.URL+"/webhooks/"+resource, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Shop-Domain", webhookShop)
	req.Header.Set("X-Shopify-Topic", resource+"/update")
	req.Header.Set("X-Shopify-Webhook-Id", deliveryID)
	req.Header.Set("X-Shopify-Hmac-Sha256", signature)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestBackfill_FullThenIncremental(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	t1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t1.Add(2 * time.Hour)
	app.shop.add(domain.ResourceProducts, 1, t1)
	app.shop.add(domain.ResourceProducts, 2, t3)
	app.shop.add(domain.ResourceProducts, 3, t2)
	app.shop.add(domain.ResourceCustomers, 10, t1)
	app.shop.add(domain.ResourceOrders, 9007199254740993, t2)

	jobID := app.enqueue(t)
	assert.Equal(t, domain.JobStatusQueued, app.job(t, jobID).Status)

	woke, err := app.notifier.Wait(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, woke)
	require.Equal(t, 1, app.poller.Poll(ctx))

	job := app.job(t, jobID)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	require.NotNil(t, job.ProductsCount)
	assert.Equal(t, 3, *job.ProductsCount)
	assert.Equal(t, 1, *job.CustomersCount)
	assert.Equal(t, 1, *job.OrdersCount)
	assert.Equal(t, []string{
		"Fetching tenant access token",
		"Fetching products",
		"Fetched 3 products",
		"Fetching customers",
		"Fetched 1 customers",
		"Fetching orders",
		"Fetched 1 orders",
		"Backfill completed",
	}, job.Messages)
	require.NotNil(t, job.Message)
	assert.Equal(t, "Backfill completed", *job.Message)

	assert.Equal(t, 3, app.records.count(app.tenant.ID, domain.ResourceProducts))
	assert.Equal(t, 1, app.records.count(app.tenant.ID, domain.ResourceOrders))

	// watermark is the newest record, not the last one received
	products, err := app.states.Get(ctx, app.tenant.ID, domain.ResourceProducts)
	require.NoError(t, err)
	require.NotNil(t, products.LastSuccessAt)
	assert.True(t, t3.Equal(*products.LastSuccessAt))
	assert.Equal(t, domain.StateStatusIdle, products.Status)

	// second page was followed through the Link header
	assert.Equal(t, 4, app.shop.requestCount())

	// incremental run only sees records at or after each watermark
	jobID = app.enqueue(t)
	require.Equal(t, 1, app.poller.Poll(ctx))

	job = app.job(t, jobID)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, *job.ProductsCount)
	assert.Equal(t, 3, app.records.count(app.tenant.ID, domain.ResourceProducts))

	productQueries := app.shop.queries(domain.ResourceProducts)
	require.Len(t, productQueries, 2)
	assert.Empty(t, productQueries[0].Get("updated_at_min"))
	assert.Equal(t, t3.Format(time.RFC3339), productQueries[1].Get("updated_at_min"))
	assert.Equal(t, "2", productQueries[1].Get("limit"))
}

func TestBackfill_FailureKeepsEarlierProgress(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	t1 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	app.shop.add(domain.ResourceProducts, 1, t1)
	app.shop.add(domain.ResourceCustomers, 2, t1)
	app.shop.add(domain.ResourceOrders, 3, t1)
	app.shop.fail(domain.ResourceOrders, true)

	jobID := app.enqueue(t)
	require.Equal(t, 1, app.poller.Poll(ctx))

	job := app.job(t, jobID)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "orders")
	assert.Nil(t, job.ProductsCount)

	products, err := app.states.Get(ctx, app.tenant.ID, domain.ResourceProducts)
	require.NoError(t, err)
	require.NotNil(t, products.LastSuccessAt)
	assert.True(t, t1.Equal(*products.LastSuccessAt))
	assert.Equal(t, domain.StateStatusFailed, products.Status)

	orders, err := app.states.Get(ctx, app.tenant.ID, domain.ResourceOrders)
	require.NoError(t, err)
	assert.Nil(t, orders.LastSuccessAt)
	assert.Equal(t, domain.StateStatusFailed, orders.Status)

	// the next run resumes and clears the failure
	app.shop.fail(domain.ResourceOrders, false)
	jobID = app.enqueue(t)
	require.Equal(t, 1, app.poller.Poll(ctx))
	assert.Equal(t, domain.JobStatusCompleted, app.job(t, jobID).Status)

	resp, err := http.Get(app.server.URL + "/ingest/backfill/state?tenantId=" + app.tenant.ID.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	var states []domain.BackfillState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&states))
	require.Len(t, states, 3)
	for _, s := range states {
		assert.Equal(t, domain.StateStatusIdle, s.Status, s.Resource)
		assert.NotNil(t, s.LastSuccessAt, s.Resource)
	}
}

func TestBackfill_ResetStateForcesFullFetch(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	app.shop.add(domain.ResourceCustomers, 5, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	app.enqueue(t)
	require.Equal(t, 1, app.poller.Poll(ctx))

	body := fmt.Sprintf(`{"tenantId":%q,"resource":"customers"}`, app.tenant.ID)
	resp, err := http.Post(app.server.URL+"/ingest/backfill/state/reset", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	state, err := app.states.Get(ctx, app.tenant.ID, domain.ResourceCustomers)
	require.NoError(t, err)
	assert.Nil(t, state.LastSuccessAt)

	app.enqueue(t)
	require.Equal(t, 1, app.poller.Poll(ctx))

	customerQueries := app.shop.queries(domain.ResourceCustomers)
	require.Len(t, customerQueries, 2)
	assert.Empty(t, customerQueries[1].Get("updated_at_min"))

	state, err = app.states.Get(ctx, app.tenant.ID, domain.ResourceCustomers)
	require.NoError(t, err)
	require.NotNil(t, state.LastSuccessAt)
}

func TestBackfill_UnknownTenant(t *testing.T) {
	app := newTestApp(t)

	resp, err := http.Post(app.server.URL+"/ingest/backfill?tenantId="+uuid.NewString(), "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 0, app.poller.Poll(context.Background()))
}

func TestWebhook_SignedDeliveryAndRedelivery(t *testing.T) {
	app := newTestApp(t)

	payload := `{"id": 4242, "name": "#1001", "total_price": "12.00", "updated_at": "2024-04-01T12:00:00Z"}`
	sig := app.signer.Sign(webhookSecret, []byte(payload))

	status, body := app.postWebhook(t, "orders", "delivery-1", payload, sig)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])
	assert.Nil(t, body["note"])
	assert.Equal(t, 1, app.records.count(app.hook.ID, domain.ResourceOrders))

	// redelivery answers from the redis fast path
	status, body = app.postWebhook(t, "orders", "delivery-1", payload, sig)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "duplicate", body["note"])

	// with redis flushed the ledger still catches it
	app.redis.FlushAll()
	status, body = app.postWebhook(t, "orders", "delivery-1", payload, sig)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "duplicate", body["note"])

	assert.Equal(t, 1, app.records.writeCount())
	assert.Equal(t, 1, app.logs.countStatus(domain.WebhookLogOK))
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	app := newTestApp(t)

	payload := `{"id": 7, "title": "Hat"}`
	status, body := app.postWebhook(t, "products", "delivery-2", payload, app.signer.Sign("wrong", []byte(payload)))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "SEC_002", body["error_code"])
	assert.Equal(t, 0, app.records.writeCount())

	status, body = app.postWebhook(t, "products", "delivery-2", payload, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "SEC_001", body["error_code"])

	// a rejected delivery never blocks the correctly signed retry
	status, _ = app.postWebhook(t, "products", "delivery-2", payload, app.signer.Sign(webhookSecret, []byte(payload)))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, app.records.count(app.hook.ID, domain.ResourceProducts))
}

func TestWebhook_SameBodyDifferentDeliveryID(t *testing.T) {
	app := newTestApp(t)

	payload := `{"id": 55, "email": "b@example.com"}`
	sig := app.signer.Sign(webhookSecret, []byte(payload))

	status, body := app.postWebhook(t, "customers", "delivery-a", payload, sig)
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, body["note"])

	status, body = app.postWebhook(t, "customers", "delivery-b", payload, sig)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "duplicate", body["note"])
	assert.Equal(t, 1, app.records.writeCount())
}

func TestWebhook_FlippedByteRejected(t *testing.T) {
	app := newTestApp(t)

	payload := []byte(`{"id": 8, "title": "Scarf"}`)
	sig := app.signer.Sign(webhookSecret, payload)
	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-3] ^= 0x01

	status, body := app.postWebhook(t, "products", "delivery-8", string(tampered), sig)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "SEC_002", body["error_code"])
	assert.Equal(t, 0, app.records.writeCount())
}

func TestWebhook_InvalidPayload(t *testing.T) {
	app := newTestApp(t)

	payload := `{"title": "no id"}`
	status, body := app.postWebhook(t, "products", "delivery-3", payload, app.signer.Sign(webhookSecret, []byte(payload)))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "ING_005", body["error_code"])
	assert.Equal(t, 0, app.records.writeCount())
}

func TestWebhook_BackfillAndWebhookConverge(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	app.shop.add(domain.ResourceProducts, 77, ts)
	app.enqueue(t)
	require.Equal(t, 1, app.poller.Poll(ctx))

	// same remote id under another tenant is a separate record
	payload := `{"id": 77, "title": "Renamed"}`
	status, _ := app.postWebhook(t, "products", "delivery-77", payload, app.signer.Sign(webhookSecret, []byte(payload)))
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, 1, app.records.count(app.tenant.ID, domain.ResourceProducts))
	assert.Equal(t, 1, app.records.count(app.hook.ID, domain.ResourceProducts))
	assert.Equal(t, 2, app.records.writeCount())
}
