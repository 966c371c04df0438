package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"shop-ingest/config"
	"shop-ingest/internal/core/domain"
	"shop-ingest/internal/observability/metrics"
	"shop-ingest/pkg/logger"

	"github.com/rs/zerolog"
)

const accessTokenHeader = "X-Shopify-Access-Token"

var nextLinkPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// Client implements ports.RemoteClient against the Shopify Admin REST API.
type Client struct {
	httpClient       *http.Client
	apiVersion       string
	scheme           string
	pageSize         int
	maxAttempts      int
	rateLimitBackoff time.Duration
	networkBackoff   time.Duration
	pageDelay        time.Duration
	metrics          *metrics.Metrics
	log              zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates an Admin API client. m may be nil.
func NewClient(cfg config.ShopifyConfig, m *metrics.Metrics, log zerolog.Logger) *Client {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 250 {
		pageSize = 250
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:       &http.Client{Timeout: timeout},
		apiVersion:       cfg.APIVersion,
		scheme:           scheme,
		pageSize:         pageSize,
		maxAttempts:      maxAttempts,
		rateLimitBackoff: cfg.RateLimitBackoff,
		networkBackoff:   cfg.NetworkBackoff,
		pageDelay:        cfg.PageDelay,
		metrics:          m,
		log:              logger.Component(log, "shopify_client"),
		sleep:            sleepContext,
	}
}

// FetchSince follows rel="next" links from the first page until the last one,
// returning the records of every page in the order received.
func (c *Client) FetchSince(ctx context.Context, shopDomain, accessToken string, resource domain.Resource, since *time.Time) ([]json.RawMessage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.pageSize))
	if since != nil {
		query.Set("updated_at_min", since.UTC().Format(time.RFC3339))
	}
	next := c.endpoint(shopDomain, string(resource)+".json") + "?" + query.Encode()

	items := make([]json.RawMessage, 0)
	for page := 1; next != ""; page++ {
		if page > 1 && c.pageDelay > 0 {
			if err := c.sleep(ctx, c.pageDelay); err != nil {
				return nil, err
			}
		}

		resp, err := c.do(ctx, string(resource), http.MethodGet, next, accessToken, nil)
		if err != nil {
			return nil, err
		}
		if resp.status < 200 || resp.status > 299 {
			return nil, &domain.RemoteFetchError{StatusCode: resp.status, URL: next, Err: bodyError(resp.body)}
		}

		pageItems, err := decodeItems(resp.body, string(resource))
		if err != nil {
			return nil, &domain.RemoteFetchError{StatusCode: resp.status, URL: next, Err: err}
		}
		items = append(items, pageItems...)

		c.log.Debug().
			Str("shop", shopDomain).
			Str("resource", string(resource)).
			Int("page", page).
			Int("items", len(pageItems)).
			Msg("Fetched page")

		next = parseNextLink(resp.header.Get("Link"))
	}
	return items, nil
}

type webhookCreateRequest struct {
	Webhook webhookSubscription `json:"webhook"`
}

type webhookSubscription struct {
	Topic   string `json:"topic"`
	Address string `json:"address"`
	Format  string `json:"format"`
}

type webhookErrorResponse struct {
	Errors struct {
		Address json.RawMessage `json:"address"`
	} `json:"errors"`
}

// RegisterWebhooks subscribes the shop to every ingestion topic, pointing each
// at {baseURL}/webhooks/{resource}. Topics that are already registered count as
// registered. Failures for individual topics are joined into the returned error.
func (c *Client) RegisterWebhooks(ctx context.Context, shopDomain, accessToken, baseURL string) ([]string, error) {
	endpoint := c.endpoint(shopDomain, "webhooks.json")
	baseURL = strings.TrimRight(baseURL, "/")

	registered := make([]string, 0, len(domain.WebhookTopics))
	var errs []error
	for _, topic := range domain.WebhookTopics {
		resource, err := domain.ResourceForTopic(topic)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		payload, err := json.Marshal(webhookCreateRequest{Webhook: webhookSubscription{
			Topic:   topic,
			Address: baseURL + "/webhooks/" + string(resource),
			Format:  "json",
		}})
		if err != nil {
			return registered, fmt.Errorf("encode webhook %s: %w", topic, err)
		}

		resp, err := c.do(ctx, "webhooks", http.MethodPost, endpoint, accessToken, payload)
		if err != nil {
			if ctx.Err() != nil {
				return registered, err
			}
			errs = append(errs, fmt.Errorf("register %s: %w", topic, err))
			continue
		}
		if (resp.status >= 200 && resp.status <= 299) || alreadyRegistered(resp.body) {
			registered = append(registered, topic)
			continue
		}
		errs = append(errs, fmt.Errorf("register %s: %w", topic,
			&domain.RemoteFetchError{StatusCode: resp.status, URL: endpoint, Err: bodyError(resp.body)}))
	}
	return registered, errors.Join(errs...)
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do performs one logical request, retrying 429s, 5xx and transport errors up
// to maxAttempts with a linear backoff. Other statuses are returned as-is.
func (c *Client) do(ctx context.Context, resource, method, target, accessToken string, payload []byte) (*response, error) {
	for attempt := 1; ; attempt++ {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return nil, &domain.RemoteFetchError{URL: target, Err: err}
		}
		req.Header.Set(accessTokenHeader, accessToken)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.metrics.ObserveRemoteRequest(resource, metrics.OutcomeError, time.Since(start))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt >= c.maxAttempts {
				return nil, &domain.RemoteFetchError{URL: target, Err: err}
			}
			c.logRetry(resource, target, attempt, 0, err)
			if err := c.sleep(ctx, c.networkBackoff*time.Duration(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			c.metrics.ObserveRemoteRequest(resource, metrics.OutcomeError, time.Since(start))
			if attempt >= c.maxAttempts {
				return nil, &domain.RemoteFetchError{StatusCode: resp.StatusCode, URL: target, Err: readErr}
			}
			c.logRetry(resource, target, attempt, resp.StatusCode, readErr)
			if err := c.sleep(ctx, c.networkBackoff*time.Duration(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		backoff, transient := c.transientBackoff(resp.StatusCode)
		if !transient {
			outcome := metrics.OutcomeOK
			if resp.StatusCode > 299 {
				outcome = metrics.OutcomeError
			}
			c.metrics.ObserveRemoteRequest(resource, outcome, time.Since(start))
			return &response{status: resp.StatusCode, header: resp.Header, body: respBody}, nil
		}

		c.metrics.ObserveRemoteRequest(resource, metrics.OutcomeRetry, time.Since(start))
		if attempt >= c.maxAttempts {
			return nil, &domain.RemoteFetchError{StatusCode: resp.StatusCode, URL: target, Err: errRetriesExhausted}
		}
		c.logRetry(resource, target, attempt, resp.StatusCode, nil)
		if err := c.sleep(ctx, backoff*time.Duration(attempt)); err != nil {
			return nil, err
		}
	}
}

var errRetriesExhausted = errors.New("retries exhausted")

func (c *Client) transientBackoff(status int) (time.Duration, bool) {
	switch {
	case status == http.StatusTooManyRequests:
		return c.rateLimitBackoff, true
	case status >= 500:
		return c.networkBackoff, true
	default:
		return 0, false
	}
}

func (c *Client) logRetry(resource, target string, attempt, status int, err error) {
	evt := c.log.Warn().
		Str("resource", resource).
		Str("url", target).
		Int("attempt", attempt)
	if status != 0 {
		evt = evt.Int("status", status)
	}
	if err != nil {
		evt = evt.Err(err)
	}
	evt.Msg("Retrying Admin API request")
}

func (c *Client) endpoint(shopDomain, path string) string {
	return fmt.Sprintf("%s://%s/admin/api/%s/%s", c.scheme, shopDomain, c.apiVersion, path)
}

func decodeItems(body []byte, key string) ([]json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	raw, ok := envelope[key]
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return items, nil
}

func parseNextLink(header string) string {
	if header == "" {
		return ""
	}
	m := nextLinkPattern.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return m[1]
}

func alreadyRegistered(body []byte) bool {
	var resp webhookErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Errors.Address) == 0 {
		return false
	}
	var messages []string
	if err := json.Unmarshal(resp.Errors.Address, &messages); err != nil {
		var single string
		if err := json.Unmarshal(resp.Errors.Address, &single); err != nil {
			return false
		}
		messages = []string{single}
	}
	for _, msg := range messages {
		if strings.Contains(strings.ToLower(msg), "already been taken") {
			return true
		}
	}
	return false
}

func bodyError(body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
