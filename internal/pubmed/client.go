// Package pubmed searches PubMed through the NCBI Entrez E-utilities and
// returns abstracts as plain text.
package pubmed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/medrag/internal/apierr"
	"github.com/fyrsmithlabs/medrag/internal/logging"
)

const (
	// DefaultBaseURL is the E-utilities endpoint.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// NCBI allows 3 requests per second without an API key and 10 with one.
	anonymousRate = 3
	keyedRate     = 10

	maxResponseBytes = 16 << 20
)

// ErrEmailRequired is returned when no contact email is configured.
var ErrEmailRequired = errors.New("entrez email must be provided for PubMed API access")

// Config configures a Client.
type Config struct {
	BaseURL string
	Email   string
	Tool    string
	APIKey  string
	Timeout time.Duration

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
	// RequestsPerSecond overrides the NCBI policy rate.
	RequestsPerSecond float64
}

// Client talks to Entrez. It is safe for concurrent use; all copies made by
// search options share one rate limiter and circuit breaker.
type Client struct {
	baseURL string
	email   string
	tool    string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *logging.Logger
}

// New creates a Client.
func New(cfg Config, logger *logging.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Tool == "" {
		cfg.Tool = "medrag"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = anonymousRate
		if cfg.APIKey != "" {
			rps = keyedRate
		}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		email:   cfg.Email,
		tool:    cfg.Tool,
		apiKey:  cfg.APIKey,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		breaker: newBreaker(),
		logger:  logger.Named("pubmed"),
	}
}

func newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "entrez",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only outages count against the breaker; bad queries and rate
		// limits do not.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, apierr.ErrUnavailable)
		},
	})
}

// SearchOption adjusts a single search.
type SearchOption func(*searchOptions)

type searchOptions struct {
	email string
}

// WithEmail overrides the configured contact email for one search.
func WithEmail(email string) SearchOption {
	return func(o *searchOptions) {
		if email != "" {
			o.email = email
		}
	}
}

// Search finds up to maxResults PubMed articles for query and returns their
// abstracts, one entry per blank-line separated block of the efetch text
// output. No matches yields an empty slice and no error.
func (c *Client) Search(ctx context.Context, query string, maxResults int, opts ...SearchOption) ([]string, error) {
	o := searchOptions{email: c.email}
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(o.email) == "" {
		return nil, ErrEmailRequired
	}
	if maxResults < 1 {
		return nil, fmt.Errorf("max results must be >= 1, got %d", maxResults)
	}

	ids, err := c.esearch(ctx, o.email, query, maxResults)
	if err != nil {
		return nil, err
	}
	c.logger.Debug(ctx, "esearch complete", zap.Int("ids", len(ids)))
	if len(ids) == 0 {
		return []string{}, nil
	}

	text, err := c.efetch(ctx, o.email, ids)
	if err != nil {
		return nil, err
	}
	return SplitAbstracts(text), nil
}

// SplitAbstracts splits efetch text output on blank lines, trimming each
// entry and dropping empty ones.
func SplitAbstracts(text string) []string {
	entries := strings.Split(strings.TrimSpace(text), "\n\n")
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func (c *Client) esearch(ctx context.Context, email, query string, maxResults int) ([]string, error) {
	params := c.params(email)
	params.Set("db", "pubmed")
	params.Set("term", query)
	params.Set("retmax", strconv.Itoa(maxResults))
	params.Set("retmode", "json")

	body, err := c.get(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("esearch: %w", err)
	}
	return parseIDList(body)
}

// parseIDList extracts esearchresult.idlist, surfacing Entrez error fields.
func parseIDList(body []byte) ([]string, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("esearch: decode response: %w", err)
	}
	if msg := v.GetStringBytes("error"); len(msg) > 0 {
		return nil, fmt.Errorf("esearch: %s", msg)
	}
	result := v.Get("esearchresult")
	if result == nil {
		return nil, errors.New("esearch: response has no esearchresult")
	}
	if msg := result.GetStringBytes("ERROR"); len(msg) > 0 {
		return nil, fmt.Errorf("esearch: %s", msg)
	}

	items := result.GetArray("idlist")
	ids := make([]string, 0, len(items))
	for _, item := range items {
		id, err := item.StringBytes()
		if err != nil {
			return nil, fmt.Errorf("esearch: idlist entry: %w", err)
		}
		ids = append(ids, string(id))
	}
	return ids, nil
}

func (c *Client) efetch(ctx context.Context, email string, ids []string) (string, error) {
	params := c.params(email)
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(ids, ","))
	params.Set("rettype", "abstract")
	params.Set("retmode", "text")

	body, err := c.get(ctx, "efetch.fcgi", params)
	if err != nil {
		return "", fmt.Errorf("efetch: %w", err)
	}
	return string(body), nil
}

func (c *Client) params(email string) url.Values {
	params := url.Values{}
	params.Set("tool", c.tool)
	params.Set("email", email)
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	return params
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, endpoint, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", apierr.ErrUnavailable, err)
		}
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) do(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u := c.baseURL + "/" + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &apierr.Error{Provider: "entrez", Kind: apierr.ErrUnavailable, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", apierr.ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apierr.FromStatus("entrez", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
