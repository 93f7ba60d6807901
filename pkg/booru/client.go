package booru

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/go-resty/resty/v2"

	errs "konadl/pkg/errors"
	"konadl/pkg/logger"
	"konadl/pkg/metrics"
	"konadl/pkg/ratelimit"
	"konadl/pkg/retry"
)

// Operation labels used in logs and metrics
const (
	opList    = "list"
	opCount   = "count"
	opContent = "content"
)

// Credentials are the Moebooru login query parameters
type Credentials struct {
	Login        string
	PasswordHash string
}

// Options configures a Client
type Options struct {
	BaseURL   string
	UserAgent string
	Proxy     string
	Timeout   time.Duration

	// Listing governs page listings; Content governs counts and file bodies
	Listing *retry.Config
	Content *retry.Config

	Limiter     ratelimit.Limiter
	Credentials *Credentials
	Logger      logger.Logger
}

// Client talks to a Moebooru-style board
type Client struct {
	http    *resty.Client
	baseURL string
	timeout time.Duration
	listing *retry.Config
	content *retry.Config
	limiter ratelimit.Limiter
	creds   *Credentials
	logger  logger.Logger
}

// NewClient creates a board client. Retrying is done by the two retry
// policies, never by the HTTP layer itself.
func NewClient(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Listing == nil {
		opts.Listing = retry.DefaultConfig()
	}
	if opts.Content == nil {
		opts.Content = retry.DefaultConfig()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json, application/xml;q=0.9, */*;q=0.8")
	if opts.UserAgent != "" {
		httpClient.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.Proxy != "" {
		httpClient.SetProxy(opts.Proxy)
	}

	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		listing: opts.Listing,
		content: opts.Content,
		limiter: opts.Limiter,
		creds:   opts.Credentials,
		logger:  log,
	}
}

// BaseURL returns the board endpoint in use
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ContentBudget is the worst-case time a single FetchContent call may take,
// retries included.
func (c *Client) ContentBudget() time.Duration {
	return c.content.Budget(c.timeout)
}

// ListPage returns the posts of one listing page
func (c *Client) ListPage(ctx context.Context, tags string, page, limit int) ([]Post, error) {
	params := c.withCredentials(map[string]string{
		"tags":  tags,
		"page":  strconv.Itoa(page),
		"limit": strconv.Itoa(limit),
	})
	url := c.baseURL + "/post.json"

	return retry.DoWithResult(func() ([]Post, error) {
		resp, err := c.get(ctx, opList, url, params)
		if err != nil {
			return nil, err
		}

		var posts []Post
		if err := json.Unmarshal(resp.Body(), &posts); err != nil {
			return nil, errs.Wrap(errs.ErrorTypeParsing, resp.StatusCode(), fmt.Errorf("decode listing page %d: %w", page, err))
		}
		for i := range posts {
			posts[i].FileURL = absoluteURL(posts[i].FileURL, c.baseURL)
		}
		return posts, nil
	}, c.policy(ctx, c.listing, opList))
}

// TotalCount returns the number of posts matching tags, read from the
// count attribute of the XML listing root.
func (c *Client) TotalCount(ctx context.Context, tags string) (int, error) {
	params := c.withCredentials(map[string]string{
		"tags":  tags,
		"limit": "1",
	})
	url := c.baseURL + "/post.xml"

	return retry.DoWithResult(func() (int, error) {
		resp, err := c.get(ctx, opCount, url, params)
		if err != nil {
			return 0, err
		}

		doc, err := xmlquery.Parse(bytes.NewReader(resp.Body()))
		if err != nil {
			return 0, errs.Wrap(errs.ErrorTypeParsing, resp.StatusCode(), fmt.Errorf("parse count document: %w", err))
		}
		root := xmlquery.FindOne(doc, "/*")
		if root == nil {
			return 0, errs.New(errs.ErrorTypeParsing, resp.StatusCode(), "count document has no root element")
		}
		raw := root.SelectAttr("count")
		if raw == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, errs.Wrap(errs.ErrorTypeParsing, resp.StatusCode(), fmt.Errorf("invalid count %q: %w", raw, err))
		}
		return n, nil
	}, c.policy(ctx, c.content, opCount))
}

// FetchContent downloads the body at url
func (c *Client) FetchContent(ctx context.Context, url string) ([]byte, error) {
	return retry.DoWithResult(func() ([]byte, error) {
		resp, err := c.get(ctx, opContent, url, nil)
		if err != nil {
			return nil, err
		}
		return resp.Body(), nil
	}, c.policy(ctx, c.content, opContent))
}

func (c *Client) policy(ctx context.Context, base *retry.Config, op string) *retry.Config {
	cfg := base.WithContext(ctx)
	next := base.OnRetry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.ObserveRetry(op)
		if next != nil {
			next(attempt, err, delay)
		}
	}
	return cfg
}

func (c *Client) withCredentials(params map[string]string) map[string]string {
	if c.creds != nil && c.creds.Login != "" {
		params["login"] = c.creds.Login
		params["password_hash"] = c.creds.PasswordHash
	}
	return params
}

// get performs a single GET and maps every failure onto a typed error
func (c *Client) get(ctx context.Context, op, url string, params map[string]string) (*resty.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, url); err != nil {
			return nil, errs.Wrap(errs.ErrorTypeCanceled, 0, err)
		}
	}

	req := c.http.R().SetContext(ctx)
	if len(params) > 0 {
		req.SetQueryParams(params)
	}

	start := time.Now()
	resp, err := req.Get(url)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.ErrorTypeCanceled, 0, fmt.Errorf("GET %s: %w", url, ctx.Err()))
		}
		metrics.ObserveHTTPRequest(op, 0, elapsed)
		c.logger.DebugWithFields("request failed", map[string]interface{}{
			"url":   url,
			"error": err.Error(),
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, 0, fmt.Errorf("GET %s: %w", url, err))
	}

	metrics.ObserveHTTPRequest(op, resp.StatusCode(), elapsed)
	logger.LogRequest(c.logger, "GET", url, resp.StatusCode(), elapsed)

	if !resp.IsSuccess() {
		code := resp.StatusCode()
		return nil, errs.New(errs.TypeForStatus(code), code, fmt.Sprintf("GET %s returned %s", url, resp.Status()))
	}
	return resp, nil
}
