package esi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/config"
	"github.com/bizkut/EveSalesNotification/internal/logger"
	"github.com/bizkut/EveSalesNotification/internal/model"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

// TokenProvider exchanges a stored refresh token for a usable access token.
// An invalid credential surfaces as ErrAuthExpired.
type TokenProvider interface {
	AccessToken(ctx context.Context, account model.Account) (string, error)
}

type Client struct {
	c       *resty.Client
	tokens  TokenProvider
	limiter ratelimit.Limiter

	logger logger.Logger
}

func NewClient(cfg config.ESIConfig, tokens TokenProvider, logger logger.Logger) *Client {
	client := resty.New().
		SetLogger(logger).
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", cfg.UserAgent).
		SetTimeout(30 * time.Second)

	return &Client{
		c:       client,
		tokens:  tokens,
		limiter: ratelimit.New(cfg.RatePerMinute, ratelimit.Per(time.Minute)),
		logger:  logger,
	}
}

// Page carries the change-detection metadata of one fetched response.
type Page struct {
	Body      []byte
	ETag      string
	ExpiresAt time.Time
	Pages     int
}

type request struct {
	path    string
	account *model.Account
	params  map[string]string
	etag    string
}

// get performs one rate-limited request. When an ETag is supplied it is sent
// as If-None-Match; a 304 answer returns ErrNotModified without a body.
func (c *Client) get(ctx context.Context, r request) (Page, error) {
	c.limiter.Take()

	req := c.c.R().SetContext(ctx)
	if len(r.params) > 0 {
		req.SetQueryParams(r.params)
	}
	if r.etag != "" {
		req.SetHeader("If-None-Match", r.etag)
	}
	if r.account != nil {
		token, err := c.tokens.AccessToken(ctx, *r.account)
		if err != nil {
			return Page{}, fmt.Errorf("can't get access token: %w", err)
		}
		req.SetAuthToken(token)
	}

	resp, err := req.Get(r.path)
	if err != nil {
		return Page{}, fmt.Errorf("can't request %s: %w", r.path, err)
	}
	defer resp.Body.Close()

	c.logger.Debugf("esi %s status %s took %s", r.path, resp.Status(), resp.Duration())

	switch {
	case resp.StatusCode() == http.StatusNotModified:
		return Page{ETag: r.etag, ExpiresAt: expiresAt(resp)}, ErrNotModified
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return Page{}, ErrAuthExpired
	case resp.IsError():
		return Page{}, &StatusError{Code: resp.StatusCode(), URL: r.path}
	}

	return Page{
		Body:      resp.Bytes(),
		ETag:      resp.Header().Get("ETag"),
		ExpiresAt: expiresAt(resp),
		Pages:     pageCount(resp),
	}, nil
}

func expiresAt(resp *resty.Response) time.Time {
	if v := resp.Header().Get("Expires"); v != "" {
		if t, err := time.Parse(http.TimeFormat, v); err == nil {
			return t
		}
	}
	return time.Now().UTC().Add(time.Minute)
}

func pageCount(resp *resty.Response) int {
	if v := resp.Header().Get("X-Pages"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 1
}
