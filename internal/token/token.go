package token

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/config"
	"github.com/bizkut/EveSalesNotification/internal/esi"
	"github.com/bizkut/EveSalesNotification/internal/logger"
	"github.com/bizkut/EveSalesNotification/internal/model"
	gocache "github.com/patrickmn/go-cache"
	"resty.dev/v3"
)

// Exchanger trades refresh tokens for access tokens against the EVE SSO,
// caching them until shortly before expiry.
type Exchanger struct {
	c     *resty.Client
	cfg   config.ESIConfig
	cache *gocache.Cache

	logger logger.Logger
}

const _expiryMargin = 60 * time.Second

func NewExchanger(cfg config.ESIConfig, logger logger.Logger) *Exchanger {
	return &Exchanger{
		c:      resty.New().SetLogger(logger).SetTimeout(15 * time.Second),
		cfg:    cfg,
		cache:  gocache.New(gocache.NoExpiration, 5*time.Minute),
		logger: logger,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type tokenError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e *Exchanger) cacheKey(accountID int64) string {
	return fmt.Sprintf("access_token:%d", accountID)
}

// AccessToken returns a valid access token for the account. An SSO rejection
// of the refresh token surfaces as esi.ErrAuthExpired.
func (e *Exchanger) AccessToken(ctx context.Context, account model.Account) (string, error) {
	if v, ok := e.cache.Get(e.cacheKey(account.ID)); ok {
		return v.(string), nil
	}

	req := e.c.R().
		SetContext(ctx).
		SetBasicAuth(e.cfg.ClientID, e.cfg.ClientSecret).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": account.RefreshToken,
		}).
		SetResult(&tokenResponse{}).
		SetError(&tokenError{})

	resp, err := req.Post(e.cfg.SSOTokenURL)
	if err != nil {
		return "", fmt.Errorf("can't request access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusUnauthorized {
		ssoErr := resp.Error().(*tokenError)
		e.logger.Warnf("sso rejected refresh token for account %d: %s", account.ID, ssoErr.ErrorDescription)
		return "", esi.ErrAuthExpired
	}
	if resp.IsError() {
		return "", fmt.Errorf("sso token request failed: %s", resp.Status())
	}

	tok := resp.Result().(*tokenResponse)
	ttl := time.Duration(tok.ExpiresIn)*time.Second - _expiryMargin
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	e.cache.Set(e.cacheKey(account.ID), tok.AccessToken, ttl)

	return tok.AccessToken, nil
}

// Forget drops a cached token, forcing a fresh exchange on the next call.
// Used after a credential refresh so polling resumes immediately.
func (e *Exchanger) Forget(accountID int64) {
	e.cache.Delete(e.cacheKey(accountID))
}
