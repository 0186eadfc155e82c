package intrasdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// ExchangeCodeForTokens trades an authorization code for a token pair. It
// does not touch the session store; committing the pair is left to the
// login flow that owns the code.
func (c *Client) ExchangeCodeForTokens(ctx context.Context, code string) (TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.creds.ClientID)
	form.Set("client_secret", c.creds.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", c.creds.RedirectURI)

	resp, err := c.gateway.PostForm(ctx, tokenPath, form)
	if err != nil {
		return TokenPair{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return TokenPair{}, newError(KindTokenExchangeFailed, resp.StatusCode, "token exchange failed", nil)
	}

	return decodeTokenPair(resp.Body)
}

// Refresh renews the token pair using the stored refresh token and reports
// whether a new pair is now in the store. It never returns an error: any
// failure means the session can no longer be renewed.
//
// Concurrent calls holding the same refresh token share a single request.
func (c *Client) Refresh(ctx context.Context) bool {
	refreshToken := c.store.RefreshToken()
	if refreshToken == "" {
		return false
	}

	// The shared call must not die with whichever caller happened to start it.
	shared := context.WithoutCancel(ctx)
	v, _, _ := c.refreshGroup.Do(refreshToken, func() (any, error) {
		return c.refresh(shared, refreshToken), nil
	})
	return v.(bool)
}

func (c *Client) refresh(ctx context.Context, refreshToken string) bool {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.creds.ClientID)
	form.Set("client_secret", c.creds.ClientSecret)
	form.Set("refresh_token", refreshToken)

	resp, err := c.gateway.PostForm(ctx, tokenPath, form)
	if err != nil {
		c.logger.Warn("token refresh failed", "err", err)
		return false
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("token refresh rejected", "status", resp.StatusCode)
		return false
	}

	pair, err := decodeTokenPair(resp.Body)
	if err != nil {
		c.logger.Warn("token refresh returned a malformed body", "err", err)
		return false
	}

	if !c.store.ReplaceTokensIf(refreshToken, pair) {
		c.logger.Info("session changed during token refresh, discarding new tokens")
		return false
	}
	c.logger.Debug("access token refreshed")
	return true
}

func decodeTokenPair(body []byte) (TokenPair, error) {
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return TokenPair{}, newError(KindMalformedResponse, 0, "malformed token response", err)
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		return TokenPair{}, newError(KindMalformedResponse, 0, "token response is missing access_token or refresh_token", nil)
	}
	return TokenPair{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}, nil
}
