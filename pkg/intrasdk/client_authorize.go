package intrasdk

import (
	"errors"
	"net/url"
)

// BuildAuthorizationURL returns the URL the user's browser should open to
// start the authorization-code flow. Parameters are encoded in sorted key
// order: client_id, redirect_uri, response_type.
func (c *Client) BuildAuthorizationURL() string {
	params := url.Values{}
	params.Set("client_id", c.creds.ClientID)
	params.Set("redirect_uri", c.creds.RedirectURI)
	params.Set("response_type", "code")

	return c.authorizeURL + "?" + params.Encode()
}

// ParseAuthorizationCallback extracts the authorization code from the
// redirect URL the browser landed on. An error parameter is reported as a
// *CallbackError.
func ParseAuthorizationCallback(callbackURL string) (string, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", err
	}
	return CodeFromQuery(u.Query())
}

// CodeFromQuery is ParseAuthorizationCallback for an already parsed query.
func CodeFromQuery(q url.Values) (string, error) {
	if code := q.Get("error"); code != "" {
		return "", &CallbackError{Code: code, Description: q.Get("error_description")}
	}

	code := q.Get("code")
	if code == "" {
		return "", errors.New("authorization code not found in callback")
	}
	return code, nil
}
