package intrasdk

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

type userSummary struct {
	ID    int    `json:"id"`
	Login string `json:"login"`
}

// FetchBasicIdentity loads /v2/me with an explicit access token. It is used
// right after the code exchange, before the pair is the session's, so it
// bypasses the executor and never refreshes.
func (c *Client) FetchBasicIdentity(ctx context.Context, accessToken string) (Identity, error) {
	resp, err := c.gateway.Get(ctx, mePath, nil, accessToken)
	if err != nil {
		return Identity{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, newError(KindIdentityFetchFailed, resp.StatusCode, "failed to fetch user identity", nil)
	}

	var u userResponse
	if err := resp.DecodeJSON(&u); err != nil {
		return Identity{}, err
	}
	if u.ID == 0 || u.Login == "" {
		return Identity{}, newError(KindMalformedResponse, resp.StatusCode, "identity is missing id or login", nil)
	}
	return u.identity(), nil
}

// FetchDetailedProfile returns the profile of login, or of the logged-in
// user when login is empty. Looking up another user takes two calls: a
// filtered search for the login, then the detail endpoint for the first
// match.
func (c *Client) FetchDetailedProfile(ctx context.Context, login string) (Profile, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return c.fetchProfile(ctx, mePath)
	}

	userID, err := c.lookupUserID(ctx, login)
	if err != nil {
		return Profile{}, err
	}
	return c.fetchProfile(ctx, usersPath+"/"+strconv.Itoa(userID))
}

func (c *Client) lookupUserID(ctx context.Context, login string) (int, error) {
	query := url.Values{}
	query.Set("filter[login]", strings.ToLower(login))

	resp, err := c.executor.Get(ctx, usersPath, query)
	if err != nil {
		return 0, notFoundOn404(err)
	}

	var users []userSummary
	if err := resp.DecodeJSON(&users); err != nil {
		return 0, err
	}
	if len(users) == 0 || users[0].ID == 0 {
		return 0, newError(KindUserNotFound, 0, "user not found", nil)
	}
	return users[0].ID, nil
}

func (c *Client) fetchProfile(ctx context.Context, path string) (Profile, error) {
	resp, err := c.executor.Get(ctx, path, nil)
	if err != nil {
		return Profile{}, notFoundOn404(err)
	}
	return DecodeProfile(resp.Body)
}

// notFoundOn404 maps a 404 from the executor to KindUserNotFound.
func notFoundOn404(err error) error {
	if KindOf(err) == KindRequestFailed && StatusOf(err) == http.StatusNotFound {
		return newError(KindUserNotFound, http.StatusNotFound, "user not found", err)
	}
	return err
}
