/*
Package intrasdk is a client for the 42 intranet API and the OAuth2
authorization-code session built on top of it.

# Overview

The package is organised in layers:

  - Gateway: the HTTP layer. Sends one request, attaches a bearer token when
    given one, waits on a client-side rate limiter, never retries.
  - SessionStore: the in-memory session. Holds the token pair, the logged-in
    identity and profile, and guards writes with a per-flow epoch.
  - Executor: runs authenticated requests. A 401 triggers exactly one refresh
    and one retry.
  - Client: the intranet operations (authorization URL, token exchange,
    refresh, identity, profiles, projects).

Create a store and a client, send the user to the authorization URL, then
exchange the code the redirect brings back:

	store := intrasdk.NewSessionStore(nil, logger)
	client := intrasdk.NewClient(intrasdk.Config{
		Credentials: intrasdk.Credentials{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURI:  "http://localhost:8080/callback",
		},
	}, store)

	fmt.Println(client.BuildAuthorizationURL())

	epoch := store.BeginFlow()
	pair, err := client.ExchangeCodeForTokens(ctx, code)
	if err != nil {
		return err
	}
	if err := store.CommitTokens(epoch, pair); err != nil {
		return err // a newer login or a logout took over
	}

	profile, err := client.FetchDetailedProfile(ctx, "")

# Token Refresh

Intranet access tokens are opaque and short lived. The executor does not
try to predict expiry; it sends the request and reacts to a 401:

	request -> 401 -> Refresh -> retry once -> done

If the refresh fails the call returns KindSessionExpired and the stored
tokens are left alone. If the retry is also rejected the call returns
KindRequestFailed. Concurrent refreshes for the same refresh token are
coalesced into one token request.

# Error Handling

Every failure is an *Error carrying an ErrorKind. Use errors.Is with the
package sentinels or KindOf to branch:

	profile, err := client.FetchDetailedProfile(ctx, "jdoe")
	switch {
	case errors.Is(err, intrasdk.ErrUserNotFound):
		// show "no such user"
	case errors.Is(err, intrasdk.ErrSessionExpired):
		// force logout
	case err != nil:
		// generic failure
	}

# Persistence

Tokens live in memory unless the store is given a Persister. The
KeyringPersister keeps them in the operating system keychain:

	store := intrasdk.NewSessionStore(intrasdk.NewKeyringPersister("", ""), logger)
	if _, err := store.Restore(); err != nil {
		logger.Warn("could not restore session", "err", err)
	}
*/
package intrasdk
