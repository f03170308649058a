package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultTokenURL is the Spotify client-credentials endpoint.
	DefaultTokenURL = "https://accounts.spotify.com/api/token"

	// tokenExpiryMargin treats a cached token as expired this long before it actually is.
	tokenExpiryMargin = 10 * time.Second
)

// AccessTokenProvider hands out bearer credentials for catalog requests.
type AccessTokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenProvider owns the client-credentials exchange and the cached token.
// It is safe for concurrent use and is meant to be built once per process.
type TokenProvider struct {
	source oauth2.TokenSource
}

// NewTokenProvider builds a provider for the given credentials. httpClient bounds
// the token exchange; nil falls back to http.DefaultClient.
func NewTokenProvider(clientID, clientSecret, tokenURL string, httpClient *http.Client) *TokenProvider {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	// The exchange is shared by every caller through the reuse cache, so it runs
	// on a process-lifetime context bounded only by httpClient's timeout.
	// AccessToken applies each caller's own deadline on top.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	fetch := tokenFetcher{ctx: ctx, cfg: cfg}

	return &TokenProvider{
		source: oauth2.ReuseTokenSourceWithExpiry(nil, fetch, tokenExpiryMargin),
	}
}

type tokenResult struct {
	tok *oauth2.Token
	err error
}

// AccessToken returns a cached token, refreshing it when it is within the expiry margin.
// It returns ctx.Err() as soon as ctx is done. An exchange already in flight
// keeps running and its token is cached for the next caller.
func (p *TokenProvider) AccessToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	done := make(chan tokenResult, 1)
	go func() {
		tok, err := p.source.Token()
		done <- tokenResult{tok: tok, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("%w: spotify auth failed: %v", ErrUpstreamUnavailable, res.err)
		}
		return res.tok.AccessToken, nil
	}
}

// tokenFetcher performs one uncached exchange per call. oauth2.TokenSource has
// no per-call context, so it carries the provider's own.
type tokenFetcher struct {
	ctx context.Context
	cfg *clientcredentials.Config
}

func (f tokenFetcher) Token() (*oauth2.Token, error) {
	return f.cfg.Token(f.ctx)
}
