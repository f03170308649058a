package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Spotify Web API root.
	DefaultBaseURL = "https://api.spotify.com/v1/"

	// trackPageSize is the fixed page size used when walking an album's tracks.
	trackPageSize = 50

	defaultTimeout = 10 * time.Second
)

// SpotifyClient implements Client against the Spotify Web API.
type SpotifyClient struct {
	baseURL    string
	tokens     AccessTokenProvider
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option customizes a SpotifyClient.
type Option func(*SpotifyClient)

// WithBaseURL points the client at a different API root.
func WithBaseURL(baseURL string) Option {
	return func(c *SpotifyClient) {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		c.baseURL = baseURL
	}
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *SpotifyClient) {
		c.httpClient = httpClient
	}
}

// WithRateLimit caps outbound API calls at rps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *SpotifyClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewSpotifyClient creates a Spotify client that authenticates through tokens.
func NewSpotifyClient(tokens AccessTokenProvider, opts ...Option) *SpotifyClient {
	c := &SpotifyClient{
		baseURL: DefaultBaseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Spotify API response structures
type spotifySearchResponse struct {
	Albums *struct {
		Items []spotifyAlbum `json:"items"`
	} `json:"albums,omitempty"`
}

type spotifyAlbum struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Artists     []spotifySimpleArtist `json:"artists"`
	ReleaseDate string                `json:"release_date"`
	TotalTracks *int                  `json:"total_tracks"`
	Images      []spotifyImage        `json:"images"`
}

type spotifyTrackPage struct {
	Items []spotifyTrack `json:"items"`
	Next  *string        `json:"next"`
}

type spotifyTrack struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DurationMS  *int   `json:"duration_ms"`
	TrackNumber *int   `json:"track_number"`
}

type spotifySimpleArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// doRequest performs an authenticated GET against the Spotify API.
func (c *SpotifyClient) doRequest(ctx context.Context, endpoint string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %v", ErrUpstreamUnavailable, err)
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	apiURL := c.baseURL + endpoint
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send request: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUpstreamUnavailable, err)
	}

	return nil
}

// SearchAlbums searches for albums on Spotify
func (c *SpotifyClient) SearchAlbums(ctx context.Context, query string, limit int) ([]Album, error) {
	params := url.Values{
		"q":     []string{query},
		"type":  []string{"album"},
		"limit": []string{strconv.Itoa(limit)},
	}

	var result spotifySearchResponse
	if err := c.doRequest(ctx, "search", params, &result); err != nil {
		return nil, err
	}

	if result.Albums == nil {
		return []Album{}, nil
	}

	albums := make([]Album, 0, len(result.Albums.Items))
	for _, sa := range result.Albums.Items {
		albums = append(albums, convertAlbum(sa))
	}
	return albums, nil
}

// GetAlbum retrieves album metadata by ID. A 404 from Spotify yields nil, nil.
func (c *SpotifyClient) GetAlbum(ctx context.Context, albumID string) (*Album, error) {
	var sa spotifyAlbum
	if err := c.doRequest(ctx, "albums/"+url.PathEscape(albumID), nil, &sa); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	album := convertAlbum(sa)
	return &album, nil
}

// GetAlbumTracks walks every page of the album's tracks.
func (c *SpotifyClient) GetAlbumTracks(ctx context.Context, albumID string) ([]Track, error) {
	endpoint := "albums/" + url.PathEscape(albumID) + "/tracks"
	tracks := []Track{}

	for offset := 0; ; offset += trackPageSize {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(trackPageSize))
		params.Set("offset", strconv.Itoa(offset))

		var page spotifyTrackPage
		if err := c.doRequest(ctx, endpoint, params, &page); err != nil {
			return nil, err
		}

		for _, st := range page.Items {
			tracks = append(tracks, Track{
				ID:          st.ID,
				Name:        st.Name,
				DurationMS:  st.DurationMS,
				TrackNumber: st.TrackNumber,
			})
		}

		if page.Next == nil || *page.Next == "" || len(page.Items) == 0 {
			break
		}
	}

	return tracks, nil
}

func convertAlbum(sa spotifyAlbum) Album {
	album := Album{
		ID:          sa.ID,
		Name:        sa.Name,
		TotalTracks: sa.TotalTracks,
	}
	if len(sa.Artists) > 0 {
		album.Artist = sa.Artists[0].Name
	}
	if len(sa.Images) > 0 && sa.Images[0].URL != "" {
		imageURL := sa.Images[0].URL
		album.ImageURL = &imageURL
	}
	if sa.ReleaseDate != "" {
		releaseDate := sa.ReleaseDate
		album.ReleaseDate = &releaseDate
	}
	return album
}
