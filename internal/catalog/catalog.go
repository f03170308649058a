// Package catalog fetches album metadata and tracklists from the external music catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable wraps every catalog network, auth, or non-success failure.
	ErrUpstreamUnavailable = errors.New("catalog unavailable")
	// ErrAlbumNotFound indicates the catalog has no album with the requested id.
	ErrAlbumNotFound = errors.New("album not found")
)

// Album is the normalized album record returned by the catalog.
type Album struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Artist      string  `json:"artist"`
	ImageURL    *string `json:"image_url"`
	ReleaseDate *string `json:"release_date"`
	TotalTracks *int    `json:"total_tracks"`
}

// Track is the normalized track record returned by the catalog.
type Track struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DurationMS  *int   `json:"duration_ms"`
	TrackNumber *int   `json:"track_number"`
}

// Client is the read-only view of the catalog consumed by the rest of the system.
type Client interface {
	// SearchAlbums returns at most limit albums matching query.
	SearchAlbums(ctx context.Context, query string, limit int) ([]Album, error)

	// GetAlbum returns nil without error when the catalog has no such album.
	GetAlbum(ctx context.Context, albumID string) (*Album, error)

	// GetAlbumTracks returns every track of the album in fetch order.
	GetAlbumTracks(ctx context.Context, albumID string) ([]Track, error)
}

// StatusError carries a non-success upstream response.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("spotify api error: %s - %s", e.Status, e.Body)
}

// Is reports StatusError as an ErrUpstreamUnavailable.
func (e *StatusError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// TrackIDs returns the id set of tracks.
func TrackIDs(tracks []Track) map[string]struct{} {
	ids := make(map[string]struct{}, len(tracks))
	for _, t := range tracks {
		ids[t.ID] = struct{}{}
	}
	return ids
}
