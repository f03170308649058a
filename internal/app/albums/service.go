package albums

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"trackrank/internal/catalog"
	"trackrank/internal/logging"
	"trackrank/internal/ranking"
	"trackrank/internal/store"
)

const (
	// DefaultSearchLimit is used when the caller does not ask for a limit.
	DefaultSearchLimit = 8
	// MaxSearchLimit is the largest page the catalog accepts.
	MaxSearchLimit = 50
)

// Store captures the persistence needs for album workflows.
type Store interface {
	IsAlbumSaved(ctx context.Context, userID int64, albumID string) (bool, error)
}

// Track is a tracklist entry with a formatted duration.
type Track struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Duration    string `json:"duration"`
	DurationMS  *int   `json:"duration_ms"`
	TrackNumber *int   `json:"track_number"`
}

// Detail is an album with its tracklist in track_number order.
type Detail struct {
	Album  catalog.Album `json:"album"`
	Tracks []Track       `json:"tracks"`
	Saved  bool          `json:"saved"`
}

// Service coordinates album lookups against the catalog.
type Service interface {
	Search(ctx context.Context, query string, limit int) ([]catalog.Album, error)
	Detail(ctx context.Context, albumID string, userID int64) (Detail, error)
	Metadata(ctx context.Context, albumID string, fallback store.AlbumMetadata) store.AlbumMetadata
}

type service struct {
	catalog catalog.Client
	store   Store
}

// New constructs a Service backed by the catalog and the library store.
func New(client catalog.Client, st Store) Service {
	return &service{catalog: client, store: st}
}

func (s *service) Search(ctx context.Context, query string, limit int) ([]catalog.Album, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return []catalog.Album{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	return s.catalog.SearchAlbums(ctx, query, limit)
}

func (s *service) Detail(ctx context.Context, albumID string, userID int64) (Detail, error) {
	if err := ctx.Err(); err != nil {
		return Detail{}, err
	}

	album, err := s.catalog.GetAlbum(ctx, albumID)
	if err != nil {
		return Detail{}, fmt.Errorf("fetch album: %w", err)
	}
	if album == nil {
		return Detail{}, catalog.ErrAlbumNotFound
	}

	raw, err := s.catalog.GetAlbumTracks(ctx, albumID)
	if err != nil {
		return Detail{}, fmt.Errorf("fetch tracks: %w", err)
	}

	sorted := append([]catalog.Track(nil), raw...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return trackNumber(sorted[i]) < trackNumber(sorted[j])
	})

	tracks := make([]Track, 0, len(sorted))
	for _, t := range sorted {
		tracks = append(tracks, Track{
			ID:          t.ID,
			Name:        t.Name,
			Duration:    ranking.FormatDuration(t.DurationMS),
			DurationMS:  t.DurationMS,
			TrackNumber: t.TrackNumber,
		})
	}

	detail := Detail{Album: *album, Tracks: tracks}

	if userID > 0 {
		saved, err := s.store.IsAlbumSaved(ctx, userID, albumID)
		if err != nil {
			return Detail{}, err
		}
		detail.Saved = saved
	}

	return detail, nil
}

// Metadata resolves display fields for a saved album. The catalog is preferred;
// when it cannot answer, fallback is returned unchanged.
func (s *service) Metadata(ctx context.Context, albumID string, fallback store.AlbumMetadata) store.AlbumMetadata {
	album, err := s.catalog.GetAlbum(ctx, albumID)
	if err != nil || album == nil {
		logging.WithContext(ctx).Warn().
			Err(err).
			Str("album_id", albumID).
			Msg("album metadata lookup failed, using client metadata")
		return fallback
	}

	meta := store.AlbumMetadata{
		Name:       album.Name,
		Artist:     album.Artist,
		CoverImage: album.ImageURL,
	}
	if meta.Name == "" {
		meta.Name = fallback.Name
	}
	if meta.Artist == "" {
		meta.Artist = fallback.Artist
	}
	if meta.CoverImage == nil {
		meta.CoverImage = fallback.CoverImage
	}
	return meta
}

func trackNumber(t catalog.Track) int {
	if t.TrackNumber == nil {
		return 0
	}
	return *t.TrackNumber
}
