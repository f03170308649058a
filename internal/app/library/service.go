package library

import (
	"context"

	"trackrank/internal/app/rankings"
	"trackrank/internal/store"
)

// Store is the persistence behaviour required by the library service.
type Store interface {
	SaveAlbum(ctx context.Context, userID int64, albumID string, meta store.AlbumMetadata, ranking *store.NewRanking) (store.SaveResult, error)
	DeleteSavedAlbum(ctx context.Context, userID int64, albumID string) error
	ListLibrary(ctx context.Context, userID int64) ([]store.LibraryEntry, error)
}

// Acceptor validates an optional ranking attached to a save.
type Acceptor interface {
	Accept(ctx context.Context, albumID string, sub rankings.Submission) (store.NewRanking, error)
}

// SaveRequest carries client-supplied fallback metadata and an optional ranking.
type SaveRequest struct {
	Fallback   store.AlbumMetadata
	Submission *rankings.Submission
}

// Service exposes the user library.
type Service interface {
	Save(ctx context.Context, userID int64, albumID string, req SaveRequest) (store.SaveResult, error)
	Unsave(ctx context.Context, userID int64, albumID string) error
	List(ctx context.Context, userID int64) ([]store.LibraryEntry, error)
}

type service struct {
	store    Store
	accept   Acceptor
	metadata rankings.MetadataResolver
}

// New constructs a library Service.
func New(st Store, accept Acceptor, metadata rankings.MetadataResolver) Service {
	return &service{store: st, accept: accept, metadata: metadata}
}

// Save validates any attached ranking before touching storage, then upserts the
// library entry and the ranking together.
func (s *service) Save(ctx context.Context, userID int64, albumID string, req SaveRequest) (store.SaveResult, error) {
	if userID <= 0 {
		return store.SaveResult{}, rankings.ErrUnauthenticated
	}

	var accepted *store.NewRanking
	if req.Submission != nil {
		r, err := s.accept.Accept(ctx, albumID, *req.Submission)
		if err != nil {
			return store.SaveResult{}, err
		}
		accepted = &r
	}

	meta := s.metadata.Metadata(ctx, albumID, req.Fallback)
	return s.store.SaveAlbum(ctx, userID, albumID, meta, accepted)
}

func (s *service) Unsave(ctx context.Context, userID int64, albumID string) error {
	if userID <= 0 {
		return rankings.ErrUnauthenticated
	}
	return s.store.DeleteSavedAlbum(ctx, userID, albumID)
}

func (s *service) List(ctx context.Context, userID int64) ([]store.LibraryEntry, error) {
	if userID <= 0 {
		return nil, rankings.ErrUnauthenticated
	}
	return s.store.ListLibrary(ctx, userID)
}
