package rankings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"trackrank/internal/catalog"
	"trackrank/internal/events"
	"trackrank/internal/logging"
	"trackrank/internal/ranking"
	"trackrank/internal/session"
	"trackrank/internal/store"
)

// ErrUnauthenticated is returned by operations that need a signed-in actor.
var ErrUnauthenticated = errors.New("authentication required")

const (
	StatusRanked   = "ranked"
	StatusNoResult = "no_result"

	SourceSaved   = "saved"
	SourceSession = "session"
)

// Store is the durable ranking tier.
type Store interface {
	SaveAlbum(ctx context.Context, userID int64, albumID string, meta store.AlbumMetadata, ranking *store.NewRanking) (store.SaveResult, error)
	LatestRanking(ctx context.Context, userID int64, albumID string) (store.Ranking, error)
}

// MetadataResolver supplies best-effort album display fields.
type MetadataResolver interface {
	Metadata(ctx context.Context, albumID string, fallback store.AlbumMetadata) store.AlbumMetadata
}

// Actor identifies who is acting. UserID is zero for anonymous actors.
type Actor struct {
	UserID    int64
	SessionID string
}

// Authenticated reports whether the actor is signed in.
func (a Actor) Authenticated() bool {
	return a.UserID > 0
}

// Submission is a client-derived order plus the comparisons behind it.
type Submission struct {
	OrderedIDs       []string
	Comparisons      json.RawMessage
	ComparisonsCount *int
	SaveAfterSubmit  bool
}

// Outcome is the result of an accepted submission. A failed durable write is
// reported through Persisted and PersistError rather than failing the submit.
type Outcome struct {
	Redirect     string `json:"redirect"`
	RankingID    *int64 `json:"ranking_id"`
	Persisted    bool   `json:"persisted"`
	PersistError string `json:"persist_error,omitempty"`
}

// Result is the display view of the ranking an actor should see for an album.
type Result struct {
	Status           string                 `json:"status"`
	Source           string                 `json:"source,omitempty"`
	Album            *catalog.Album         `json:"album,omitempty"`
	Tracks           []ranking.DisplayTrack `json:"tracks,omitempty"`
	ComparisonsCount int                    `json:"comparisons_count"`
	RankingID        *int64                 `json:"ranking_id,omitempty"`
	Dropped          int                    `json:"dropped"`
	RankURL          string                 `json:"rank_url,omitempty"`
}

// Service runs the ranking protocol.
type Service interface {
	Accept(ctx context.Context, albumID string, sub Submission) (store.NewRanking, error)
	Submit(ctx context.Context, actor Actor, albumID string, sub Submission) (Outcome, error)
	SaveRanking(ctx context.Context, actor Actor, albumID string, sub Submission) (store.Ranking, error)
	Result(ctx context.Context, actor Actor, albumID string) (Result, error)
}

type service struct {
	catalog   catalog.Client
	store     Store
	sessions  session.Store
	metadata  MetadataResolver
	publisher events.Publisher
}

// New wires the ranking Service.
func New(client catalog.Client, st Store, sessions session.Store, metadata MetadataResolver, publisher events.Publisher) Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &service{
		catalog:   client,
		store:     st,
		sessions:  sessions,
		metadata:  metadata,
		publisher: publisher,
	}
}

// ResultURL is where a client views the ranking for albumID.
func ResultURL(albumID string) string {
	return "/api/v1/rank/" + url.PathEscape(albumID) + "/result"
}

// RankURL is where a client starts ranking albumID.
func RankURL(albumID string) string {
	return "/api/v1/albums/" + url.PathEscape(albumID)
}

// Accept validates sub against the album's current tracklist, fetched fresh.
func (s *service) Accept(ctx context.Context, albumID string, sub Submission) (store.NewRanking, error) {
	if err := ctx.Err(); err != nil {
		return store.NewRanking{}, err
	}
	if len(sub.OrderedIDs) == 0 {
		return store.NewRanking{}, ranking.Malformed("ordered_ids must not be empty")
	}

	comparisons, count, err := comparisonsLog(sub.Comparisons, sub.ComparisonsCount)
	if err != nil {
		return store.NewRanking{}, err
	}

	tracks, err := s.catalog.GetAlbumTracks(ctx, albumID)
	if err != nil {
		return store.NewRanking{}, fmt.Errorf("fetch album tracks: %w", err)
	}

	if err := ranking.Validate(sub.OrderedIDs, catalog.TrackIDs(tracks)); err != nil {
		return store.NewRanking{}, err
	}

	return store.NewRanking{
		OrderedIDs:       append([]string(nil), sub.OrderedIDs...),
		Comparisons:      comparisons,
		ComparisonsCount: count,
	}, nil
}

func (s *service) Submit(ctx context.Context, actor Actor, albumID string, sub Submission) (Outcome, error) {
	accepted, err := s.Accept(ctx, albumID, sub)
	if err != nil {
		return Outcome{}, err
	}

	if actor.SessionID != "" {
		state := session.State{
			AlbumID:          albumID,
			OrderedIDs:       accepted.OrderedIDs,
			Comparisons:      accepted.Comparisons,
			ComparisonsCount: accepted.ComparisonsCount,
			Completed:        true,
		}
		if err := s.sessions.Put(ctx, actor.SessionID, albumID, state); err != nil {
			return Outcome{}, fmt.Errorf("store session ranking: %w", err)
		}
	}

	outcome := Outcome{Redirect: ResultURL(albumID)}

	if actor.Authenticated() && sub.SaveAfterSubmit {
		meta := s.metadata.Metadata(ctx, albumID, store.AlbumMetadata{})
		res, err := s.store.SaveAlbum(ctx, actor.UserID, albumID, meta, &accepted)
		if err != nil {
			logging.WithContext(ctx).Warn().
				Err(err).
				Str("album_id", albumID).
				Msg("ranking accepted but not persisted")
			outcome.PersistError = "ranking was accepted but could not be saved"
		} else {
			outcome.Persisted = true
			outcome.RankingID = &res.Ranking.ID
		}
	}

	s.publish(ctx, actor, albumID, accepted, outcome.RankingID)

	return outcome, nil
}

func (s *service) SaveRanking(ctx context.Context, actor Actor, albumID string, sub Submission) (store.Ranking, error) {
	if !actor.Authenticated() {
		return store.Ranking{}, ErrUnauthenticated
	}

	accepted, err := s.Accept(ctx, albumID, sub)
	if err != nil {
		return store.Ranking{}, err
	}

	meta := s.metadata.Metadata(ctx, albumID, store.AlbumMetadata{})
	res, err := s.store.SaveAlbum(ctx, actor.UserID, albumID, meta, &accepted)
	if err != nil {
		return store.Ranking{}, err
	}

	s.publish(ctx, actor, albumID, accepted, &res.Ranking.ID)

	return *res.Ranking, nil
}

// Result resolves which ranking to show: the latest durable ranking for a signed-in
// actor, then the session's, then a no-result outcome.
func (s *service) Result(ctx context.Context, actor Actor, albumID string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var (
		orderedIDs []string
		result     = Result{Status: StatusRanked}
		found      bool
	)

	if actor.Authenticated() {
		r, err := s.store.LatestRanking(ctx, actor.UserID, albumID)
		switch {
		case err == nil:
			found = true
			orderedIDs = r.OrderedIDs
			result.Source = SourceSaved
			result.ComparisonsCount = r.ComparisonsCount
			id := r.ID
			result.RankingID = &id
		case !errors.Is(err, store.ErrRankingNotFound):
			return Result{}, err
		}
	}

	if !found && actor.SessionID != "" {
		state, err := s.sessions.Get(ctx, actor.SessionID, albumID)
		switch {
		case err == nil:
			found = true
			orderedIDs = state.OrderedIDs
			result.Source = SourceSession
			result.ComparisonsCount = state.ComparisonsCount
		case !errors.Is(err, session.ErrNotFound):
			return Result{}, fmt.Errorf("load session ranking: %w", err)
		}
	}

	if !found {
		return Result{Status: StatusNoResult, RankURL: RankURL(albumID)}, nil
	}

	album, err := s.catalog.GetAlbum(ctx, albumID)
	if err != nil {
		return Result{}, fmt.Errorf("fetch album: %w", err)
	}
	if album == nil {
		return Result{}, catalog.ErrAlbumNotFound
	}

	tracks, err := s.catalog.GetAlbumTracks(ctx, albumID)
	if err != nil {
		return Result{}, fmt.Errorf("fetch album tracks: %w", err)
	}

	display, dropped := ranking.Assemble(orderedIDs, tracks)
	if dropped > 0 {
		logging.WithContext(ctx).Info().
			Str("album_id", albumID).
			Int("dropped", dropped).
			Msg("ranked tracks missing from catalog")
	}

	result.Album = album
	result.Tracks = display
	result.Dropped = dropped
	return result, nil
}

func (s *service) publish(ctx context.Context, actor Actor, albumID string, accepted store.NewRanking, rankingID *int64) {
	event := events.RankingAccepted{
		AlbumID:          albumID,
		SessionID:        actor.SessionID,
		RankingID:        rankingID,
		OrderedIDs:       accepted.OrderedIDs,
		Comparisons:      accepted.Comparisons,
		ComparisonsCount: accepted.ComparisonsCount,
		Timestamp:        time.Now().UTC(),
	}
	if actor.Authenticated() {
		uid := actor.UserID
		event.UserID = &uid
	}

	if err := s.publisher.PublishRankingAccepted(ctx, event); err != nil {
		logging.WithContext(ctx).Warn().
			Err(err).
			Str("album_id", albumID).
			Msg("publish ranking event failed")
	}
}

// comparisonsLog checks that raw is absent or a JSON list. A missing count
// defaults to the list length.
func comparisonsLog(raw json.RawMessage, count *int) (json.RawMessage, int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("[]")
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, 0, ranking.Malformed("comparisons must be a list")
	}

	n := len(entries)
	if count != nil {
		if *count < 0 {
			return nil, 0, ranking.Malformed("comparisons_count must not be negative")
		}
		n = *count
	}

	return json.RawMessage(append([]byte(nil), trimmed...)), n, nil
}
