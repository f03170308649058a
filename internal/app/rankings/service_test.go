package rankings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"trackrank/internal/catalog"
	"trackrank/internal/events"
	"trackrank/internal/ranking"
	"trackrank/internal/session"
	"trackrank/internal/store"
)

func intPtr(v int) *int { return &v }

type fakeCatalog struct {
	album      *catalog.Album
	albumErr   error
	tracks     []catalog.Track
	tracksErr  error
	trackCalls int
}

func (f *fakeCatalog) SearchAlbums(context.Context, string, int) ([]catalog.Album, error) {
	return nil, nil
}

func (f *fakeCatalog) GetAlbum(context.Context, string) (*catalog.Album, error) {
	return f.album, f.albumErr
}

func (f *fakeCatalog) GetAlbumTracks(context.Context, string) ([]catalog.Track, error) {
	f.trackCalls++
	return f.tracks, f.tracksErr
}

type fakeStore struct {
	saveErr  error
	saves    []store.NewRanking
	latest   *store.Ranking
	nextID   int64
	latestFn func() (store.Ranking, error)
}

func (f *fakeStore) SaveAlbum(_ context.Context, userID int64, albumID string, _ store.AlbumMetadata, r *store.NewRanking) (store.SaveResult, error) {
	if f.saveErr != nil {
		return store.SaveResult{}, f.saveErr
	}
	f.nextID++
	res := store.SaveResult{Album: store.SavedAlbum{ID: 1, UserID: userID, AlbumID: albumID}}
	if r != nil {
		f.saves = append(f.saves, *r)
		saved := store.Ranking{
			ID:               f.nextID,
			UserID:           &userID,
			AlbumID:          albumID,
			OrderedIDs:       r.OrderedIDs,
			ComparisonsCount: r.ComparisonsCount,
		}
		f.latest = &saved
		res.Ranking = &saved
	}
	return res, nil
}

func (f *fakeStore) LatestRanking(context.Context, int64, string) (store.Ranking, error) {
	if f.latestFn != nil {
		return f.latestFn()
	}
	if f.latest == nil {
		return store.Ranking{}, store.ErrRankingNotFound
	}
	return *f.latest, nil
}

type fakeMetadata struct{}

func (fakeMetadata) Metadata(_ context.Context, _ string, fallback store.AlbumMetadata) store.AlbumMetadata {
	fallback.Name = "Blue Lines"
	return fallback
}

type recordingPublisher struct {
	events []events.RankingAccepted
	err    error
}

func (p *recordingPublisher) PublishRankingAccepted(_ context.Context, e events.RankingAccepted) error {
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func threeTracks() *fakeCatalog {
	return &fakeCatalog{
		album: &catalog.Album{ID: "alb1", Name: "Blue Lines", Artist: "Massive Attack"},
		tracks: []catalog.Track{
			{ID: "t1", Name: "Safe from Harm", DurationMS: intPtr(318000), TrackNumber: intPtr(1)},
			{ID: "t2", Name: "One Love", DurationMS: intPtr(288000), TrackNumber: intPtr(2)},
			{ID: "t3", Name: "Blue Lines", DurationMS: intPtr(261000), TrackNumber: intPtr(3)},
		},
	}
}

func newService(cat *fakeCatalog, st *fakeStore, pub events.Publisher) (Service, *session.MemoryStore) {
	sessions := session.NewMemoryStore(time.Hour)
	return New(cat, st, sessions, fakeMetadata{}, pub), sessions
}

func TestAcceptRejections(t *testing.T) {
	tests := []struct {
		name    string
		sub     Submission
		want    error
		fetches int
	}{
		{name: "empty order", sub: Submission{}, want: ranking.ErrMalformedPayload, fetches: 0},
		{name: "comparisons not a list", sub: Submission{OrderedIDs: []string{"t1"}, Comparisons: json.RawMessage(`{"a":1}`)}, want: ranking.ErrMalformedPayload, fetches: 0},
		{name: "negative count", sub: Submission{OrderedIDs: []string{"t1"}, ComparisonsCount: intPtr(-1)}, want: ranking.ErrMalformedPayload, fetches: 0},
		{name: "too short", sub: Submission{OrderedIDs: []string{"t1", "t2"}}, want: ranking.ErrCountMismatch, fetches: 1},
		{name: "duplicate", sub: Submission{OrderedIDs: []string{"t1", "t1", "t2"}}, want: ranking.ErrDuplicateTrackID, fetches: 1},
		{name: "unknown", sub: Submission{OrderedIDs: []string{"t1", "t2", "zz"}}, want: ranking.ErrUnknownTrackID, fetches: 1},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cat := threeTracks()
			svc, _ := newService(cat, &fakeStore{}, nil)

			_, err := svc.Accept(context.Background(), "alb1", tc.sub)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !ranking.IsRejection(err) {
				t.Fatalf("expected a rejection, got %T", err)
			}
			if cat.trackCalls != tc.fetches {
				t.Fatalf("expected %d catalog fetches, got %d", tc.fetches, cat.trackCalls)
			}
		})
	}
}

func TestAcceptUpstreamFailure(t *testing.T) {
	cat := threeTracks()
	cat.tracksErr = fmt.Errorf("%w: timeout", catalog.ErrUpstreamUnavailable)
	svc, _ := newService(cat, &fakeStore{}, nil)

	_, err := svc.Accept(context.Background(), "alb1", Submission{OrderedIDs: []string{"t1", "t2", "t3"}})
	if !errors.Is(err, catalog.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if ranking.IsRejection(err) {
		t.Fatalf("upstream failure must not be reported as a rejection")
	}
}

func TestAcceptComparisonsCount(t *testing.T) {
	svc, _ := newService(threeTracks(), &fakeStore{}, nil)

	accepted, err := svc.Accept(context.Background(), "alb1", Submission{
		OrderedIDs:  []string{"t3", "t1", "t2"},
		Comparisons: json.RawMessage(`[{"a":"t1","b":"t3","winner":"t3"},{"a":"t1","b":"t2","winner":"t1"}]`),
	})
	if err != nil {
		t.Fatalf("Accept error: %v", err)
	}
	if accepted.ComparisonsCount != 2 {
		t.Fatalf("expected count to default to log length, got %d", accepted.ComparisonsCount)
	}

	accepted, err = svc.Accept(context.Background(), "alb1", Submission{
		OrderedIDs:       []string{"t3", "t1", "t2"},
		ComparisonsCount: intPtr(5),
	})
	if err != nil {
		t.Fatalf("Accept error: %v", err)
	}
	if accepted.ComparisonsCount != 5 || string(accepted.Comparisons) != "[]" {
		t.Fatalf("unexpected accepted ranking %+v", accepted)
	}
}

func TestSubmitAnonymousThenResult(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newService(threeTracks(), &fakeStore{}, pub)
	actor := Actor{SessionID: "sess-1"}

	outcome, err := svc.Submit(context.Background(), actor, "alb1", Submission{
		OrderedIDs:       []string{"t3", "t1", "t2"},
		ComparisonsCount: intPtr(3),
		SaveAfterSubmit:  true,
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if outcome.Redirect != "/api/v1/rank/alb1/result" {
		t.Fatalf("unexpected redirect %q", outcome.Redirect)
	}
	if outcome.Persisted || outcome.RankingID != nil {
		t.Fatalf("anonymous submit must not persist: %+v", outcome)
	}
	if len(pub.events) != 1 || pub.events[0].UserID != nil || pub.events[0].SessionID != "sess-1" {
		t.Fatalf("unexpected events %+v", pub.events)
	}

	result, err := svc.Result(context.Background(), actor, "alb1")
	if err != nil {
		t.Fatalf("Result error: %v", err)
	}
	if result.Status != StatusRanked || result.Source != SourceSession {
		t.Fatalf("unexpected result %+v", result)
	}

	want := []struct {
		rank int
		name string
		dur  string
	}{
		{1, "Blue Lines", "4:21"},
		{2, "Safe from Harm", "5:18"},
		{3, "One Love", "4:48"},
	}
	if len(result.Tracks) != len(want) {
		t.Fatalf("expected %d tracks, got %d", len(want), len(result.Tracks))
	}
	for i, w := range want {
		got := result.Tracks[i]
		if got.Rank != w.rank || got.Name != w.name || got.Duration != w.dur {
			t.Fatalf("track %d: expected %+v, got %+v", i, w, got)
		}
	}
	if result.ComparisonsCount != 3 || result.Dropped != 0 {
		t.Fatalf("unexpected counts %+v", result)
	}
}

func TestSubmitRejectedLeavesSessionUntouched(t *testing.T) {
	pub := &recordingPublisher{}
	svc, sessions := newService(threeTracks(), &fakeStore{}, pub)
	actor := Actor{SessionID: "sess-1"}

	if _, err := svc.Submit(context.Background(), actor, "alb1", Submission{OrderedIDs: []string{"t1", "t2"}}); err == nil {
		t.Fatal("expected rejection")
	}
	if _, err := sessions.Get(context.Background(), "sess-1", "alb1"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected no session state, got %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatalf("rejected submissions must not be published")
	}
}

func TestSubmitAuthenticatedPersists(t *testing.T) {
	st := &fakeStore{}
	svc, _ := newService(threeTracks(), st, nil)
	actor := Actor{UserID: 7, SessionID: "sess-1"}

	outcome, err := svc.Submit(context.Background(), actor, "alb1", Submission{
		OrderedIDs:      []string{"t2", "t3", "t1"},
		SaveAfterSubmit: true,
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if !outcome.Persisted || outcome.RankingID == nil || *outcome.RankingID != 1 {
		t.Fatalf("expected persisted ranking, got %+v", outcome)
	}
	if len(st.saves) != 1 {
		t.Fatalf("expected one durable write, got %d", len(st.saves))
	}

	outcome, err = svc.Submit(context.Background(), actor, "alb1", Submission{OrderedIDs: []string{"t2", "t3", "t1"}})
	if err != nil || outcome.Persisted || len(st.saves) != 1 {
		t.Fatalf("submit without save flag must stay session-only: %+v %v", outcome, err)
	}
}

func TestSubmitPersistFailureIsReported(t *testing.T) {
	svc, sessions := newService(threeTracks(), &fakeStore{saveErr: errors.New("db down")}, nil)
	actor := Actor{UserID: 7, SessionID: "sess-1"}

	outcome, err := svc.Submit(context.Background(), actor, "alb1", Submission{
		OrderedIDs:      []string{"t1", "t2", "t3"},
		SaveAfterSubmit: true,
	})
	if err != nil {
		t.Fatalf("persist failure must not fail the submit: %v", err)
	}
	if outcome.Persisted || outcome.PersistError == "" {
		t.Fatalf("expected persist failure to be reported, got %+v", outcome)
	}
	if _, err := sessions.Get(context.Background(), "sess-1", "alb1"); err != nil {
		t.Fatalf("session state should survive a persist failure: %v", err)
	}
}

func TestSubmitPublishFailureIgnored(t *testing.T) {
	svc, _ := newService(threeTracks(), &fakeStore{}, &recordingPublisher{err: errors.New("broker down")})
	if _, err := svc.Submit(context.Background(), Actor{SessionID: "s"}, "alb1", Submission{OrderedIDs: []string{"t1", "t2", "t3"}}); err != nil {
		t.Fatalf("publish failure must not fail the submit: %v", err)
	}
}

func TestSaveRanking(t *testing.T) {
	st := &fakeStore{}
	svc, _ := newService(threeTracks(), st, nil)

	if _, err := svc.SaveRanking(context.Background(), Actor{SessionID: "s"}, "alb1", Submission{OrderedIDs: []string{"t1", "t2", "t3"}}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	if _, err := svc.SaveRanking(context.Background(), Actor{UserID: 7}, "alb1", Submission{OrderedIDs: []string{"t1", "t2"}}); !errors.Is(err, ranking.ErrCountMismatch) {
		t.Fatalf("expected ErrCountMismatch, got %v", err)
	}
	if len(st.saves) != 0 {
		t.Fatalf("rejected ranking must not be written")
	}

	saved, err := svc.SaveRanking(context.Background(), Actor{UserID: 7}, "alb1", Submission{OrderedIDs: []string{"t3", "t2", "t1"}})
	if err != nil {
		t.Fatalf("SaveRanking error: %v", err)
	}
	if saved.ID != 1 || fmt.Sprint(saved.OrderedIDs) != "[t3 t2 t1]" {
		t.Fatalf("unexpected ranking %+v", saved)
	}
}

func TestResultPrefersDurableRanking(t *testing.T) {
	st := &fakeStore{latest: &store.Ranking{ID: 42, AlbumID: "alb1", OrderedIDs: []string{"t1", "t2", "t3"}, ComparisonsCount: 2}}
	svc, sessions := newService(threeTracks(), st, nil)

	if err := sessions.Put(context.Background(), "sess-1", "alb1", session.State{
		AlbumID:    "alb1",
		OrderedIDs: []string{"t3", "t2", "t1"},
		Completed:  true,
	}); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	result, err := svc.Result(context.Background(), Actor{UserID: 7, SessionID: "sess-1"}, "alb1")
	if err != nil {
		t.Fatalf("Result error: %v", err)
	}
	if result.Source != SourceSaved || result.RankingID == nil || *result.RankingID != 42 {
		t.Fatalf("expected durable ranking, got %+v", result)
	}
	if result.Tracks[0].ID != "t1" {
		t.Fatalf("expected durable order, got %+v", result.Tracks)
	}

	result, err = svc.Result(context.Background(), Actor{SessionID: "sess-1"}, "alb1")
	if err != nil || result.Source != SourceSession || result.Tracks[0].ID != "t3" {
		t.Fatalf("anonymous actor should see session order, got %+v %v", result, err)
	}
}

func TestResultNoRanking(t *testing.T) {
	svc, _ := newService(threeTracks(), &fakeStore{}, nil)

	result, err := svc.Result(context.Background(), Actor{UserID: 7, SessionID: "sess-1"}, "alb1")
	if err != nil {
		t.Fatalf("Result error: %v", err)
	}
	if result.Status != StatusNoResult || result.RankURL != "/api/v1/albums/alb1" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestResultStoreError(t *testing.T) {
	st := &fakeStore{latestFn: func() (store.Ranking, error) { return store.Ranking{}, errors.New("db down") }}
	svc, _ := newService(threeTracks(), st, nil)

	if _, err := svc.Result(context.Background(), Actor{UserID: 7}, "alb1"); err == nil {
		t.Fatal("expected store error")
	}
}

func TestResultDropsRemovedTracks(t *testing.T) {
	cat := threeTracks()
	svc, sessions := newService(cat, &fakeStore{}, nil)

	if err := sessions.Put(context.Background(), "s", "alb1", session.State{
		AlbumID:    "alb1",
		OrderedIDs: []string{"t3", "gone", "t1", "t2"},
	}); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	result, err := svc.Result(context.Background(), Actor{SessionID: "s"}, "alb1")
	if err != nil {
		t.Fatalf("Result error: %v", err)
	}
	if result.Dropped != 1 || len(result.Tracks) != 3 || result.Tracks[1].ID != "t1" || result.Tracks[1].Rank != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestResultCatalogFailures(t *testing.T) {
	cat := threeTracks()
	svc, sessions := newService(cat, &fakeStore{}, nil)
	if err := sessions.Put(context.Background(), "s", "alb1", session.State{OrderedIDs: []string{"t1", "t2", "t3"}}); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	cat.album = nil
	if _, err := svc.Result(context.Background(), Actor{SessionID: "s"}, "alb1"); !errors.Is(err, catalog.ErrAlbumNotFound) {
		t.Fatalf("expected ErrAlbumNotFound, got %v", err)
	}

	cat.album = &catalog.Album{ID: "alb1"}
	cat.tracksErr = fmt.Errorf("%w: 503", catalog.ErrUpstreamUnavailable)
	if _, err := svc.Result(context.Background(), Actor{SessionID: "s"}, "alb1"); !errors.Is(err, catalog.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
