package library

import (
	"context"
	"errors"
	"testing"

	"trackrank/internal/app/rankings"
	"trackrank/internal/ranking"
	"trackrank/internal/store"
)

type fakeStore struct {
	saves     int
	lastMeta  store.AlbumMetadata
	lastRank  *store.NewRanking
	deleteErr error
	entries   []store.LibraryEntry
}

func (f *fakeStore) SaveAlbum(_ context.Context, userID int64, albumID string, meta store.AlbumMetadata, r *store.NewRanking) (store.SaveResult, error) {
	f.saves++
	f.lastMeta = meta
	f.lastRank = r
	res := store.SaveResult{
		Album:   store.SavedAlbum{ID: 11, UserID: userID, AlbumID: albumID, AlbumName: meta.Name},
		Created: f.saves == 1,
	}
	if r != nil {
		res.Ranking = &store.Ranking{ID: 5, AlbumID: albumID, OrderedIDs: r.OrderedIDs}
	}
	return res, nil
}

func (f *fakeStore) DeleteSavedAlbum(context.Context, int64, string) error {
	return f.deleteErr
}

func (f *fakeStore) ListLibrary(context.Context, int64) ([]store.LibraryEntry, error) {
	return f.entries, nil
}

type fakeAcceptor struct {
	err   error
	calls int
}

func (f *fakeAcceptor) Accept(_ context.Context, _ string, sub rankings.Submission) (store.NewRanking, error) {
	f.calls++
	if f.err != nil {
		return store.NewRanking{}, f.err
	}
	return store.NewRanking{OrderedIDs: sub.OrderedIDs, Comparisons: []byte("[]")}, nil
}

type passthroughMetadata struct{}

func (passthroughMetadata) Metadata(_ context.Context, _ string, fallback store.AlbumMetadata) store.AlbumMetadata {
	return fallback
}

func TestSaveWithoutRanking(t *testing.T) {
	st := &fakeStore{}
	acc := &fakeAcceptor{}
	svc := New(st, acc, passthroughMetadata{})

	res, err := svc.Save(context.Background(), 3, "alb1", SaveRequest{Fallback: store.AlbumMetadata{Name: "Mezzanine"}})
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if !res.Created || res.Ranking != nil || acc.calls != 0 {
		t.Fatalf("unexpected result %+v (accept calls %d)", res, acc.calls)
	}
	if st.lastMeta.Name != "Mezzanine" {
		t.Fatalf("expected fallback metadata, got %+v", st.lastMeta)
	}

	res, err = svc.Save(context.Background(), 3, "alb1", SaveRequest{})
	if err != nil || res.Created {
		t.Fatalf("second save should update in place: %+v %v", res, err)
	}
}

func TestSaveWithRanking(t *testing.T) {
	st := &fakeStore{}
	svc := New(st, &fakeAcceptor{}, passthroughMetadata{})

	res, err := svc.Save(context.Background(), 3, "alb1", SaveRequest{
		Submission: &rankings.Submission{OrderedIDs: []string{"t2", "t1"}},
	})
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if res.Ranking == nil || res.Ranking.ID != 5 || st.lastRank == nil {
		t.Fatalf("expected ranking to be saved with the album, got %+v", res)
	}
}

func TestSaveRejectedRankingWritesNothing(t *testing.T) {
	st := &fakeStore{}
	rejection := &ranking.RejectionError{Reason: ranking.ReasonCountMismatch, Expected: 3, Got: 2}
	svc := New(st, &fakeAcceptor{err: rejection}, passthroughMetadata{})

	_, err := svc.Save(context.Background(), 3, "alb1", SaveRequest{
		Submission: &rankings.Submission{OrderedIDs: []string{"t2", "t1"}},
	})
	if !errors.Is(err, ranking.ErrCountMismatch) {
		t.Fatalf("expected ErrCountMismatch, got %v", err)
	}
	if st.saves != 0 {
		t.Fatalf("rejected save must not reach the store")
	}
}

func TestRequiresUser(t *testing.T) {
	svc := New(&fakeStore{}, &fakeAcceptor{}, passthroughMetadata{})

	if _, err := svc.Save(context.Background(), 0, "alb1", SaveRequest{}); !errors.Is(err, rankings.ErrUnauthenticated) {
		t.Fatalf("Save: expected ErrUnauthenticated, got %v", err)
	}
	if err := svc.Unsave(context.Background(), 0, "alb1"); !errors.Is(err, rankings.ErrUnauthenticated) {
		t.Fatalf("Unsave: expected ErrUnauthenticated, got %v", err)
	}
	if _, err := svc.List(context.Background(), 0); !errors.Is(err, rankings.ErrUnauthenticated) {
		t.Fatalf("List: expected ErrUnauthenticated, got %v", err)
	}
}

func TestUnsaveAndList(t *testing.T) {
	st := &fakeStore{deleteErr: store.ErrSavedAlbumNotFound}
	svc := New(st, &fakeAcceptor{}, passthroughMetadata{})

	if err := svc.Unsave(context.Background(), 3, "alb1"); !errors.Is(err, store.ErrSavedAlbumNotFound) {
		t.Fatalf("expected ErrSavedAlbumNotFound, got %v", err)
	}

	st.entries = []store.LibraryEntry{{Album: store.SavedAlbum{ID: 1, AlbumID: "alb1"}}}
	entries, err := svc.List(context.Background(), 3)
	if err != nil || len(entries) != 1 || entries[0].Latest != nil {
		t.Fatalf("unexpected list %+v %v", entries, err)
	}
}
