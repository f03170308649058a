package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrRankingNotFound indicates the user has no durable ranking for the album.
var ErrRankingNotFound = errors.New("ranking not found")

// Ranking is one accepted order. Rows are append-only.
type Ranking struct {
	ID               int64           `json:"id"`
	UserID           *int64          `json:"user_id"`
	SavedAlbumID     *int64          `json:"saved_album_id"`
	AlbumID          string          `json:"album_id"`
	OrderedIDs       []string        `json:"ordered_ids"`
	Comparisons      json.RawMessage `json:"comparisons"`
	ComparisonsCount int             `json:"comparisons_count"`
	CreatedAt        time.Time       `json:"created_at"`
}

// NewRanking is the validated input for a ranking row.
type NewRanking struct {
	OrderedIDs       []string
	Comparisons      json.RawMessage
	ComparisonsCount int
}

func insertRanking(ctx context.Context, tx *sql.Tx, userID int64, savedAlbumID *int64, albumID string, in NewRanking) (Ranking, error) {
	comparisons := normalizeComparisons(in.Comparisons)

	r := Ranking{
		UserID:           &userID,
		SavedAlbumID:     savedAlbumID,
		AlbumID:          albumID,
		OrderedIDs:       append([]string(nil), in.OrderedIDs...),
		Comparisons:      comparisons,
		ComparisonsCount: in.ComparisonsCount,
	}

	err := tx.QueryRowContext(ctx, `
		INSERT INTO rankings (user_id, saved_album_id, album_id, ordered_ids, comparisons, comparisons_count)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		RETURNING id, created_at
	`, userID, savedAlbumID, albumID, pq.Array(r.OrderedIDs), string(comparisons), in.ComparisonsCount).
		Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return Ranking{}, fmt.Errorf("insert ranking: %w", err)
	}

	return r, nil
}

// LatestRanking returns the most recently created ranking for (user, album).
func (s *Store) LatestRanking(ctx context.Context, userID int64, albumID string) (Ranking, error) {
	var (
		r           = Ranking{UserID: &userID, AlbumID: albumID}
		savedID     sql.NullInt64
		comparisons []byte
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, saved_album_id, ordered_ids, comparisons, comparisons_count, created_at
		FROM rankings
		WHERE user_id = $1 AND album_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, userID, albumID).Scan(&r.ID, &savedID, pq.Array(&r.OrderedIDs), &comparisons, &r.ComparisonsCount, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ranking{}, ErrRankingNotFound
		}
		return Ranking{}, fmt.Errorf("select latest ranking: %w", err)
	}

	r.SavedAlbumID = nullInt64Ptr(savedID)
	r.Comparisons = normalizeComparisons(comparisons)
	return r, nil
}

// normalizeComparisons stores absent logs as an empty JSON list.
func normalizeComparisons(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("[]")
	}
	return json.RawMessage(append([]byte(nil), trimmed...))
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
