package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrSavedAlbumNotFound indicates the user has not saved the album.
var ErrSavedAlbumNotFound = errors.New("saved album not found")

// SavedAlbum is a user's library entry for one catalog album.
type SavedAlbum struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	AlbumID    string    `json:"album_id"`
	AlbumName  string    `json:"album_name"`
	ArtistName string    `json:"artist_name"`
	CoverImage *string   `json:"cover_image"`
	Notes      string    `json:"notes"`
	SavedAt    time.Time `json:"saved_at"`
}

// AlbumMetadata holds the display fields copied onto a SavedAlbum. Empty values
// keep whatever is already stored.
type AlbumMetadata struct {
	Name       string
	Artist     string
	CoverImage *string
}

// LibraryEntry pairs a saved album with its most recent ranking, if any.
type LibraryEntry struct {
	Album  SavedAlbum `json:"album"`
	Latest *Ranking   `json:"latest_ranking"`
}

// SaveResult reports the outcome of SaveAlbum.
type SaveResult struct {
	Album   SavedAlbum
	Created bool
	Ranking *Ranking
}

// SaveAlbum upserts the (user, album) library entry and, when ranking is non-nil,
// appends a ranking linked to it. Both writes share one transaction.
func (s *Store) SaveAlbum(ctx context.Context, userID int64, albumID string, meta AlbumMetadata, ranking *NewRanking) (SaveResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SaveResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	album, created, err := upsertSavedAlbum(ctx, tx, userID, albumID, meta)
	if err != nil {
		return SaveResult{}, err
	}

	result := SaveResult{Album: album, Created: created}

	if ranking != nil {
		r, err := insertRanking(ctx, tx, userID, &album.ID, albumID, *ranking)
		if err != nil {
			return SaveResult{}, err
		}
		result.Ranking = &r
	}

	if err := tx.Commit(); err != nil {
		return SaveResult{}, fmt.Errorf("commit tx: %w", err)
	}
	tx = nil

	return result, nil
}

func upsertSavedAlbum(ctx context.Context, tx *sql.Tx, userID int64, albumID string, meta AlbumMetadata) (SavedAlbum, bool, error) {
	album := SavedAlbum{UserID: userID, AlbumID: albumID}
	var (
		cover   sql.NullString
		created bool
	)

	err := tx.QueryRowContext(ctx, `
		INSERT INTO saved_albums (user_id, album_id, album_name, artist_name, cover_image)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, album_id) DO UPDATE SET
			album_name = COALESCE(NULLIF(EXCLUDED.album_name, ''), saved_albums.album_name),
			artist_name = COALESCE(NULLIF(EXCLUDED.artist_name, ''), saved_albums.artist_name),
			cover_image = COALESCE(EXCLUDED.cover_image, saved_albums.cover_image)
		RETURNING id, album_name, artist_name, cover_image, notes, saved_at, (xmax = 0) AS created
	`, userID, albumID, meta.Name, meta.Artist, nullIfEmpty(meta.CoverImage)).
		Scan(&album.ID, &album.AlbumName, &album.ArtistName, &cover, &album.Notes, &album.SavedAt, &created)
	if err != nil {
		return SavedAlbum{}, false, fmt.Errorf("upsert saved album: %w", err)
	}

	if cover.Valid {
		album.CoverImage = &cover.String
	}
	return album, created, nil
}

// DeleteSavedAlbum removes the library entry and every ranking the user made for the album.
func (s *Store) DeleteSavedAlbum(ctx context.Context, userID int64, albumID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM saved_albums
		WHERE user_id = $1 AND album_id = $2
	`, userID, albumID)
	if err != nil {
		return fmt.Errorf("delete saved album: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSavedAlbumNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM rankings
		WHERE user_id = $1 AND album_id = $2
	`, userID, albumID); err != nil {
		return fmt.Errorf("delete rankings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	tx = nil

	return nil
}

// IsAlbumSaved reports whether the user has the album in their library.
func (s *Store) IsAlbumSaved(ctx context.Context, userID int64, albumID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM saved_albums WHERE user_id = $1 AND album_id = $2
		)
	`, userID, albumID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check saved album: %w", err)
	}
	return exists, nil
}

// ListLibrary returns the user's saved albums, newest first, each with its latest ranking.
func (s *Store) ListLibrary(ctx context.Context, userID int64) ([]LibraryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sa.id, sa.album_id, sa.album_name, sa.artist_name, sa.cover_image, sa.notes, sa.saved_at,
			r.id, r.saved_album_id, r.ordered_ids, r.comparisons, r.comparisons_count, r.created_at
		FROM saved_albums sa
		LEFT JOIN LATERAL (
			SELECT id, saved_album_id, ordered_ids, comparisons, comparisons_count, created_at
			FROM rankings
			WHERE rankings.user_id = sa.user_id AND rankings.album_id = sa.album_id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) r ON TRUE
		WHERE sa.user_id = $1
		ORDER BY sa.saved_at DESC, sa.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select library: %w", err)
	}
	defer rows.Close()

	entries := []LibraryEntry{}
	for rows.Next() {
		var (
			album       = SavedAlbum{UserID: userID}
			cover       sql.NullString
			rankingID   sql.NullInt64
			savedID     sql.NullInt64
			orderedIDs  []string
			comparisons []byte
			count       sql.NullInt64
			createdAt   sql.NullTime
		)

		if err := rows.Scan(
			&album.ID, &album.AlbumID, &album.AlbumName, &album.ArtistName, &cover, &album.Notes, &album.SavedAt,
			&rankingID, &savedID, pq.Array(&orderedIDs), &comparisons, &count, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan library: %w", err)
		}
		if cover.Valid {
			album.CoverImage = &cover.String
		}

		entry := LibraryEntry{Album: album}
		if rankingID.Valid {
			uid := userID
			entry.Latest = &Ranking{
				ID:               rankingID.Int64,
				UserID:           &uid,
				SavedAlbumID:     nullInt64Ptr(savedID),
				AlbumID:          album.AlbumID,
				OrderedIDs:       orderedIDs,
				Comparisons:      normalizeComparisons(comparisons),
				ComparisonsCount: int(count.Int64),
				CreatedAt:        createdAt.Time,
			}
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate library: %w", err)
	}

	return entries, nil
}

func nullIfEmpty(value *string) interface{} {
	if value == nil || *value == "" {
		return nil
	}
	return *value
}
