// Package session holds per-session ranking state for anonymous and signed-in actors.
package session

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when the session has no state for the album.
var ErrNotFound = errors.New("session ranking not found")

// State is the transient ranking staged for one album within one session.
type State struct {
	AlbumID          string          `json:"album_id"`
	OrderedIDs       []string        `json:"ordered_ids"`
	Comparisons      json.RawMessage `json:"comparisons,omitempty"`
	ComparisonsCount int             `json:"comparisons_count"`
	Completed        bool            `json:"completed"`
}

// Store is keyed by (session, album). Put overwrites any prior state; expiry
// belongs to the backend.
type Store interface {
	Get(ctx context.Context, sessionID, albumID string) (State, error)
	Put(ctx context.Context, sessionID, albumID string, state State) error
}
