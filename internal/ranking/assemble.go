package ranking

import (
	"fmt"

	"trackrank/internal/catalog"
)

// UnknownDuration is rendered when a track has no duration.
const UnknownDuration = "?:??"

// DisplayTrack is one entry of a ranked list.
type DisplayTrack struct {
	Rank        int    `json:"rank"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Duration    string `json:"duration"`
	DurationMS  *int   `json:"duration_ms"`
	TrackNumber *int   `json:"track_number"`
}

// Assemble maps orderedIDs onto live tracks, keeping the ranked order. Ids with no
// live track are skipped and counted in dropped.
func Assemble(orderedIDs []string, tracks []catalog.Track) (display []DisplayTrack, dropped int) {
	byID := make(map[string]catalog.Track, len(tracks))
	for _, t := range tracks {
		byID[t.ID] = t
	}

	display = make([]DisplayTrack, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		t, ok := byID[id]
		if !ok {
			dropped++
			continue
		}
		display = append(display, DisplayTrack{
			Rank:        len(display) + 1,
			ID:          t.ID,
			Name:        t.Name,
			Duration:    FormatDuration(t.DurationMS),
			DurationMS:  t.DurationMS,
			TrackNumber: t.TrackNumber,
		})
	}
	return display, dropped
}

// FormatDuration renders milliseconds as M:SS.
func FormatDuration(ms *int) string {
	if ms == nil {
		return UnknownDuration
	}
	totalSeconds := *ms / 1000
	return fmt.Sprintf("%d:%02d", totalSeconds/60, totalSeconds%60)
}
