// Package ranking validates submitted track orders and assembles ranked display lists.
package ranking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedPayload indicates the order is empty or not a list of ids.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrCountMismatch indicates the order does not cover the album's track count.
	ErrCountMismatch = errors.New("track count mismatch")
	// ErrDuplicateTrackID indicates a track id appears more than once.
	ErrDuplicateTrackID = errors.New("duplicate track id")
	// ErrUnknownTrackID indicates an id the catalog does not report for the album.
	ErrUnknownTrackID = errors.New("unknown track id")
)

// Reason names a rejection category.
type Reason string

const (
	ReasonMalformedPayload Reason = "MalformedPayload"
	ReasonCountMismatch    Reason = "CountMismatch"
	ReasonDuplicateTrackID Reason = "DuplicateTrackId"
	ReasonUnknownTrackID   Reason = "UnknownTrackId"
)

// RejectionError describes why a claimed order was refused.
type RejectionError struct {
	Reason   Reason
	Expected int
	Got      int
	TrackID  string
	Detail   string
}

func (e *RejectionError) Error() string {
	switch e.Reason {
	case ReasonCountMismatch:
		return fmt.Sprintf("%s: expected %d track ids, got %d", e.Reason, e.Expected, e.Got)
	case ReasonDuplicateTrackID:
		return fmt.Sprintf("%s: %q appears more than once", e.Reason, e.TrackID)
	case ReasonUnknownTrackID:
		return fmt.Sprintf("%s: %q is not a track of this album", e.Reason, e.TrackID)
	default:
		if e.Detail != "" {
			return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
		}
		return string(e.Reason)
	}
}

func (e *RejectionError) Unwrap() error {
	switch e.Reason {
	case ReasonCountMismatch:
		return ErrCountMismatch
	case ReasonDuplicateTrackID:
		return ErrDuplicateTrackID
	case ReasonUnknownTrackID:
		return ErrUnknownTrackID
	default:
		return ErrMalformedPayload
	}
}

// Malformed builds a MalformedPayload rejection.
func Malformed(detail string) *RejectionError {
	return &RejectionError{Reason: ReasonMalformedPayload, Detail: detail}
}

// DecodeOrder parses a raw JSON value that must be a non-empty array of strings.
func DecodeOrder(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, Malformed("ordered_ids is required")
	}
	if trimmed[0] != '[' {
		return nil, Malformed("ordered_ids must be a list of track ids")
	}

	var elems []*string
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, Malformed("ordered_ids must be a list of track ids")
	}
	if len(elems) == 0 {
		return nil, Malformed("ordered_ids must not be empty")
	}

	ids := make([]string, len(elems))
	for i, id := range elems {
		if id == nil {
			return nil, Malformed(fmt.Sprintf("ordered_ids[%d] must be a track id, got null", i))
		}
		ids[i] = *id
	}
	return ids, nil
}

// Validate accepts claimed only if it is a permutation of exactly the authoritative ids.
// Checks run in order: non-empty, count, duplicates, membership.
func Validate(claimed []string, authoritative map[string]struct{}) error {
	if len(claimed) == 0 {
		return Malformed("ordered_ids must not be empty")
	}

	if len(claimed) != len(authoritative) {
		return &RejectionError{
			Reason:   ReasonCountMismatch,
			Expected: len(authoritative),
			Got:      len(claimed),
		}
	}

	seen := make(map[string]struct{}, len(claimed))
	for _, id := range claimed {
		if _, dup := seen[id]; dup {
			return &RejectionError{Reason: ReasonDuplicateTrackID, TrackID: id}
		}
		seen[id] = struct{}{}
	}

	for _, id := range claimed {
		if _, ok := authoritative[id]; !ok {
			return &RejectionError{Reason: ReasonUnknownTrackID, TrackID: id}
		}
	}

	return nil
}

// IsRejection reports whether err is a validation rejection.
func IsRejection(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}
