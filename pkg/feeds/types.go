// Package feeds normalizes the two upstream event feeds (betting
// operator and marketing data) into one canonical stream record and
// deduplicates across them.
package feeds

import (
	"strings"
)

// Status is the lifecycle state of an event.
type Status string

const (
	StatusLive     Status = "live"
	StatusUpcoming Status = "upcoming"
	StatusFinished Status = "finished"
)

// Origin identifies which feed produced a record.
type Origin string

const (
	OriginOperator  Origin = "operator"
	OriginMarketing Origin = "marketing"
	OriginManual    Origin = "manual"
)

// Odds is the 1X2 main line. Draw is absent for two-outcome sports.
type Odds struct {
	W1   *float64 `json:"w1"`
	Draw *float64 `json:"draw,omitempty"`
	W2   *float64 `json:"w2"`
}

// richness counts populated outcomes, used by dedup scoring.
func (o *Odds) richness() int {
	if o == nil {
		return 0
	}
	n := 0
	for _, v := range []*float64{o.W1, o.Draw, o.W2} {
		if v != nil {
			n++
		}
	}
	return n
}

// Event is the canonical stream/match record served to clients.
// MatchKey is the dedup identity across feeds; ID is a display identity
// and need not be stable across merges.
type Event struct {
	ID                string `json:"id"`
	MatchKey          string `json:"matchKey"`
	Title             string `json:"title"`
	Sport             string `json:"sport,omitempty"`
	Status            Status `json:"status"`
	StartTimeEpochMS  *int64 `json:"startTimeEpochMs"`
	VideoID           string `json:"videoId,omitempty"`
	SecondaryStreamID string `json:"secondaryStreamId,omitempty"`
	HasStream         bool   `json:"hasStream"`
	Odds              *Odds  `json:"odds"`
	Origin            Origin `json:"origin"`
}

// RecomputeHasStream derives HasStream from the identifiers. It is never
// trusted as an independently settable flag.
func (e *Event) RecomputeHasStream() {
	e.VideoID = strings.TrimSpace(e.VideoID)
	e.SecondaryStreamID = strings.TrimSpace(e.SecondaryStreamID)
	e.HasStream = e.VideoID != "" || e.SecondaryStreamID != ""
}
