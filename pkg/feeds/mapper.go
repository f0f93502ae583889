package feeds

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OperatorEvent is the raw record shape of the betting operator feed.
// The feed has renamed fields across versions, so alternates are kept
// side by side and resolved during mapping.
type OperatorEvent struct {
	ID        json.Number `json:"id"`
	Name      string      `json:"name"`
	Title     string      `json:"title"`
	Sport     string      `json:"sport"`
	SportName string      `json:"sportName"`
	Status    string      `json:"status"`
	Live      bool        `json:"live"`
	StartTime int64       `json:"startTime"` // epoch ms
	Kickoff   int64       `json:"kickoff"`   // epoch s, older shape

	VideoID     string `json:"videoId"`
	StreamID    string `json:"streamId"` // older name for videoId
	WebStreamID string `json:"webStreamId"`

	// Main line: either a nested odds object or flat fields.
	Odds json.RawMessage `json:"odds"`
	W1   json.RawMessage `json:"w1"`
	X    json.RawMessage `json:"x"`
	W2   json.RawMessage `json:"w2"`
}

// MarketingEvent is the raw record shape of the marketing data feed.
type MarketingEvent struct {
	MatchID       json.Number                `json:"matchId"`
	MatchName     string                     `json:"matchName"`
	SportTitle    string                     `json:"sportTitle"`
	StartDate     string                     `json:"startDate"` // RFC 3339
	IsLive        bool                       `json:"isLive"`
	Video         string                     `json:"video"`
	PromoStreamID string                     `json:"promoStreamId"`
	Coefficients  map[string]json.RawMessage `json:"coefficients"`
}

// MapOperatorEvent converts a raw operator record to the canonical shape.
// Returns nil for records with no usable title; unknown or unparseable
// fields resolve to their zero value, never an error.
func MapOperatorEvent(raw OperatorEvent) *Event {
	title := strings.TrimSpace(raw.Name)
	if title == "" {
		title = strings.TrimSpace(raw.Title)
	}
	if title == "" {
		return nil
	}

	sport := strings.TrimSpace(raw.Sport)
	if sport == "" {
		sport = strings.TrimSpace(raw.SportName)
	}

	startMS := startTimeMS(raw.StartTime, raw.Kickoff)

	videoID := strings.TrimSpace(raw.VideoID)
	if videoID == "" {
		videoID = strings.TrimSpace(raw.StreamID)
	}

	ev := &Event{
		ID:                "op-" + raw.ID.String(),
		MatchKey:          matchKey(raw.ID.String(), startMS, title),
		Title:             title,
		Sport:             sport,
		Status:            operatorStatus(raw.Status, raw.Live),
		StartTimeEpochMS:  startMS,
		VideoID:           videoID,
		SecondaryStreamID: strings.TrimSpace(raw.WebStreamID),
		Odds:              operatorOdds(raw),
		Origin:            OriginOperator,
	}
	ev.RecomputeHasStream()
	return ev
}

// MapMarketingEvent converts a raw marketing record to the canonical
// shape. Returns nil for records with no usable title.
func MapMarketingEvent(raw MarketingEvent) *Event {
	title := strings.TrimSpace(raw.MatchName)
	if title == "" {
		return nil
	}

	var startMS *int64
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw.StartDate)); err == nil {
		ms := t.UnixMilli()
		startMS = &ms
	}

	status := StatusUpcoming
	if raw.IsLive {
		status = StatusLive
	}

	ev := &Event{
		ID:                "mk-" + raw.MatchID.String(),
		MatchKey:          matchKey(raw.MatchID.String(), startMS, title),
		Title:             title,
		Sport:             strings.TrimSpace(raw.SportTitle),
		Status:            status,
		StartTimeEpochMS:  startMS,
		VideoID:           strings.TrimSpace(raw.Video),
		SecondaryStreamID: strings.TrimSpace(raw.PromoStreamID),
		Odds:              marketingOdds(raw.Coefficients),
		Origin:            OriginMarketing,
	}
	ev.RecomputeHasStream()
	return ev
}

// matchKey prefers the stable upstream numeric id, falling back to a
// slug of start time and title so two feeds without a shared id still
// collide on the same logical match.
func matchKey(id string, startMS *int64, title string) string {
	if id != "" && id != "0" {
		if _, err := strconv.ParseInt(id, 10, 64); err == nil {
			return "m" + id
		}
	}
	ts := int64(0)
	if startMS != nil {
		ts = *startMS
	}
	return fmt.Sprintf("t%d-%s", ts, slugify(title))
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastHyphen := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func startTimeMS(startMS, kickoffS int64) *int64 {
	switch {
	case startMS > 0:
		return &startMS
	case kickoffS > 0:
		ms := kickoffS * 1000
		return &ms
	default:
		return nil
	}
}

func operatorStatus(status string, live bool) Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "live", "inplay", "in_play":
		return StatusLive
	case "finished", "ended", "closed":
		return StatusFinished
	case "upcoming", "prematch", "scheduled", "notstarted":
		return StatusUpcoming
	}
	if live {
		return StatusLive
	}
	return StatusUpcoming
}

func operatorOdds(raw OperatorEvent) *Odds {
	// Nested object takes precedence over flat fields.
	if len(raw.Odds) > 0 && string(raw.Odds) != "null" {
		var nested struct {
			W1   json.RawMessage `json:"w1"`
			Draw json.RawMessage `json:"draw"`
			X    json.RawMessage `json:"x"`
			W2   json.RawMessage `json:"w2"`
		}
		if err := json.Unmarshal(raw.Odds, &nested); err == nil {
			draw := nested.Draw
			if len(draw) == 0 {
				draw = nested.X
			}
			return buildOdds(ParseOdd(nested.W1), ParseOdd(draw), ParseOdd(nested.W2))
		}
		return nil
	}
	return buildOdds(ParseOdd(raw.W1), ParseOdd(raw.X), ParseOdd(raw.W2))
}

func marketingOdds(coeffs map[string]json.RawMessage) *Odds {
	if len(coeffs) == 0 {
		return nil
	}
	pick := func(keys ...string) *float64 {
		for _, k := range keys {
			if raw, ok := coeffs[k]; ok {
				if v := ParseOdd(raw); v != nil {
					return v
				}
			}
		}
		return nil
	}
	return buildOdds(pick("w1", "1", "home"), pick("x", "draw"), pick("w2", "2", "away"))
}

func buildOdds(w1, draw, w2 *float64) *Odds {
	if w1 == nil && draw == nil && w2 == nil {
		return nil
	}
	return &Odds{W1: w1, Draw: draw, W2: w2}
}

// ParseOdd extracts a decimal odd from a raw JSON value. It tolerates
// numbers, comma-decimal strings and nested {"value": ...} objects,
// returning nil rather than an error on anything unparseable.
func ParseOdd(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return validOdd(num)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return validOdd(v)
		}
		return nil
	}

	var nested struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested.Value) > 0 && string(nested.Value) != string(raw) {
		return ParseOdd(nested.Value)
	}
	return nil
}

// validOdd rejects values no bookmaker would quote.
func validOdd(v float64) *float64 {
	if v < 1.0 || v > 1000 {
		return nil
	}
	return &v
}
