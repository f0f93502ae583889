package feeds

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"betstream-relay/pkg/breaker"
	"betstream-relay/pkg/logging"
	"betstream-relay/pkg/metrics"
)

// eventsEndpoint lists events for one league; league 0 means all.
const eventsEndpoint = "/api/v1/events/list?league=%d"

// Executor is the authenticated upstream request dependency.
type Executor interface {
	DoJSON(ctx context.Context, method, path string, headers map[string]string, body []byte, out any) error
}

// operatorReply is the wrapper the operator feed puts around its lists.
type operatorReply struct {
	Events []OperatorEvent `json:"events"`
}

// OperatorClient fetches event lists from the betting operator feed
// through the session relay. Leagues that fail repeatedly are suppressed
// by a per-league breaker so a broken league cannot hammer the upstream.
type OperatorClient struct {
	exec    Executor
	leagues []int64
	brk     *breaker.Breaker[int64]
	log     *logging.Logger
	met     *metrics.Metrics
}

// NewOperatorClient creates an operator feed client for the given leagues.
func NewOperatorClient(exec Executor, leagues []int64, log *logging.Logger, met *metrics.Metrics) *OperatorClient {
	return &OperatorClient{
		exec:    exec,
		leagues: leagues,
		brk:     breaker.New[int64](time.Second, 30*time.Second),
		log:     log.WithComponent("operator-feed"),
		met:     met,
	}
}

// FetchEvents fetches and maps all configured leagues. A league failure
// opens that league's breaker and is skipped; other leagues still
// contribute, so the feed degrades per league rather than whole-feed.
// The returned error is non-nil only when every league failed.
func (c *OperatorClient) FetchEvents(ctx context.Context) ([]Event, error) {
	var out []Event
	var lastErr error
	attempted := 0

	for _, league := range c.leagues {
		if c.brk.Blocked(league) {
			if c.met != nil {
				c.met.IncBreakerOpen("operator_league")
			}
			c.log.Debug("skipping blocked league", "league", league)
			continue
		}
		attempted++

		var reply operatorReply
		path := fmt.Sprintf(eventsEndpoint, league)
		if err := c.exec.DoJSON(ctx, http.MethodGet, path, nil, nil, &reply); err != nil {
			c.brk.Failure(league)
			lastErr = err
			c.log.Warn("operator feed fetch failed", "league", league, "error", err)
			continue
		}
		c.brk.Success(league)

		for _, raw := range reply.Events {
			if ev := MapOperatorEvent(raw); ev != nil {
				out = append(out, *ev)
			}
		}
	}

	if len(out) == 0 && attempted > 0 && lastErr != nil {
		return nil, fmt.Errorf("operator feed: %w", lastErr)
	}
	return out, nil
}
