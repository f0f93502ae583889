package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"betstream-relay/pkg/logging"
)

// stubJSONExecutor scripts per-path replies for the operator feed.
type stubJSONExecutor struct {
	calls   map[string]int
	replies map[string]string
	errs    map[string]error
}

func newStubJSONExecutor() *stubJSONExecutor {
	return &stubJSONExecutor{
		calls:   make(map[string]int),
		replies: make(map[string]string),
		errs:    make(map[string]error),
	}
}

func (s *stubJSONExecutor) DoJSON(ctx context.Context, method, path string, headers map[string]string, body []byte, out any) error {
	s.calls[path]++
	if err, ok := s.errs[path]; ok {
		return err
	}
	return json.Unmarshal([]byte(s.replies[path]), out)
}

func TestOperatorClient_AggregatesLeagues(t *testing.T) {
	exec := newStubJSONExecutor()
	exec.replies["/api/v1/events/list?league=1"] = `{"events":[{"id":"1","name":"A - B","videoId":"v1"}]}`
	exec.replies["/api/v1/events/list?league=2"] = `{"events":[{"id":"2","name":"C - D"},{"id":"","title":""}]}`

	c := NewOperatorClient(exec, []int64{1, 2}, logging.New("error", false, io.Discard), nil)
	events, err := c.FetchEvents(context.Background())
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (titleless record dropped)", len(events))
	}
	if events[0].ID != "op-1" || events[1].ID != "op-2" {
		t.Errorf("events = %q, %q", events[0].ID, events[1].ID)
	}
}

func TestOperatorClient_FailingLeagueDegradesNotFails(t *testing.T) {
	exec := newStubJSONExecutor()
	exec.replies["/api/v1/events/list?league=1"] = `{"events":[{"id":"1","name":"A - B"}]}`
	exec.errs["/api/v1/events/list?league=2"] = fmt.Errorf("league is down")

	c := NewOperatorClient(exec, []int64{1, 2}, logging.New("error", false, io.Discard), nil)
	events, err := c.FetchEvents(context.Background())
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d events, want 1 from the healthy league", len(events))
	}
}

func TestOperatorClient_AllLeaguesFailing(t *testing.T) {
	exec := newStubJSONExecutor()
	exec.errs["/api/v1/events/list?league=1"] = fmt.Errorf("down")

	c := NewOperatorClient(exec, []int64{1}, logging.New("error", false, io.Discard), nil)
	if _, err := c.FetchEvents(context.Background()); err == nil {
		t.Error("FetchEvents succeeded with every league failing")
	}
}

func TestOperatorClient_BrokenLeagueSuppressedByBreaker(t *testing.T) {
	exec := newStubJSONExecutor()
	exec.replies["/api/v1/events/list?league=1"] = `{"events":[{"id":"1","name":"A - B"}]}`
	exec.errs["/api/v1/events/list?league=2"] = fmt.Errorf("down")

	c := NewOperatorClient(exec, []int64{1, 2}, logging.New("error", false, io.Discard), nil)

	c.FetchEvents(context.Background())
	c.FetchEvents(context.Background())

	if got := exec.calls["/api/v1/events/list?league=2"]; got != 1 {
		t.Errorf("broken league called %d times, want 1 (suppressed on second pass)", got)
	}
	if got := exec.calls["/api/v1/events/list?league=1"]; got != 2 {
		t.Errorf("healthy league called %d times, want 2", got)
	}
}
