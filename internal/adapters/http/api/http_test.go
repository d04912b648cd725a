package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	service "github.com/okian/puzzlerank/internal/app"
	"github.com/okian/puzzlerank/internal/adapters/ws/hub"
	"github.com/okian/puzzlerank/internal/domain/model"
	"github.com/okian/puzzlerank/internal/domain/window"
	"github.com/okian/puzzlerank/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// stubDeps implements Dependencies with overridable behavior per test.
type stubDeps struct {
	submitErr error
	entries   []Entry
	rankErr   error
	windows   []window.Info
	openErr   error
	closeErr  error
}

func (s *stubDeps) SubmitScore(ctx context.Context, ev model.ScoreEvent) error {
	return s.submitErr
}

func (s *stubDeps) TopN(ctx context.Context, windowID string, n int) ([]Entry, error) {
	if s.rankErr != nil {
		return nil, s.rankErr
	}
	if n > len(s.entries) {
		n = len(s.entries)
	}
	return s.entries[:n], nil
}

func (s *stubDeps) Rank(ctx context.Context, windowID, playerID string) (Entry, error) {
	if s.rankErr != nil {
		return Entry{}, s.rankErr
	}
	for _, e := range s.entries {
		if e.PlayerID == playerID {
			return e, nil
		}
	}
	return Entry{}, s.rankErr
}

func (s *stubDeps) Around(ctx context.Context, windowID, playerID string, radius int) ([]Entry, error) {
	if s.rankErr != nil {
		return nil, s.rankErr
	}
	return s.entries, nil
}

func (s *stubDeps) OpenWindow(ctx context.Context, id string, startsAt, endsAt time.Time) error {
	return s.openErr
}

func (s *stubDeps) CloseWindow(ctx context.Context, id string) error {
	return s.closeErr
}

func (s *stubDeps) Windows(ctx context.Context) []window.Info {
	return s.windows
}

func (s *stubDeps) Subscribe(ctx context.Context, windowID, filterExpr string) (*hub.Subscriber, error) {
	return nil, window.ErrUnknownWindow
}

func (s *stubDeps) Unsubscribe(sub *hub.Subscriber) {}

func (s *stubDeps) ServeConn(ctx context.Context, conn hub.Conn, sub *hub.Subscriber) {}

func (s *stubDeps) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true}
}

func newTestServer(deps *stubDeps) *http.ServeMux {
	mux := http.NewServeMux()
	srv := NewServer(deps, deps, WithMaxLeaderboardLimit(100))
	srv.Register(context.Background(), mux)
	return mux
}

func postJSON(mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func get(mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func validScoreBody() string {
	return fmt.Sprintf(`{
		"event_id": "e1",
		"player_id": "alice",
		"window_id": "daily",
		"puzzle_id": "p42",
		"kind": "delta",
		"points": 100,
		"ts": %q
	}`, time.Now().Format(time.RFC3339))
}

func TestPostScore(t *testing.T) {
	cases := []struct {
		name       string
		deps       *stubDeps
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "accepted", deps: &stubDeps{}, body: validScoreBody(), wantStatus: http.StatusAccepted},
		{name: "duplicate", deps: &stubDeps{submitErr: service.ErrDuplicateEvent}, body: validScoreBody(), wantStatus: http.StatusOK},
		{name: "unknown window", deps: &stubDeps{submitErr: window.ErrUnknownWindow}, body: validScoreBody(), wantStatus: http.StatusNotFound, wantCode: "unknown_window"},
		{name: "closed window", deps: &stubDeps{submitErr: window.ErrWindowClosed}, body: validScoreBody(), wantStatus: http.StatusConflict, wantCode: "window_closed"},
		{name: "backpressure", deps: &stubDeps{submitErr: service.ErrBusy}, body: validScoreBody(), wantStatus: http.StatusTooManyRequests, wantCode: "backpressure"},
		{name: "malformed json", deps: &stubDeps{}, body: `{`, wantStatus: http.StatusBadRequest},
		{name: "missing event id", deps: &stubDeps{}, body: `{"player_id":"a","window_id":"w","ts":"2026-01-02T15:04:05Z"}`, wantStatus: http.StatusBadRequest},
		{name: "bad kind", deps: &stubDeps{}, body: `{"event_id":"e","player_id":"a","window_id":"w","kind":"sideways","ts":"2026-01-02T15:04:05Z"}`, wantStatus: http.StatusBadRequest},
		{name: "bad ts", deps: &stubDeps{}, body: `{"event_id":"e","player_id":"a","window_id":"w","ts":"yesterday"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := newTestServer(tc.deps)
			rec := postJSON(mux, "/scores", tc.body)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantCode != "" {
				var resp map[string]string
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatal(err)
				}
				if resp["code"] != tc.wantCode {
					t.Errorf("expected code %q, got %q", tc.wantCode, resp["code"])
				}
			}
		})
	}
}

func TestPostScore_DuplicateAck(t *testing.T) {
	mux := newTestServer(&stubDeps{submitErr: service.ErrDuplicateEvent})
	rec := postJSON(mux, "/scores", validScoreBody())

	var ack struct {
		Status    string `json:"status"`
		Duplicate bool   `json:"duplicate"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatal(err)
	}
	if ack.Status != "duplicate" || !ack.Duplicate {
		t.Errorf("expected duplicate ack, got %+v", ack)
	}
}

func TestGetLeaderboard(t *testing.T) {
	deps := &stubDeps{entries: []Entry{
		{Rank: 1, PlayerID: "bob", Score: 250},
		{Rank: 2, PlayerID: "alice", Score: 100},
	}}
	mux := newTestServer(deps)

	rec := get(mux, "/leaderboard?window=daily&limit=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var entries []Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].PlayerID != "bob" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestGetLeaderboard_Validation(t *testing.T) {
	cases := []struct {
		name string
		path string
		want int
	}{
		{name: "missing window", path: "/leaderboard?limit=10", want: http.StatusBadRequest},
		{name: "missing limit", path: "/leaderboard?window=daily", want: http.StatusBadRequest},
		{name: "zero limit", path: "/leaderboard?window=daily&limit=0", want: http.StatusBadRequest},
		{name: "limit over cap", path: "/leaderboard?window=daily&limit=101", want: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := newTestServer(&stubDeps{})
			if rec := get(mux, tc.path); rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}

	t.Run("unknown window maps to 404", func(t *testing.T) {
		mux := newTestServer(&stubDeps{rankErr: window.ErrUnknownWindow})
		if rec := get(mux, "/leaderboard?window=nope&limit=10"); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestGetRank(t *testing.T) {
	deps := &stubDeps{entries: []Entry{{Rank: 1, PlayerID: "alice", Score: 100}}}
	mux := newTestServer(deps)

	rec := get(mux, "/rank/daily/alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var entry Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.Rank != 1 || entry.PlayerID != "alice" {
		t.Errorf("unexpected entry: %+v", entry)
	}

	if rec := get(mux, "/rank/daily"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing player, got %d", rec.Code)
	}
}

func TestGetAround(t *testing.T) {
	deps := &stubDeps{entries: []Entry{
		{Rank: 1, PlayerID: "bob", Score: 250},
		{Rank: 2, PlayerID: "alice", Score: 100},
		{Rank: 3, PlayerID: "carol", Score: 50},
	}}
	mux := newTestServer(deps)

	rec := get(mux, "/around/daily/alice?radius=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if rec := get(mux, "/around/daily/alice?radius=-1"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative radius, got %d", rec.Code)
	}
}

func TestWindows(t *testing.T) {
	deps := &stubDeps{windows: []window.Info{{ID: "daily"}}}
	mux := newTestServer(deps)

	rec := get(mux, "/windows")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var infos []window.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].ID != "daily" {
		t.Errorf("unexpected windows: %+v", infos)
	}

	rec = postJSON(mux, "/windows", `{"id":"weekly"}`)
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(mux, "/windows", `{"id":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing id, got %d", rec.Code)
	}

	t.Run("existing window conflicts", func(t *testing.T) {
		mux := newTestServer(&stubDeps{openErr: window.ErrWindowExists})
		if rec := postJSON(mux, "/windows", `{"id":"daily"}`); rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
	})
}

func TestCloseWindow(t *testing.T) {
	mux := newTestServer(&stubDeps{})
	rec := postJSON(mux, "/windows/daily/close", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if rec := postJSON(mux, "/windows/daily/shut", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown action, got %d", rec.Code)
	}

	t.Run("already closed conflicts", func(t *testing.T) {
		mux := newTestServer(&stubDeps{closeErr: window.ErrWindowClosed})
		if rec := postJSON(mux, "/windows/daily/close", ""); rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
	})
}

func TestStats(t *testing.T) {
	mux := newTestServer(&stubDeps{})
	rec := get(mux, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats["started"] != true {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestHealthz(t *testing.T) {
	mux := newTestServer(&stubDeps{})
	rec := get(mux, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestWS_UnknownWindow(t *testing.T) {
	mux := newTestServer(&stubDeps{})
	if rec := get(mux, "/ws?window=nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before upgrade, got %d", rec.Code)
	}
	if rec := get(mux, "/ws"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing window, got %d", rec.Code)
	}
}
