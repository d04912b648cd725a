// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/puzzlerank/internal/adapters/ws/hub"
	"github.com/okian/puzzlerank/internal/domain/model"
	"github.com/okian/puzzlerank/internal/domain/types"
	"github.com/okian/puzzlerank/internal/domain/window"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// SubmitScore validates and enqueues a score event.
	SubmitScore(ctx context.Context, ev model.ScoreEvent) error

	// Read operations expose leaderboard data.
	TopN(ctx context.Context, windowID string, n int) ([]Entry, error)
	Rank(ctx context.Context, windowID, playerID string) (Entry, error)
	Around(ctx context.Context, windowID, playerID string, radius int) ([]Entry, error)

	// Window administration.
	OpenWindow(ctx context.Context, id string, startsAt, endsAt time.Time) error
	CloseWindow(ctx context.Context, id string) error
	Windows(ctx context.Context) []window.Info

	// Live subscriptions.
	Subscribe(ctx context.Context, windowID, filterExpr string) (*hub.Subscriber, error)
	Unsubscribe(sub *hub.Subscriber)
	ServeConn(ctx context.Context, conn hub.Conn, sub *hub.Subscriber)
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Default request limits.
const (
	defaultMaxLeaderboardLimit = 1000
)

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	scoresHandler      *ScoresHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	aroundHandler      *AroundHandler
	windowsHandler     *WindowsHandler
	wsHandler          *WSHandler
}

// ServerOption applies a configuration option to the Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	maxLeaderboardLimit int
}

// WithMaxLeaderboardLimit caps the limit accepted by GET /leaderboard.
func WithMaxLeaderboardLimit(n int) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxLeaderboardLimit = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	cfg := serverConfig{maxLeaderboardLimit: defaultMaxLeaderboardLimit}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		scoresHandler:      NewScoresHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, cfg.maxLeaderboardLimit),
		rankHandler:        NewRankHandler(deps),
		aroundHandler:      NewAroundHandler(deps),
		windowsHandler:     NewWindowsHandler(deps),
		wsHandler:          NewWSHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/scores", MetricsMiddleware(s.scoresHandler.HandlePostScore, "scores"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("/around/", MetricsMiddleware(s.aroundHandler.HandleGetAround, "around"))
	mux.HandleFunc("/windows", MetricsMiddleware(s.windowsHandler.HandleWindows, "windows"))
	mux.HandleFunc("/windows/", MetricsMiddleware(s.windowsHandler.HandleCloseWindow, "windows_close"))
	mux.HandleFunc("/ws", s.wsHandler.HandleWS)
}

// scoreRequest mirrors the wire schema for POST /scores.
type scoreRequest struct {
	EventID  string `json:"event_id"`
	PlayerID string `json:"player_id"`
	WindowID string `json:"window_id"`
	PuzzleID string `json:"puzzle_id"`
	Kind     string `json:"kind"`
	Points   int64  `json:"points"`
	TS       string `json:"ts"`
}

func (e scoreRequest) validate() error {
	switch {
	case strings.TrimSpace(e.EventID) == "":
		return errors.New("missing event_id")
	case strings.TrimSpace(e.PlayerID) == "":
		return errors.New("missing player_id")
	case strings.TrimSpace(e.WindowID) == "":
		return errors.New("missing window_id")
	case strings.TrimSpace(e.TS) == "":
		return errors.New("missing ts")
	}
	switch e.Kind {
	case "", string(model.KindDelta), string(model.KindAbsolute):
	default:
		return errors.New("invalid kind; must be delta or absolute")
	}
	if _, err := time.Parse(time.RFC3339, e.TS); err != nil {
		return errors.New("invalid ts; must be RFC3339")
	}
	return nil
}

// toEvent converts a validated request to the internal event shape.
// An omitted kind means a delta.
func (e scoreRequest) toEvent() model.ScoreEvent {
	kind := model.EventKind(e.Kind)
	if e.Kind == "" {
		kind = model.KindDelta
	}
	ts, _ := time.Parse(time.RFC3339, e.TS)
	return model.ScoreEvent{
		EventID:  e.EventID,
		PlayerID: e.PlayerID,
		WindowID: e.WindowID,
		PuzzleID: e.PuzzleID,
		Kind:     kind,
		Points:   e.Points,
		TS:       ts,
	}
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
