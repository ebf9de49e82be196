// Package api exposes the game session over HTTP for local front ends.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"vinflip/internal/coordinator"
	"vinflip/internal/domain"
	"vinflip/internal/observability"
	"vinflip/internal/storage"
	"vinflip/internal/submit"
	"vinflip/internal/wallet"
)

// Server serves the JSON API.
type Server struct {
	coord       *coordinator.Coordinator
	leaderboard storage.LeaderboardStore
	archive     storage.FlipEventStore // optional
	logger      *log.Logger
	started     time.Time
}

// NewServer creates the API server. The archive may be nil; /stats then
// reports 404.
func NewServer(coord *coordinator.Coordinator, leaderboard storage.LeaderboardStore, archive storage.FlipEventStore, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		coord:       coord,
		leaderboard: leaderboard,
		archive:     archive,
		logger:      logger,
		started:     time.Now(),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.Handler())
	r.Get("/status", s.handleStatus)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/session", s.handleSession)
		r.Post("/session/connect", s.handleConnect)
		r.Post("/session/disconnect", s.handleDisconnect)
		r.Post("/session/dismiss-error", s.handleDismissError)
		r.Post("/approve", s.handleApprove)
		r.Post("/flip", s.handleFlip)
		r.Post("/withdraw", s.handleWithdraw)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/history", s.handleHistory)
		r.Get("/stats", s.handleStats)
	})

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.coord.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"state":          snap.State,
		"connected":      snap.Connected,
		"archive":        s.archive != nil,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Snapshot())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	account, err := s.coord.Connect(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"account": account})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.coord.Disconnect(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDismissError(w http.ResponseWriter, _ *http.Request) {
	s.coord.DismissError()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Approve(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.coord.Snapshot())
}

type flipRequest struct {
	Amount string `json:"amount"`
	Heads  bool   `json:"heads"`
}

func (s *Server) handleFlip(w http.ResponseWriter, r *http.Request) {
	var req flipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	err := s.coord.Flip(r.Context(), domain.BetIntent{Amount: req.Amount, Heads: req.Heads})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.coord.Snapshot())
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Withdraw(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.coord.Snapshot())
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.leaderboard.Load(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": s.coord.Snapshot().History})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusNotFound, errorBody("event archive not configured"))
		return
	}
	stats, err := s.archive.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_flips":    stats.TotalFlips,
		"total_wins":     stats.TotalWins,
		"win_rate":       stats.WinRate,
		"biggest_payout": stats.BiggestPayout,
		"total_wagered":  stats.TotalWagered,
	})
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var invalid *submit.InvalidBetError
	var submitErr *submit.SubmitError

	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, coordinator.ErrFlipInFlight):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, wallet.ErrNotConnected):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, wallet.ErrConnectRejected), errors.Is(err, wallet.ErrSwitchRejected):
		writeJSON(w, http.StatusForbidden, errorBody(err.Error()))
	case errors.Is(err, wallet.ErrWalletUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
	case errors.As(err, &submitErr):
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
	default:
		s.logger.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
