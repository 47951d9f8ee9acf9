package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ironrails/internal/auth"
	"ironrails/internal/config"
	"ironrails/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const playerContextKey contextKey = "player"

type PlayerContext struct {
	PlayerID string
	Name     string
}

type Server struct {
	cfg    config.APIConfig
	log    *slog.Logger
	tokens *auth.Issuer
	game   *game.Service
	mux    *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, tokens *auth.Issuer, gameSvc *game.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		log:    logger,
		tokens: tokens,
		game:   gameSvc,
		mux:    chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/identity", s.handleIdentity)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/games", s.handleCreateGame)
			r.Get("/games", s.handleLobbyList)
			r.Get("/games/{id}", s.handleGameState)
			r.Get("/games/{id}/watch", s.handleWatch)
			r.Post("/games/{id}/join", s.handleJoin)
			r.Post("/games/{id}/start", s.handleStart)
			r.Post("/games/{id}/buy", s.handleBuy)
			r.Post("/games/{id}/pass", s.handlePass)
			r.Post("/games/{id}/upgrade", s.handleUpgrade)
			r.Post("/games/{id}/operate", s.handleOperate)
			r.Post("/sync/replay", s.handleSyncReplay)
		})
	})
}

// authMiddleware accepts the token as a bearer header or, for websocket
// clients that cannot set headers, a ?token= query parameter.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			token = strings.TrimSpace(r.URL.Query().Get("token"))
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
			return
		}
		ctx := context.WithValue(r.Context(), playerContextKey, PlayerContext{
			PlayerID: claims.PlayerID,
			Name:     claims.Name,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func playerFromContext(ctx context.Context) (PlayerContext, error) {
	p, ok := ctx.Value(playerContextKey).(PlayerContext)
	if !ok || p.PlayerID == "" {
		return PlayerContext{}, errors.New("missing player context")
	}
	return p, nil
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	playerID, token, err := s.tokens.NewIdentity(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"player_id": playerID,
		"name":      name,
		"token":     token,
	})
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	rec, err := s.game.CreateGame(r.Context(), player.PlayerID, player.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleLobbyList(w http.ResponseWriter, r *http.Request) {
	games, err := s.game.LobbyGames(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": games})
}

func (s *Server) handleGameState(w http.ResponseWriter, r *http.Request) {
	rec, err := s.game.Game(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	rec, err := s.game.JoinGame(r.Context(), chi.URLParam(r, "id"), player.PlayerID, player.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	rec, err := s.game.StartGame(r.Context(), chi.URLParam(r, "id"), player.PlayerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Company string `json:"company"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.submit(w, r, game.BuyShare{Company: strings.ToUpper(strings.TrimSpace(in.Company))})
}

func (s *Server) handlePass(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, game.Pass{})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, game.UpgradeTrack{})
}

func (s *Server) handleOperate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Payout string `json:"payout"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.submit(w, r, game.ResolveRevenue{Choice: game.Payout(strings.ToUpper(strings.TrimSpace(in.Payout)))})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, action game.Action) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	rec, err := s.game.Submit(r.Context(), chi.URLParam(r, "id"), player.PlayerID, action)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ReplayCommand is one queued action recorded while a client was offline.
type ReplayCommand struct {
	Action  string `json:"action"`
	GameID  string `json:"game_id"`
	Company string `json:"company,omitempty"`
	Payout  string `json:"payout,omitempty"`
}

type ReplayResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// handleSyncReplay executes a command batch in order. Each command stands
// alone: a rejection (the turn moved on while the client was offline) is
// reported per-command and does not stop the rest of the batch.
func (s *Server) handleSyncReplay(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Commands []ReplayCommand `json:"commands"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results := make([]ReplayResult, 0, len(in.Commands))
	for _, cmd := range in.Commands {
		var action game.Action
		switch strings.ToLower(cmd.Action) {
		case "buy":
			action = game.BuyShare{Company: strings.ToUpper(cmd.Company)}
		case "pass":
			action = game.Pass{}
		case "upgrade":
			action = game.UpgradeTrack{}
		case "operate":
			action = game.ResolveRevenue{Choice: game.Payout(strings.ToUpper(cmd.Payout))}
		default:
			results = append(results, ReplayResult{Error: fmt.Sprintf("unknown action %q", cmd.Action)})
			continue
		}
		if _, err := s.game.Submit(r.Context(), cmd.GameID, player.PlayerID, action); err != nil {
			results = append(results, ReplayResult{Error: err.Error()})
			continue
		}
		results = append(results, ReplayResult{OK: true})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrAlreadyStarted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrIllegalAction):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, game.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrAllocationConflict):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
