// Package api serves the HTTP side of the game: health, queue and session
// lookups, stored results, AI poem helpers and the share QR code.
package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/asfreeas-aatto/aatto/internal/ai"
	"github.com/asfreeas-aatto/aatto/internal/game"
	"github.com/asfreeas-aatto/aatto/internal/storage"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

type ErrorResponse struct {
	Error string `json:"error"`
}

type Handler struct {
	lobby    *game.Lobby
	ctrl     *game.Controller
	store    *game.Store
	poet     *ai.Poet
	history  storage.Reader
	shareURL string
}

// New builds the handler. history may be nil when no readable store is
// configured; poet may be nil, in which case template poems are served.
func New(lobby *game.Lobby, ctrl *game.Controller, poet *ai.Poet, history storage.Reader, shareURL string) *Handler {
	return &Handler{lobby: lobby, ctrl: ctrl, store: ctrl.Store(), poet: poet, history: history, shareURL: shareURL}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.GET("/api/health", h.Health)
	r.GET("/api/games/queue-status", h.QueueStatus)
	r.GET("/api/games/:id", h.Game)
	r.GET("/api/games/:id/results", h.Results)
	r.POST("/api/games/:id/submit-poem", h.SubmitPoem)
	r.POST("/api/games/:id/vote", h.Vote)
	r.POST("/api/ai/battle/start", h.StartAIBattle)
	r.POST("/api/ai/generate-poem", h.GeneratePoem)
	r.POST("/api/ai/battle/evaluate", h.EvaluateBattle)
	r.GET("/api/share/qr.png", h.ShareQR)
}

// CORS restricts browser access to the frontend origin. An empty origin or
// "*" allows every origin without credentials.
func CORS(frontendURL string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if origin := strings.TrimRight(frontendURL, "/"); origin == "" || origin == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = []string{origin}
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// AllowOrigin reports whether a socket handshake from origin is accepted,
// using the same rule as CORS.
func AllowOrigin(frontendURL string) func(origin string) bool {
	want := strings.TrimRight(frontendURL, "/")
	return func(origin string) bool {
		return want == "" || want == "*" || strings.TrimRight(origin, "/") == want
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"time":     time.Now().UTC(),
		"sessions": h.store.Len(),
		"queued":   h.lobby.Status().Total,
	})
}

func (h *Handler) QueueStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.lobby.Status())
}

func (h *Handler) Game(c *gin.Context) {
	s, err := h.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: game.ReasonCode(err)})
		return
	}
	c.JSON(http.StatusOK, s.View())
}

// statusFor maps a game error to its HTTP status.
func statusFor(err error) int {
	switch game.ReasonCode(err) {
	case "invalid_input":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "duplicate_submission", "duplicate_vote", "wrong_phase", "session_finished", "already_in_game":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func gameError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": game.ReasonCode(err), "message": err.Error()})
}

type SubmitPoemRequest struct {
	UserID string   `json:"userId" binding:"required"`
	Poem   poemBody `json:"poem"`
}

// SubmitPoem is the HTTP twin of the submit-poem socket event.
func (h *Handler) SubmitPoem(c *gin.Context) {
	var req SubmitPoemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	sub, err := h.ctrl.Submit(c.Param("id"), req.UserID, game.Lines(req.Poem.lines()))
	if err != nil {
		gameError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "poemId": sub.ID})
}

type VoteRequest struct {
	PoemID  string `json:"poemId" binding:"required"`
	VoterID string `json:"voterId" binding:"required"`
}

func (h *Handler) Vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if _, err := h.ctrl.Vote(c.Param("id"), req.VoterID, req.PoemID); err != nil {
		gameError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type StartBattleRequest struct {
	UserID     string `json:"userId" binding:"required"`
	Nickname   string `json:"nickname"`
	Rank       string `json:"rank"`
	Difficulty string `json:"difficulty"`
	Theme      string `json:"theme"`
}

// StartAIBattle opens an AI battle for a client without a socket. Game events
// are only delivered once the player resumes over Socket.IO.
func (h *Handler) StartAIBattle(c *gin.Context) {
	var req StartBattleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	view, err := h.lobby.StartAIBattle(game.Participant{
		ID:       req.UserID,
		Nickname: req.Nickname,
		Bracket:  game.Bracket(req.Rank),
	}, "", req.Theme, req.Difficulty)
	if err != nil {
		gameError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"game":        view,
		"personality": ai.PersonalityFor(game.NormalizeDifficulty(req.Difficulty)),
	})
}

type storedPoem struct {
	ID        string    `json:"poemId"`
	UserID    string    `json:"userId"`
	Lines     [3]string `json:"lines"`
	Votes     int       `json:"votes"`
	CreatedAt time.Time `json:"createdAt"`
}

type storedGame struct {
	ID        string       `json:"gameId"`
	Mode      string       `json:"mode"`
	Theme     string       `json:"theme"`
	Players   [2]string    `json:"players"`
	Status    string       `json:"status"`
	TimeLimit int          `json:"timeLimit"`
	WinnerID  string       `json:"winnerId,omitempty"`
	CreatedAt time.Time    `json:"startTime"`
	EndedAt   *time.Time   `json:"endTime,omitempty"`
	Poems     []storedPoem `json:"poems"`
}

// Results serves a session as it was recorded, including finished sessions
// that are no longer held in memory.
func (h *Handler) Results(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "history is not configured"})
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	rec, err := h.history.GetSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found"})
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("gameId", id).Msg("load session")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal"})
		return
	}
	subs, err := h.history.ListSubmissions(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("gameId", id).Msg("load poems")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal"})
		return
	}

	out := storedGame{
		ID:        rec.ID,
		Mode:      rec.Mode,
		Theme:     rec.Theme,
		Players:   rec.PlayerIDs,
		Status:    rec.Status,
		TimeLimit: int(rec.TimeLimit / time.Second),
		WinnerID:  rec.WinnerID,
		CreatedAt: rec.CreatedAt,
		Poems:     make([]storedPoem, 0, len(subs)),
	}
	if !rec.EndedAt.IsZero() {
		end := rec.EndedAt
		out.EndedAt = &end
	}
	for _, s := range subs {
		out.Poems = append(out.Poems, storedPoem{ID: s.ID, UserID: s.ParticipantID, Lines: s.Lines, Votes: s.Votes, CreatedAt: s.CreatedAt})
	}
	c.JSON(http.StatusOK, out)
}

type GeneratePoemRequest struct {
	Theme      string `json:"theme" binding:"required"`
	Difficulty string `json:"difficulty"`
	Style      string `json:"style"`
}

func (h *Handler) GeneratePoem(c *gin.Context) {
	var req GeneratePoemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	difficulty := game.NormalizeDifficulty(req.Difficulty)
	poem := h.poet.Generate(c.Request.Context(), ai.PoemRequest{Theme: req.Theme, Difficulty: difficulty, Style: req.Style})
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"poem":        poem,
		"personality": ai.PersonalityFor(difficulty),
	})
}

type poemBody struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
	Line3 string `json:"line3"`
}

func (p poemBody) lines() [3]string { return [3]string{p.Line1, p.Line2, p.Line3} }

type EvaluateRequest struct {
	Theme     string   `json:"theme" binding:"required"`
	HumanPoem poemBody `json:"humanPoem"`
	AIPoem    poemBody `json:"aiPoem"`
}

func (h *Handler) EvaluateBattle(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"evaluation": ai.Evaluate(req.HumanPoem.lines(), req.AIPoem.lines(), req.Theme),
	})
}

// ShareQR renders a PNG QR code for the share URL. With ?gameId= the code
// points at that game.
func (h *Handler) ShareQR(c *gin.Context) {
	target := h.shareURL
	if target == "" {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "share url is not configured"})
		return
	}
	if id := strings.TrimSpace(c.Query("gameId")); id != "" {
		target = strings.TrimRight(target, "/") + "/game/" + url.PathEscape(id)
	}
	png, err := qrcode.Encode(target, qrcode.Medium, qrSize)
	if err != nil {
		log.Warn().Err(err).Str("url", target).Msg("qr generation failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "qr generation failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
