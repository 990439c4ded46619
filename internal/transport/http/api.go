package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"event-trivia-service/internal/app"
	"event-trivia-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// API exposes the quiz use cases over JSON/HTTP.
type API struct {
	service  *app.QuizService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewAPI(service *app.QuizService, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{service: service, validate: validator.New(), logger: logger}
}

// Routes registers the REST endpoints on mux.
func (a *API) Routes(mux *http.ServeMux) {
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"POST /games/{gameId}/players", a.registerPlayer},
		{"GET /games/{gameId}/players/{playerId}", a.getPlayer},
		{"POST /games/{gameId}/answers", a.submitAnswer},
		{"PUT /games/{gameId}/phase", a.setPhase},
		{"GET /games/{gameId}/phase", a.getPhase},
		{"GET /games/{gameId}/leaderboard", a.leaderboard},
		{"GET /games/{gameId}/recent", a.recent},
		{"GET /games/{gameId}/stats", a.stats},
		{"GET /games/{gameId}/results", a.results},
		{"POST /games/{gameId}/reload", a.reloadGame},
	}
	for _, rt := range routes {
		mux.HandleFunc(rt.pattern, instrument(rt.pattern, rt.handler))
	}
}

type registerRequest struct {
	PlayerID    string `json:"playerId" validate:"required,max=128"`
	DisplayName string `json:"displayName" validate:"max=64"`
	BranchID    string `json:"branchId" validate:"max=64"`
}

type answerRequest struct {
	GameID         string `json:"gameId"` // optional; must match the path when set
	PlayerID       string `json:"playerId" validate:"required,max=128"`
	QuestionID     string `json:"questionId" validate:"required"`
	QuestionIndex  *int   `json:"questionIndex" validate:"required,gte=0"`
	AnswerID       string `json:"answerId" validate:"required"`
	ResponseTimeMs *int64 `json:"responseTimeMs" validate:"required,gte=0"`
}

func (r answerRequest) submission(gameID string) domain.AnswerSubmission {
	return domain.AnswerSubmission{
		GameID:         gameID,
		PlayerID:       r.PlayerID,
		QuestionID:     r.QuestionID,
		QuestionIndex:  *r.QuestionIndex,
		AnswerID:       r.AnswerID,
		ResponseTimeMs: *r.ResponseTimeMs,
	}
}

type reloadResponse struct {
	GameID          string `json:"gameId"`
	Title           string `json:"title,omitempty"`
	ActiveQuestions int    `json:"activeQuestions"`
}

type phaseRequest struct {
	Phase string `json:"phase" validate:"required,oneof=waiting active finished"`
}

type phaseResponse struct {
	GameID string           `json:"gameId"`
	Phase  domain.GamePhase `json:"phase"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

func (a *API) registerPlayer(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := a.decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	player, err := a.service.RegisterPlayer(r.Context(), app.RegisterInput{
		GameID:      r.PathValue("gameId"),
		PlayerID:    req.PlayerID,
		DisplayName: req.DisplayName,
		BranchID:    req.BranchID,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, player)
}

func (a *API) getPlayer(w http.ResponseWriter, r *http.Request) {
	player, err := a.service.Player(r.Context(), r.PathValue("gameId"), r.PathValue("playerId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

func (a *API) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := a.decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	gameID := r.PathValue("gameId")
	if req.GameID != "" && req.GameID != gameID {
		a.writeError(w, r, fmt.Errorf("%w: gameId does not match path", domain.ErrInvalidRequest))
		return
	}
	result, err := a.service.SubmitAnswer(r.Context(), req.submission(gameID))
	observeAnswer("http", result, err)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) reloadGame(w http.ResponseWriter, r *http.Request) {
	game, err := a.service.ReloadGame(r.Context(), r.PathValue("gameId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{
		GameID:          game.ID,
		Title:           game.Title,
		ActiveQuestions: game.ActiveQuestionCount(),
	})
}

func (a *API) setPhase(w http.ResponseWriter, r *http.Request) {
	var req phaseRequest
	if err := a.decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	gameID := r.PathValue("gameId")
	if err := a.service.SetPhase(r.Context(), gameID, domain.GamePhase(req.Phase)); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.logger.Info("game phase changed", zap.String("game_id", gameID), zap.String("phase", req.Phase))
	writeJSON(w, http.StatusOK, phaseResponse{GameID: gameID, Phase: domain.GamePhase(req.Phase)})
}

func (a *API) getPhase(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("gameId")
	phase, err := a.service.Phase(r.Context(), gameID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, phaseResponse{GameID: gameID, Phase: phase})
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	lb, err := a.service.Leaderboard(r.Context(), r.PathValue("gameId"), r.URL.Query().Get("branch"), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (a *API) recent(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	entries, err := a.service.RecentCompletions(r.Context(), r.PathValue("gameId"), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.Stats(r.Context(), r.PathValue("gameId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) results(w http.ResponseWriter, r *http.Request) {
	players, err := a.service.Results(r.Context(), r.PathValue("gameId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

func (a *API) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidRequest, err)
	}
	return a.check(dst)
}

func (a *API) check(v any) error {
	err := a.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", lowerFirst(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: invalid %s", domain.ErrInvalidRequest, strings.Join(fields, ", "))
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	status := statusFor(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeInvalidRequest, domain.CodeUnknownBranch:
		return http.StatusBadRequest
	case domain.CodeGameNotFound, domain.CodePlayerNotFound, domain.CodeQuestionNotFound:
		return http.StatusNotFound
	case domain.CodeGameNotActive, domain.CodeAlreadyAnswered, domain.CodePlayerExists:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", domain.ErrInvalidRequest)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
