package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"gwi.com/video-qa/internal/apperr"
	"gwi.com/video-qa/internal/core"
	"gwi.com/video-qa/internal/observability/logging"
	"gwi.com/video-qa/internal/store"
	"gwi.com/video-qa/internal/transcript"
)

const (
	defaultAnalyticsLimit = 20
	maxAnalyticsLimit     = 100
)

// AnalyticsLister reads back recorded answers, newest first.
type AnalyticsLister interface {
	ListAnalytics(ctx context.Context, videoID string, limit int) ([]store.AnalyticsRecord, error)
}

type APIHandler struct {
	answers     *core.AnswerService
	indexing    *core.IndexingService
	summaries   *core.SummaryService
	analytics   AnalyticsLister
	debugErrors bool
	logger      zerolog.Logger
}

func NewAPIHandler(answers *core.AnswerService, indexing *core.IndexingService, summaries *core.SummaryService, analytics AnalyticsLister, debugErrors bool) *APIHandler {
	return &APIHandler{
		answers:     answers,
		indexing:    indexing,
		summaries:   summaries,
		analytics:   analytics,
		debugErrors: debugErrors,
		logger:      logging.WithComponent("api"),
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and a message safe for callers.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Wrap(err, apperr.CodeInternal, "unexpected error")
	}
	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, status, ErrorResponse{Error: appErr.UserMessage(h.debugErrors), Code: appErr.Code.String()})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// IndexVideoRequest carries either decoded segments or raw SRT captions.
type IndexVideoRequest struct {
	Title          string               `json:"title"`
	Segments       []transcript.Segment `json:"segments,omitempty"`
	SRT            string               `json:"srt,omitempty"`
	ChunkSeconds   float64              `json:"chunk_seconds,omitempty"`
	OverlapSeconds *float64             `json:"overlap_seconds,omitempty"`
}

func (h *APIHandler) IndexVideoHandler(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")

	var req IndexVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	segments := req.Segments
	if req.SRT != "" {
		if len(segments) > 0 {
			http.Error(w, "Provide either segments or srt, not both", http.StatusBadRequest)
			return
		}
		parsed, err := transcript.ParseSRT(req.SRT)
		if err != nil {
			h.writeError(w, r, apperr.Wrap(err, apperr.CodeInput, "malformed srt: "+err.Error()))
			return
		}
		segments = parsed
	}

	res, err := h.indexing.IndexVideo(r.Context(), core.IndexRequest{
		VideoID:        videoID,
		Title:          req.Title,
		Segments:       segments,
		ChunkSeconds:   req.ChunkSeconds,
		OverlapSeconds: req.OverlapSeconds,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *APIHandler) IndexStatusHandler(w http.ResponseWriter, r *http.Request) {
	status, err := h.indexing.Status(r.Context(), chi.URLParam(r, "videoID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *APIHandler) DeleteIndexHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.indexing.DeleteVideoIndex(r.Context(), chi.URLParam(r, "videoID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AskVideoHandler answers a question scoped to the video in the path.
func (h *APIHandler) AskVideoHandler(w http.ResponseWriter, r *http.Request) {
	var req core.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.VideoID = chi.URLParam(r, "videoID")
	h.ask(w, r, req)
}

// AskHandler answers a question across every indexed video unless video_id is set.
func (h *APIHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	var req core.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.ask(w, r, req)
}

func (h *APIHandler) ask(w http.ResponseWriter, r *http.Request, req core.AskRequest) {
	answer, err := h.answers.Ask(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

type SummaryRequest struct {
	Summary string `json:"summary"`
}

type SummaryResponse struct {
	VideoID string `json:"video_id"`
	Summary string `json:"summary"`
}

func (h *APIHandler) SetSummaryHandler(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")

	var req SummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.summaries.SetSummary(r.Context(), videoID, req.Summary); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) GenerateSummaryHandler(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")

	summary, err := h.summaries.GenerateSummary(r.Context(), videoID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{VideoID: videoID, Summary: summary})
}

type ImproveChunkRequest struct {
	Text string `json:"text"`
}

// ImproveChunkHandler replaces one chunk's transcript text and re-embeds it.
func (h *APIHandler) ImproveChunkHandler(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	chunkIndex, err := strconv.Atoi(chi.URLParam(r, "chunkIndex"))
	if err != nil {
		h.writeError(w, r, apperr.Input("malformed chunk index %q", chi.URLParam(r, "chunkIndex")))
		return
	}

	var req ImproveChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	chunk, err := h.indexing.ImproveChunkText(r.Context(), videoID, chunkIndex, req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

// AnalyticsHandler lists the most recent answers recorded for a video. The optional
// limit query parameter is capped at 100.
func (h *APIHandler) AnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	if !core.ValidVideoID(videoID) {
		h.writeError(w, r, apperr.Input("malformed video id %q", videoID))
		return
	}

	limit := defaultAnalyticsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, r, apperr.Input("limit must be a positive integer"))
			return
		}
		limit = min(n, maxAnalyticsLimit)
	}

	records, err := h.analytics.ListAnalytics(r.Context(), videoID, limit)
	if err != nil {
		h.writeError(w, r, apperr.Wrap(err, apperr.CodeInternal, "failed to list analytics"))
		return
	}
	if records == nil {
		records = []store.AnalyticsRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
