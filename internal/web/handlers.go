package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/book-expert/music-service/internal/audio"
	"github.com/book-expert/music-service/internal/core"
	"github.com/book-expert/music-service/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxFormBytes = 64 << 10

// Log messages.
const (
	logRequestFailed = "[%s] generation failed with status %d: %v"
	logRenderFailed  = "Failed to render page: %v"
	logWriteFailed   = "Failed to write response: %v"
)

// GenerateRequest is the JSON body of POST /api/generate. A missing duration
// selects the default.
type GenerateRequest struct {
	Description string `json:"description"`
	Duration    *int   `json:"duration,omitempty"`
}

// GenerateResponse is the JSON reply of POST /api/generate.
type GenerateResponse struct {
	RequestID    string           `json:"request_id"`
	Summary      pipeline.Summary `json:"summary"`
	AudioKey     string           `json:"audio_key"`
	AudioURL     string           `json:"audio_url"`
	DownloadHTML string           `json:"download_html"`
	SampleRate   int              `json:"sample_rate"`
	Samples      int              `json:"samples"`
	Cached       bool             `json:"cached"`
}

// ErrorResponse is the JSON reply for failed API requests.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error"`
}

// HealthResponse is the reply of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model,omitempty"`
}

type pageData struct {
	PageTitle   string
	Title       string
	Description string
	Duration    int
	MinDuration int
	MaxDuration int
	Error       string
	Result      *pipeline.Result
	SummaryJSON string
	AudioURL    string
}

func newPageData() pageData {
	return pageData{
		PageTitle:   PageTitle,
		Title:       Title,
		Duration:    core.DefaultDuration,
		MinDuration: core.MinDuration,
		MaxDuration: core.MaxDuration,
	}
}

// AudioURL returns the path that serves the artifact stored under key.
func AudioURL(key string) string {
	return "/audio/" + url.PathEscape(key)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	s.render(w, http.StatusOK, newPageData())
}

func (s *Server) handleGenerateForm(w http.ResponseWriter, r *http.Request) {
	data := newPageData()

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)

	err := r.ParseForm()
	if err != nil {
		data.Error = core.UserMessage(core.ErrInvalidRequest)
		s.render(w, http.StatusBadRequest, data)

		return
	}

	data.Description = r.PostFormValue("description")

	duration, err := parseDuration(r.PostFormValue("duration"))
	if err != nil {
		s.fail(r, http.StatusBadRequest, err)
		data.Error = core.UserMessage(err)
		s.render(w, http.StatusBadRequest, data)

		return
	}

	data.Duration = duration

	result, err := s.runner.Run(r.Context(), core.GenerationRequest{
		Description: data.Description,
		Duration:    duration,
	})
	if err != nil {
		status := StatusFor(err)
		s.fail(r, status, err)
		data.Error = core.UserMessage(err)
		s.render(w, status, data)

		return
	}

	summary, err := summaryJSON(result.Summary)
	if err != nil {
		s.fail(r, http.StatusInternalServerError, err)
		data.Error = core.UserMessage(err)
		s.render(w, http.StatusInternalServerError, data)

		return
	}

	data.Result = result
	data.SummaryJSON = summary
	data.AudioURL = AudioURL(result.Artifact.Key)
	s.render(w, http.StatusOK, data)
}

func (s *Server) handleGenerateAPI(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	var body GenerateRequest

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes))
	decoder.DisallowUnknownFields()

	err := decoder.Decode(&body)
	if err != nil {
		err = fmt.Errorf("%w: %w", core.ErrInvalidRequest, err)
		s.fail(r, http.StatusBadRequest, err)
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{RequestID: requestID, Error: core.UserMessage(err)})

		return
	}

	req := core.GenerationRequest{Description: body.Description, Duration: core.DefaultDuration}
	if body.Duration != nil {
		req.Duration = *body.Duration
	}

	result, err := s.runner.Run(r.Context(), req)
	if err != nil {
		status := StatusFor(err)
		s.fail(r, status, err)
		s.writeJSON(w, status, ErrorResponse{RequestID: requestID, Error: core.UserMessage(err)})

		return
	}

	s.writeJSON(w, http.StatusOK, GenerateResponse{
		RequestID:    requestID,
		Summary:      result.Summary,
		AudioKey:     result.Artifact.Key,
		AudioURL:     AudioURL(result.Artifact.Key),
		DownloadHTML: string(result.Link.HTML()),
		SampleRate:   result.Artifact.SampleRate,
		Samples:      result.Artifact.Samples,
		Cached:       result.Cached,
	})
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	data, err := s.runner.Open(r.Context(), key)
	if err != nil {
		status := StatusFor(err)
		s.fail(r, status, err)
		http.Error(w, core.UserMessage(err), status)

		return
	}

	w.Header().Set("Content-Type", audio.FormatWAV.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))

	if r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", pipeline.DownloadName))
	}

	_, writeErr := w.Write(data)
	if writeErr != nil {
		s.log.Warn(logWriteFailed, writeErr)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}

	if s.ready != nil {
		resp.Model = "ready"

		readyErr := s.ready(r.Context())
		if readyErr != nil {
			resp.Model = "unavailable"
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	err := s.page.Execute(w, data)
	if err != nil {
		s.log.Error(logRenderFailed, err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	err := enc.Encode(v)
	if err != nil {
		s.log.Warn(logWriteFailed, err)
	}
}

func (s *Server) fail(r *http.Request, status int, err error) {
	s.log.Warn(logRequestFailed, middleware.GetReqID(r.Context()), status, err)
}

// parseDuration reads the slider value; an empty value selects the default.
func parseDuration(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return core.DefaultDuration, nil
	}

	duration, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: duration '%s' is not a number", core.ErrDurationRange, value)
	}

	return duration, nil
}

// summaryJSON renders the echo block verbatim; the page template escapes it.
func summaryJSON(summary pipeline.Summary) (string, error) {
	var buf strings.Builder

	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(summary)
	if err != nil {
		return "", fmt.Errorf("failed to encode summary: %w", err)
	}

	return strings.TrimSuffix(buf.String(), "\n"), nil
}
