package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	recaptcha "github.com/goliatone/go-recaptcha"
	"github.com/goliatone/go-recaptcha/core"
	"github.com/goliatone/go-recaptcha/middleware"
	rquery "github.com/goliatone/go-recaptcha/query"
)

const maxRequestBody = 64 << 10

type server struct {
	facade          *recaptcha.Facade
	logger          glog.Logger
	metrics         http.Handler
	rateLimit       int
	rateWindow      time.Duration
	protectedAction string
}

func (s *server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if s.rateLimit > 0 {
			r.Use(httprate.Limit(
				s.rateLimit,
				s.rateWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				}),
			))
		}
		r.Post("/verify", s.handleVerify)
		r.Get("/verifications", s.handleListVerifications)
		r.With(middleware.ForAction(s.facade.Verifier(), s.protectedAction)).
			Post("/protected", s.handleProtected)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type verifyRequest struct {
	Token       string           `json:"token"`
	RemoteIP    string           `json:"remote_ip"`
	Constraints core.Constraints `json:"constraints"`
}

type verifyResponse struct {
	Valid  bool        `json:"valid"`
	Result core.Result `json:"result"`
}

func (s *server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be a JSON object")
		return
	}
	if strings.TrimSpace(req.RemoteIP) == "" {
		req.RemoteIP = middleware.RemoteIP(r)
	}

	result, err := s.facade.Queries().CheckToken.Query(r.Context(), rquery.CheckTokenMessage{
		Token:       req.Token,
		RemoteIP:    req.RemoteIP,
		Constraints: req.Constraints,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Valid: result.Valid(), Result: result})
}

type verificationItem struct {
	ID          string         `json:"id"`
	Transport   string         `json:"transport"`
	RemoteIP    string         `json:"remote_ip,omitempty"`
	Valid       bool           `json:"valid"`
	Success     bool           `json:"success"`
	ErrorCodes  []string       `json:"error_codes"`
	Hostname    string         `json:"hostname,omitempty"`
	Action      string         `json:"action,omitempty"`
	Score       *float64       `json:"score,omitempty"`
	ChallengeTS string         `json:"challenge_ts,omitempty"`
	Constraints map[string]any `json:"constraints,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
	CreatedAt   time.Time      `json:"created_at"`
}

type verificationList struct {
	Items   []verificationItem `json:"items"`
	Page    int                `json:"page"`
	PerPage int                `json:"per_page"`
	Total   int                `json:"total"`
	HasNext bool               `json:"has_next"`
}

func (s *server) handleListVerifications(w http.ResponseWriter, r *http.Request) {
	list := s.facade.Queries().ListVerifications
	if list == nil {
		writeError(w, http.StatusNotImplemented, "AUDIT_LOG_DISABLED", "verification audit log is not configured")
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FILTER", err.Error())
		return
	}
	page, err := list.Query(r.Context(), rquery.ListVerificationsMessage{Filter: filter})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := verificationList{
		Items:   make([]verificationItem, 0, len(page.Items)),
		Page:    page.Page,
		PerPage: page.PerPage,
		Total:   page.Total,
		HasNext: page.HasNext,
	}
	for _, record := range page.Items {
		codes := record.ErrorCodes
		if codes == nil {
			codes = []string{}
		}
		out.Items = append(out.Items, verificationItem{
			ID:          record.ID,
			Transport:   record.Transport,
			RemoteIP:    record.RemoteIP,
			Valid:       record.Valid,
			Success:     record.Success,
			ErrorCodes:  codes,
			Hostname:    record.Hostname,
			Action:      record.Action,
			Score:       record.Score,
			ChallengeTS: record.ChallengeTS,
			Constraints: record.Constraints,
			DurationMS:  record.DurationMS,
			CreatedAt:   record.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleProtected(w http.ResponseWriter, r *http.Request) {
	result, _ := middleware.ResultFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"accepted": true,
		"score":    result.Score,
		"action":   result.Action,
	})
}

func filterFromQuery(r *http.Request) (core.VerificationFilter, error) {
	values := r.URL.Query()
	filter := core.VerificationFilter{
		RemoteIP:  strings.TrimSpace(values.Get("remote_ip")),
		Hostname:  strings.TrimSpace(values.Get("hostname")),
		Action:    strings.TrimSpace(values.Get("action")),
		ErrorCode: strings.TrimSpace(values.Get("error_code")),
	}
	if raw := strings.TrimSpace(values.Get("valid")); raw != "" {
		valid, err := strconv.ParseBool(raw)
		if err != nil {
			return core.VerificationFilter{}, errors.New("valid must be a boolean")
		}
		filter.Valid = &valid
	}
	for key, target := range map[string]*int{"page": &filter.Page, "per_page": &filter.PerPage} {
		raw := strings.TrimSpace(values.Get(key))
		if raw == "" {
			continue
		}
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return core.VerificationFilter{}, errors.New(key + " must be an integer")
		}
		*target = parsed
	}
	for key, target := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := strings.TrimSpace(values.Get(key))
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return core.VerificationFilter{}, errors.New(key + " must be an RFC3339 timestamp")
		}
		*target = &parsed
	}
	return filter, nil
}

func (s *server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	textCode := "INTERNAL_ERROR"
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Code > 0 {
			status = richErr.Code
		}
		if richErr.TextCode != "" {
			textCode = richErr.TextCode
		}
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err.Error())
	}
	writeError(w, status, textCode, err.Error())
}

func writeError(w http.ResponseWriter, status int, textCode string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"text_code": textCode,
			"message":   message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
