package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"helpdesk/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/message" {
		s.handleSubmit(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/chats" {
		s.handleListRequests(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/operator_reply" {
		s.handleOperatorReply(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/answers" {
		s.handleListAnswers(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/delete_chat" {
		s.handleDelete(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/telegram" {
		s.handleResolveIdentity(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body SubmitInput
	if err := decodeBody(r, &body); err != nil {
		// Submission is deliberately permissive: an unparseable body
		// becomes an empty field bag instead of a rejection.
		body = SubmitInput{}
	}

	id, result, err := s.service.SubmitRequest(r.Context(), body)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "received",
		"id":           id,
		"notification": string(result.Outcome),
	})
}

func (s *HTTPServer) handleListRequests(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListActive(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, requestJSON(item))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleOperatorReply(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RequestID int64  `json:"request_id"`
		Reply     string `json:"reply"`
		Operator  string `json:"operator"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	result, err := s.service.ReplyToRequest(r.Context(), body.RequestID, body.Reply, body.Operator)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// The reply is durable even when the relay to the chat failed; the
	// outcome rides along for the operator panel to display.
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "sent",
		"notification": string(result.Outcome),
	})
}

func (s *HTTPServer) handleListAnswers(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListAnswers(r.Context(), r.URL.Query().Get("chat_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, map[string]any{
			"request_id": item.RequestID,
			"reply":      item.Text,
			"created_at": item.CreatedAt.UTC().Format(timeLayout),
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID     int64  `json:"id"`
		ChatID string `json:"chat_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if err := s.service.DeleteRequest(r.Context(), body.ID, body.ChatID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (s *HTTPServer) handleResolveIdentity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		InitData string `json:"init_data"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	identity, err := s.service.ResolveIdentity(body.InitData)
	if err != nil {
		// Machine-readable reason, never a 5xx: a bad assertion is a
		// client problem.
		writeError(w, http.StatusUnauthorized, "VERIFICATION_FAILED", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trusted":  true,
		"chat_id":  identity.DeliveryTarget(),
		"user_id":  identity.UserID,
		"raw_user": identity.RawUser,
		"raw_chat": identity.RawChat,
	})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records := s.service.SearchRequests(r.Context(), q, limit)

	payload := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		payload = append(payload, map[string]any{
			"id":           rec.ID,
			"user":         rec.Submitter,
			"organization": rec.Organization,
			"branch":       rec.Branch,
			"problem":      rec.Problem,
			"comment":      rec.Comment,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": payload, "query": q})
}

// timeLayout matches the second-precision format the operator panel and
// chat front-end already parse.
const timeLayout = "2006-01-02 15:04:05"

func requestJSON(item store.Request) map[string]any {
	return map[string]any{
		"id":           item.ID,
		"user":         item.Submitter,
		"phone":        item.Phone,
		"email":        item.Email,
		"organization": item.Organization,
		"branch":       item.Branch,
		"device":       item.Device,
		"problem":      item.Problem,
		"comment":      item.Comment,
		"chat_id":      item.ChatID,
		"created_at":   item.CreatedAt.UTC().Format(timeLayout),
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeDomainError(w http.ResponseWriter, err error) {
	var de *DomainError
	if errors.As(err, &de) {
		writeError(w, de.Status, de.Code, de.Message, de.Details)
		return
	}
	writeError(w, http.StatusInternalServerError, "STORE_ERROR", "Storage unavailable", nil)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}
