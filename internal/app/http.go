package app

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"postpilot/internal/document"
	"postpilot/internal/util"
)

type HTTPServer struct {
	service   *Service
	syncToken string
}

func NewHTTPServer(service *Service, syncToken string) *HTTPServer {
	return &HTTPServer{service: service, syncToken: syncToken}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]any)
		for name, err := range s.service.Ping(ctx) {
			if err != nil {
				status = http.StatusServiceUnavailable
				checks[name] = map[string]any{"status": "error", "error": err.Error()}
				continue
			}
			checks[name] = map[string]any{"status": "ok"}
		}
		writeJSON(w, status, map[string]any{"ok": status == http.StatusOK, "checks": checks})
		return
	}

	// Everything below mutates or exposes the document; the shared sync
	// token gates it.
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid sync token", nil)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/document":
		doc, err := s.service.Document(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)

	case r.Method == http.MethodPost && r.URL.Path == "/api/sync":
		var client document.Document
		if err := decodeBody(r, &client); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		merged, err := s.service.Sync(r.Context(), client)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, merged)

	case r.Method == http.MethodGet && r.URL.Path == "/api/history":
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		versions, err := s.service.History(limit)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": versions})

	case r.Method == http.MethodPost && r.URL.Path == "/api/run":
		summary := s.service.RunScheduled(r.Context())
		writeJSON(w, http.StatusOK, summary)

	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/slots/") && strings.HasSuffix(r.URL.Path, "/publish"):
		slotID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/slots/"), "/publish")
		if slotID == "" || strings.Contains(slotID, "/") {
			writeError(w, http.StatusBadRequest, "INVALID_SLOT_ID", "Malformed slot id", nil)
			return
		}
		result, err := s.service.PublishSlotNow(r.Context(), slotID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Unknown route", nil)
	}
}

func (s *HTTPServer) authorized(r *http.Request) bool {
	token := bearerToken(r)
	if token == "" || s.syncToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.syncToken)) == 1
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
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

func writeDomainError(w http.ResponseWriter, err error) {
	var domain *DomainError
	if errors.As(err, &domain) {
		writeError(w, domain.Status, domain.Code, domain.Message, domain.Details)
		return
	}
	writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
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

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return fmt.Errorf("empty body")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
