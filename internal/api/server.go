package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"classcast/internal/directory"
	"classcast/internal/lifecycle"
	"classcast/internal/registry"
	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

// Server is the REST boundary for class administration plus the health
// endpoint. No relay logic lives here; handlers translate HTTP to directory
// and registry calls.
type Server struct {
	directory *directory.Manager
	registry  *registry.Registry
	lifecycle *lifecycle.Manager
	store     interfaces.SessionStore
	handler   http.Handler
}

// NewServer creates the API server and sets up routing.
func NewServer(dir *directory.Manager, reg *registry.Registry, lc *lifecycle.Manager, store interfaces.SessionStore) *Server {
	s := &Server{
		directory: dir,
		registry:  reg,
		lifecycle: lc,
		store:     store,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/classes", s.createClass).Methods(http.MethodPost)
	router.HandleFunc("/api/classes", s.listClasses).Methods(http.MethodGet)
	router.HandleFunc("/api/classes/{code}", s.getClass).Methods(http.MethodGet)
	router.HandleFunc("/api/classes/{code}", s.updateClass).Methods(http.MethodPatch)
	router.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)

	s.handler = cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}).Handler(jsonMiddleware(router))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Request/Response types for JSON serialization

type CreateClassRequest struct {
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

type UpdateClassRequest struct {
	Active *bool `json:"active"`
}

type ClassResponse struct {
	Class       *types.Class `json:"class"`
	MemberCount int          `json:"member_count"`
}

type ListClassesResponse struct {
	Classes []ClassResponse `json:"classes"`
}

type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Store     string         `json:"store"`
	Relay     map[string]int `json:"relay"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// createClass handles POST /api/classes.
func (s *Server) createClass(w http.ResponseWriter, r *http.Request) {
	var req CreateClassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	class, err := s.directory.CreateClass(r.Context(), req.Name, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrInvalidClassName), errors.Is(err, directory.ErrInvalidClassCode):
			s.sendError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, directory.ErrCodeTaken):
			s.sendError(w, err.Error(), http.StatusConflict)
		default:
			log.Printf("Class creation failed: %v", err)
			s.sendError(w, "Failed to create class", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	s.writeJSON(w, ClassResponse{Class: class})
}

// getClass handles GET /api/classes/{code}.
func (s *Server) getClass(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	class, err := s.directory.GetClass(r.Context(), code)
	if err != nil {
		s.sendError(w, "Class not found", http.StatusNotFound)
		return
	}

	s.writeJSON(w, ClassResponse{
		Class:       class,
		MemberCount: s.registry.CountByClass(types.NormalizeClassCode(class.Code)),
	})
}

// listClasses handles GET /api/classes.
func (s *Server) listClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := s.directory.ListClasses(r.Context())
	if err != nil {
		log.Printf("Class listing failed: %v", err)
		s.sendError(w, "Failed to list classes", http.StatusInternalServerError)
		return
	}

	response := ListClassesResponse{Classes: make([]ClassResponse, len(classes))}
	for i, class := range classes {
		response.Classes[i] = ClassResponse{
			Class:       class,
			MemberCount: s.registry.CountByClass(types.NormalizeClassCode(class.Code)),
		}
	}

	s.writeJSON(w, response)
}

// updateClass handles PATCH /api/classes/{code}. Only the active flag is
// mutable; deactivation blocks new joins without evicting live sessions.
func (s *Server) updateClass(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	var req UpdateClassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Active == nil {
		s.sendError(w, "Field 'active' is required", http.StatusBadRequest)
		return
	}

	class, err := s.directory.SetActive(r.Context(), code, *req.Active)
	if err != nil {
		if errors.Is(err, directory.ErrClassNotFound) {
			s.sendError(w, "Class not found", http.StatusNotFound)
			return
		}
		log.Printf("Class update failed: %v", err)
		s.sendError(w, "Failed to update class", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, ClassResponse{
		Class:       class,
		MemberCount: s.registry.CountByClass(types.NormalizeClassCode(class.Code)),
	})
}

// healthCheck handles GET /health.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	storeStatus := "healthy"

	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		storeStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Store:     storeStatus,
		Relay:     s.lifecycle.GetStats(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	s.writeJSON(w, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	s.writeJSON(w, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// jsonMiddleware ensures proper content-type headers on all API responses.
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
