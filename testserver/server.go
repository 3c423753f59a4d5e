// Package testserver provides a scriptable stand-in for the promo API.
package testserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Options shapes how the fake API behaves. Zero values give a server that
// grants on the first registration and never throttles.
type Options struct {
	// GrantAfter is the number of register-event calls a session needs
	// before hasCode turns true. Values below 1 mean 1.
	GrantAfter int
	// RateLimitEvery answers every Nth register-event call (server-wide)
	// with tooManyRegister. 0 disables.
	RateLimitEvery int
	// SessionUses expires a client token after N register-event calls; the
	// next call answers UnauthorizedClient. 0 disables.
	SessionUses int
	// WithholdEvery answers every Nth create-code call with a null promoCode. 0 disables.
	WithholdEvery int
	// AppTokens restricts logins to these app tokens. Empty accepts any.
	AppTokens []string
	// CodePrefix is prepended to generated codes.
	CodePrefix string
	// Latency delays every response.
	Latency time.Duration
}

// Stats counts requests seen by the server.
type Stats struct {
	Logins         int64
	Registers      int64
	RateLimited    int64
	Unauthorized   int64
	CodesIssued    int64
	CodesWithheld  int64
	ActiveSessions int
}

type session struct {
	promoID    string
	registered int
	granted    bool
}

// Server is the fake promo API.
type Server struct {
	mux  *http.ServeMux
	opts Options

	mu       sync.Mutex
	sessions map[string]*session

	logins        atomic.Int64
	registers     atomic.Int64
	rateLimited   atomic.Int64
	unauthorized  atomic.Int64
	creates       atomic.Int64
	codesIssued   atomic.Int64
	codesWithheld atomic.Int64
}

// NewServer creates a new fake API with all endpoints configured.
func NewServer(opts Options) *Server {
	if opts.GrantAfter < 1 {
		opts.GrantAfter = 1
	}
	if opts.CodePrefix == "" {
		opts.CodePrefix = "PROMO"
	}
	s := &Server{
		mux:      http.NewServeMux(),
		opts:     opts,
		sessions: make(map[string]*session),
	}
	s.registerHandlers()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/promo/login-client", s.handleLogin)
	s.mux.HandleFunc("/promo/register-event", s.handleRegisterEvent)
	s.mux.HandleFunc("/promo/create-code", s.handleCreateCode)
}

// Stats returns a snapshot of the request counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	active := len(s.sessions)
	s.mu.Unlock()
	return Stats{
		Logins:         s.logins.Load(),
		Registers:      s.registers.Load(),
		RateLimited:    s.rateLimited.Load(),
		Unauthorized:   s.unauthorized.Load(),
		CodesIssued:    s.codesIssued.Load(),
		CodesWithheld:  s.codesWithheld.Load(),
		ActiveSessions: active,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.accept(w, r) {
		return
	}
	var req struct {
		AppToken     string `json:"appToken"`
		ClientID     string `json:"clientId"`
		ClientOrigin string `json:"clientOrigin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AppToken == "" || req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "appToken and clientId are required")
		return
	}
	if !s.knownApp(req.AppToken) {
		writeError(w, http.StatusBadRequest, "BadAppToken", "unknown app token")
		return
	}

	s.logins.Add(1)
	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = &session{}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"clientToken": token})
}

func (s *Server) handleRegisterEvent(w http.ResponseWriter, r *http.Request) {
	if !s.accept(w, r) {
		return
	}
	var req struct {
		PromoID     string `json:"promoId"`
		EventID     string `json:"eventId"`
		EventOrigin string `json:"eventOrigin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PromoID == "" || req.EventID == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "promoId and eventId are required")
		return
	}
	if _, err := uuid.Parse(req.EventID); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "eventId must be a UUID")
		return
	}

	n := s.registers.Add(1)
	token := bearer(r)

	s.mu.Lock()
	sess, ok := s.sessions[token]
	if ok && s.opts.SessionUses > 0 && sess.registered >= s.opts.SessionUses {
		delete(s.sessions, token)
		ok = false
	}
	if !ok {
		s.mu.Unlock()
		s.unauthorized.Add(1)
		writeError(w, http.StatusUnauthorized, "UnauthorizedClient", "client token is not valid")
		return
	}
	if s.opts.RateLimitEvery > 0 && n%int64(s.opts.RateLimitEvery) == 0 {
		s.mu.Unlock()
		s.rateLimited.Add(1)
		writeError(w, http.StatusBadRequest, "TooManyRegister", "too many register event requests")
		return
	}
	sess.promoID = req.PromoID
	sess.registered++
	if sess.registered >= s.opts.GrantAfter {
		sess.granted = true
	}
	hasCode := sess.granted
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"hasCode": hasCode})
}

func (s *Server) handleCreateCode(w http.ResponseWriter, r *http.Request) {
	if !s.accept(w, r) {
		return
	}
	var req struct {
		PromoID string `json:"promoId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PromoID == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "promoId is required")
		return
	}

	token := bearer(r)
	s.mu.Lock()
	sess, ok := s.sessions[token]
	if !ok {
		s.mu.Unlock()
		s.unauthorized.Add(1)
		writeError(w, http.StatusUnauthorized, "UnauthorizedClient", "client token is not valid")
		return
	}
	if !sess.granted || sess.promoID != req.PromoID {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "NoEligibility", "register more events first")
		return
	}
	// eligibility is spent either way
	sess.granted = false
	sess.registered = 0
	s.mu.Unlock()

	n := s.creates.Add(1)
	if s.opts.WithholdEvery > 0 && n%int64(s.opts.WithholdEvery) == 0 {
		s.codesWithheld.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"promoCode": nil})
		return
	}

	issued := s.codesIssued.Add(1)
	code := fmt.Sprintf("%s-%s-%04d", s.opts.CodePrefix, strings.ToUpper(uuid.NewString()[:4]), issued)
	writeJSON(w, http.StatusOK, map[string]any{"promoCode": code})
}

// accept applies the method check and the configured latency.
func (s *Server) accept(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if s.opts.Latency > 0 {
		select {
		case <-time.After(s.opts.Latency):
		case <-r.Context().Done():
			return false
		}
	}
	return true
}

func (s *Server) knownApp(appToken string) bool {
	if len(s.opts.AppTokens) == 0 {
		return true
	}
	for _, t := range s.opts.AppTokens {
		if t == appToken {
			return true
		}
	}
	return false
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error_code": code, "error_message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
