// Package devicetest provides an in-process fake of the NodeMCU OTA HTTP
// service for tests.
package devicetest

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MaxUploadSize is the largest file body the server accepts
const MaxUploadSize = 4 << 20

// Server is a fake device holding an in-memory file store
type Server struct {
	*httptest.Server

	User     string
	Password string

	mu          sync.Mutex
	version     any
	names       []string
	files       map[string][]byte
	failRelease int
	failUpload  map[string]int
	failRestart int
	uploads     []string
	restarts    int
}

// NewServer starts a fake device that is closed when the test ends
func NewServer(t *testing.T, user, password string) *Server {
	t.Helper()

	s := &Server{
		User:       user,
		Password:   password,
		version:    "test-1.0",
		files:      make(map[string][]byte),
		failUpload: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ota", s.handleOTA)
	mux.HandleFunc("/ota/", s.handleUpload)
	s.Server = httptest.NewServer(s.authenticate(mux))
	t.Cleanup(s.Close)

	return s
}

// SetVersion sets the value returned by GET /ota?version, encoded as JSON
func (s *Server) SetVersion(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

// PutFile stores a file as if it had been uploaded earlier
func (s *Server) PutFile(name string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(name, content)
}

// File returns the stored content of name
func (s *Server) File(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[name]
	return b, ok
}

// FailRelease makes GET /ota?release answer with status code
func (s *Server) FailRelease(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRelease = code
}

// FailUpload makes uploads of name answer with status code
func (s *Server) FailUpload(name string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpload[name] = code
}

// FailRestart makes restart requests answer with status code
func (s *Server) FailRestart(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRestart = code
}

// Uploads returns the names of accepted uploads, in order
func (s *Server) Uploads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.uploads))
	copy(out, s.uploads)
	return out
}

// Restarts returns the number of accepted restart requests
func (s *Server) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Manifest renders the stored files the way the device firmware does:
// one "<md5> <name>" line per file, in storage order.
func (s *Server) Manifest() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manifestLocked()
}

func (s *Server) manifestLocked() string {
	var b strings.Builder
	for _, name := range s.names {
		sum := md5.Sum(s.files[name])
		fmt.Fprintf(&b, "%s %s\n", hex.EncodeToString(sum[:]), name)
	}
	return b.String()
}

func (s *Server) putLocked(name string, content []byte) {
	if _, exists := s.files[name]; !exists {
		s.names = append(s.names, name)
	}
	s.files[name] = content
}

// authenticate rejects requests without the configured basic auth
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.User)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.Password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="ota"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleOTA serves /ota?version, /ota?release and /ota?restart
func (s *Server) handleOTA(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.URL.RawQuery {
	case "version":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.version)

	case "release":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.failRelease != 0 {
			http.Error(w, "release unavailable", s.failRelease)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, s.manifestLocked())

	case "restart":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.failRestart != 0 {
			http.Error(w, "restart failed", s.failRestart)
			return
		}
		s.restarts++
		w.WriteHeader(http.StatusOK)

	default:
		http.Error(w, "Unknown request", http.StatusBadRequest)
	}
}

// handleUpload serves POST /ota/<name>
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/ota/")
	if name == "" {
		http.Error(w, "Missing file name", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxUploadSize+1))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	if len(body) > MaxUploadSize {
		http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if code := s.failUpload[name]; code != 0 {
		http.Error(w, "upload failed", code)
		return
	}

	s.putLocked(name, body)
	s.uploads = append(s.uploads, name)
	w.WriteHeader(http.StatusOK)
}
