// Package backendtest runs an in-process SRQ-20 backend over httptest for
// package and command tests. It speaks the same REST contract as the real
// service: SimpleJWT-style token pairs, DRF-style pagination and error bodies.
package backendtest

import (
	"crypto/rand"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"srq20.org/internal/auth"
)

// APIPrefix is where the REST routes are mounted.
const APIPrefix = "/api"

// User is an account known to the fake backend.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Gender    string `json:"genero,omitempty"`
	BirthDate string `json:"data_nascimento,omitempty"`
	IsStaff   bool   `json:"is_staff"`

	passwordHash string
}

type assessment struct {
	ID          int64     `json:"id"`
	User        int64     `json:"usuario"`
	Score       int       `json:"pontuacao_total"`
	Band        string    `json:"nivel_sofrimento"`
	EvaluatedAt time.Time `json:"data_avaliacao"`
}

type cannedResponse struct {
	status int
	body   string
}

// Server is the fake backend. All methods are safe for concurrent use.
type Server struct {
	srv *httptest.Server

	mu          sync.Mutex
	issuer      *auth.Issuer
	users       map[string]*User
	nextUserID  int64
	questions   []Question
	activities  []Activity
	assessments []assessment
	nextAssess  int64
	hits        map[string]int
	canned      map[string]cannedResponse
	pageSize    int
	rawCSV      bool
	now         func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithQuestions replaces the default question set.
func WithQuestions(qs []Question) Option {
	return func(s *Server) { s.questions = append([]Question(nil), qs...) }
}

// WithPageSize sets the history page size. Zero disables pagination and the
// history endpoint answers with a bare array.
func WithPageSize(n int) Option {
	return func(s *Server) { s.pageSize = n }
}

// WithRawCSV serves CSV exports as text/csv instead of a JSON string literal.
func WithRawCSV() Option {
	return func(s *Server) { s.rawCSV = true }
}

// WithClock fixes assessment timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New starts a Server and closes it when t finishes.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		users:      make(map[string]*User),
		questions:  DefaultQuestions(),
		activities: DefaultActivities(),
		hits:       make(map[string]int),
		canned:     make(map[string]cannedResponse),
		pageSize:   10,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.issuer = newIssuer(t)
	s.srv = httptest.NewServer(s.routes())
	t.Cleanup(s.srv.Close)
	return s
}

func newIssuer(t testing.TB) *auth.Issuer {
	t.Helper()
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("backendtest: secret: %v", err)
	}
	iss, err := auth.NewIssuer(secret)
	if err != nil {
		t.Fatalf("backendtest: issuer: %v", err)
	}
	return iss
}

// URL is the API base URL clients should be configured with.
func (s *Server) URL() string { return s.srv.URL + APIPrefix }

// Close stops the server early.
func (s *Server) Close() { s.srv.Close() }

// AddUser registers an account and returns it with its assigned id.
func (s *Server) AddUser(u User, password string) User {
	hash, err := auth.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID++
	u.ID = s.nextUserID
	u.passwordHash = hash
	stored := u
	s.users[u.Username] = &stored
	return u
}

// RevokeTokens rotates the signing secret so every issued token is rejected
// with 401 from now on.
func (s *Server) RevokeTokens(t testing.TB) {
	iss := newIssuer(t)
	s.mu.Lock()
	s.issuer = iss
	s.mu.Unlock()
}

// IssueTokens returns a valid access/refresh pair for an existing user.
func (s *Server) IssueTokens(t testing.TB, username string) (access, refresh string) {
	t.Helper()
	s.mu.Lock()
	u, ok := s.users[username]
	iss := s.issuer
	s.mu.Unlock()
	if !ok {
		t.Fatalf("backendtest: unknown user %q", username)
	}
	access, refresh, err := iss.IssuePair(u.ID, u.Username)
	if err != nil {
		t.Fatalf("backendtest: issue: %v", err)
	}
	return access, refresh
}

// RespondOnce makes the next request to method+path (path relative to
// APIPrefix, e.g. "/srq20/") return status and body verbatim.
func (s *Server) RespondOnce(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canned[hitKey(method, path)] = cannedResponse{status: status, body: body}
}

// Hits reports how many requests reached method+path (relative to APIPrefix).
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[hitKey(method, path)]
}

// TotalHits reports the number of requests served.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

// AssessmentCount reports how many submissions were scored.
func (s *Server) AssessmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.assessments)
}

// SeedAssessment records a past assessment for username.
func (s *Server) SeedAssessment(username string, score int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		panic("backendtest: unknown user " + username)
	}
	s.recordLocked(u.ID, score, at)
}

func (s *Server) recordLocked(userID int64, score int, at time.Time) assessment {
	s.nextAssess++
	a := assessment{
		ID:          s.nextAssess,
		User:        userID,
		Score:       score,
		Band:        BandForScore(score),
		EvaluatedAt: at.UTC(),
	}
	s.assessments = append(s.assessments, a)
	return a
}

func (s *Server) sortedQuestions() []Question {
	s.mu.Lock()
	qs := append([]Question(nil), s.questions...)
	s.mu.Unlock()
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
	return qs
}

func hitKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}
