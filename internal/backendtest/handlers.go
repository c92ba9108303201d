package backendtest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"srq20.org/internal/auth"
	"srq20.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	msgBadCredentials = "No active account found with the given credentials"
	msgNoCredentials  = "Authentication credentials were not provided."
	msgTokenInvalid   = "Given token not valid for any token type"
	msgStatsForbidden = "Você não tem permissão para acessar essas estatísticas."
	msgExportDenied   = "Você não tem permissão para exportar esses dados."
	msgBadFormat      = `Formato não suportado. Use "json" ou "csv".`
)

type ctxKey string

const userKey ctxKey = "backendtest_user"

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+APIPrefix+"/token/", s.handleToken)
	mux.HandleFunc("POST "+APIPrefix+"/registro/", s.handleRegister)
	mux.Handle("GET "+APIPrefix+"/usuarios/me/", s.withAuth(s.handleMe))
	mux.Handle("GET "+APIPrefix+"/srq20/", s.withAuth(s.handleQuestions))
	mux.Handle("POST "+APIPrefix+"/srq20/", s.withAuth(s.handleSubmit))
	mux.Handle("GET "+APIPrefix+"/avaliacoes/", s.withAuth(s.handleHistory))
	mux.Handle("GET "+APIPrefix+"/avaliacoes/estatisticas/", s.withAuth(s.handleStatistics))
	mux.Handle("GET "+APIPrefix+"/avaliacoes/export/", s.withAuth(s.handleExport))
	return logRequests(s.track(mux))
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// logRequests writes method, path, status and duration at debug level.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		obs.Logger().Debug("backendtest request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.code),
			zap.Duration("duration", time.Since(start)))
	})
}

// track counts every request and serves canned responses before routing.
func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := hitKey(r.Method, strings.TrimPrefix(r.URL.Path, APIPrefix))
		s.mu.Lock()
		s.hits[key]++
		canned, ok := s.canned[key]
		if ok {
			delete(s.canned, key)
		}
		s.mu.Unlock()

		if ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(canned.status)
			_, _ = io.WriteString(w, canned.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, msgNoCredentials)
			return
		}
		s.mu.Lock()
		iss := s.issuer
		s.mu.Unlock()

		claims, err := iss.Parse(token, auth.AccessToken)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, msgTokenInvalid)
			return
		}
		s.mu.Lock()
		u, ok := s.users[claims.Subject]
		s.mu.Unlock()
		if !ok || u.ID != claims.UserID {
			writeDetail(w, http.StatusUnauthorized, msgTokenInvalid)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, *u)))
	})
}

func currentUser(r *http.Request) User {
	u, _ := r.Context().Value(userKey).(User)
	return u
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	u, ok := s.users[req.Username]
	iss := s.issuer
	s.mu.Unlock()
	if !ok || auth.VerifyPassword(u.passwordHash, req.Password) != nil {
		writeDetail(w, http.StatusUnauthorized, msgBadCredentials)
		return
	}
	access, refresh, err := iss.IssuePair(u.ID, u.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Access: access, Refresh: refresh})
}

type registerRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Gender    string `json:"genero"`
	BirthDate string `json:"data_nascimento"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fieldErrs := map[string][]string{}
	s.mu.Lock()
	_, taken := s.users[req.Username]
	s.mu.Unlock()
	switch {
	case strings.TrimSpace(req.Username) == "":
		fieldErrs["username"] = append(fieldErrs["username"], "This field may not be blank.")
	case taken:
		fieldErrs["username"] = append(fieldErrs["username"], "A user with that username already exists.")
	}
	if strings.TrimSpace(req.Email) == "" {
		fieldErrs["email"] = append(fieldErrs["email"], "This field may not be blank.")
	}
	if utf8.RuneCountInString(req.Password) < 8 {
		fieldErrs["password"] = append(fieldErrs["password"], "This password is too short. It must contain at least 8 characters.")
	}
	if _, err := strconv.Atoi(req.Password); err == nil {
		fieldErrs["password"] = append(fieldErrs["password"], "This password is entirely numeric.")
	}
	if len(fieldErrs) == 0 && req.Password != req.Password2 {
		fieldErrs["password"] = []string{"As senhas não conferem"}
	}
	if len(fieldErrs) > 0 {
		writeJSON(w, http.StatusBadRequest, fieldErrs)
		return
	}

	u := s.AddUser(User{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Gender:    req.Gender,
		BirthDate: req.BirthDate,
	}, req.Password)
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sortedQuestions())
}

type submitRequest struct {
	Answers []struct {
		Question int64 `json:"pergunta"`
		Answer   bool  `json:"resposta"`
	} `json:"respostas"`
}

type submitResponse struct {
	Assessment assessment `json:"avaliacao"`
	Activities []Activity `json:"atividades_sugeridas"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	known := make(map[int64]struct{})
	for _, q := range s.sortedQuestions() {
		known[q.ID] = struct{}{}
	}
	score := 0
	for _, a := range req.Answers {
		if _, ok := known[a.Question]; !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Pergunta com ID %d não existe", a.Question))
			return
		}
		if a.Answer {
			score++
		}
	}

	u := currentUser(r)
	s.mu.Lock()
	rec := s.recordLocked(u.ID, score, s.now())
	activities := []Activity{}
	if rec.Band != BandNone {
		for _, act := range s.activities {
			if act.Band == rec.Band {
				activities = append(activities, act)
			}
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, submitResponse{Assessment: rec, Activities: activities})
}

type historyPage struct {
	Count    int          `json:"count"`
	Next     *string      `json:"next"`
	Previous *string      `json:"previous"`
	Results  []assessment `json:"results"`
}

// visible applies the backend rule: staff see every assessment, others their own.
func (s *Server) visible(u User) []assessment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]assessment, 0, len(s.assessments))
	for _, a := range s.assessments {
		if u.IsStaff || a.User == u.ID {
			out = append(out, a)
		}
	}
	return out
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	items := s.visible(currentUser(r))
	s.mu.Lock()
	size := s.pageSize
	s.mu.Unlock()
	if size <= 0 {
		writeJSON(w, http.StatusOK, items)
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeDetail(w, http.StatusNotFound, "Invalid page.")
			return
		}
		page = n
	}
	start := (page - 1) * size
	if start > len(items) || (start == len(items) && page > 1) {
		writeDetail(w, http.StatusNotFound, "Invalid page.")
		return
	}
	end := min(start+size, len(items))

	resp := historyPage{Count: len(items), Results: items[start:end]}
	if end < len(items) {
		next := s.pageURL(page + 1)
		resp.Next = &next
	}
	if page > 1 {
		prev := s.pageURL(page - 1)
		resp.Previous = &prev
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) pageURL(page int) string {
	return fmt.Sprintf("%s/avaliacoes/?page=%d", s.URL(), page)
}

type bandCount struct {
	Band  string `json:"nivel_sofrimento"`
	Total int    `json:"total"`
}

type genderStats struct {
	Gender *string `json:"usuario__genero"`
	Mean   float64 `json:"media"`
	Total  int     `json:"total"`
}

type statistics struct {
	Total     int           `json:"total_avaliacoes"`
	MeanScore *float64      `json:"media_pontuacao"`
	ByBand    []bandCount   `json:"distribuicao_niveis"`
	ByGender  []genderStats `json:"por_genero"`
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if !currentUser(r).IsStaff {
		writeError(w, http.StatusForbidden, msgStatsForbidden)
		return
	}

	s.mu.Lock()
	all := append([]assessment(nil), s.assessments...)
	genders := make(map[int64]string, len(s.users))
	for _, u := range s.users {
		genders[u.ID] = u.Gender
	}
	s.mu.Unlock()

	out := statistics{Total: len(all), ByBand: []bandCount{}, ByGender: []genderStats{}}
	if len(all) > 0 {
		sum := 0
		bands := map[string]int{}
		type agg struct{ sum, total int }
		byGender := map[string]*agg{}
		for _, a := range all {
			sum += a.Score
			bands[a.Band]++
			g := genders[a.User]
			if byGender[g] == nil {
				byGender[g] = &agg{}
			}
			byGender[g].sum += a.Score
			byGender[g].total++
		}
		mean := float64(sum) / float64(len(all))
		out.MeanScore = &mean

		for band, n := range bands {
			out.ByBand = append(out.ByBand, bandCount{Band: band, Total: n})
		}
		sort.Slice(out.ByBand, func(i, j int) bool { return out.ByBand[i].Band < out.ByBand[j].Band })

		keys := make([]string, 0, len(byGender))
		for g := range byGender {
			keys = append(keys, g)
		}
		sort.Strings(keys)
		for _, g := range keys {
			row := genderStats{Mean: float64(byGender[g].sum) / float64(byGender[g].total), Total: byGender[g].total}
			if g != "" {
				gender := g
				row.Gender = &gender
			}
			out.ByGender = append(out.ByGender, row)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type exportRow struct {
	ID       int64  `json:"id"`
	Username string `json:"usuario"`
	Score    int    `json:"pontuacao"`
	Band     string `json:"nivel"`
	Date     string `json:"data"`
	Gender   string `json:"genero"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !currentUser(r).IsStaff {
		writeError(w, http.StatusForbidden, msgExportDenied)
		return
	}
	format := strings.ToLower(r.URL.Query().Get("formato"))
	if format == "" {
		format = "json"
	}

	s.mu.Lock()
	byID := make(map[int64]*User, len(s.users))
	for _, u := range s.users {
		byID[u.ID] = u
	}
	rows := make([]exportRow, 0, len(s.assessments))
	for _, a := range s.assessments {
		u := byID[a.User]
		rows = append(rows, exportRow{
			ID:       a.ID,
			Username: u.Username,
			Score:    a.Score,
			Band:     a.Band,
			Date:     a.EvaluatedAt.Format("2006-01-02T15:04:05Z07:00"),
			Gender:   u.Gender,
		})
	}
	rawCSV := s.rawCSV
	s.mu.Unlock()

	switch format {
	case "json":
		writeJSON(w, http.StatusOK, rows)
	case "csv":
		var b strings.Builder
		cw := csv.NewWriter(&b)
		_ = cw.Write([]string{"ID", "Usuário", "Pontuação", "Nível de Sofrimento", "Data", "Gênero"})
		for _, row := range rows {
			_ = cw.Write([]string{strconv.FormatInt(row.ID, 10), row.Username, strconv.Itoa(row.Score), row.Band, row.Date, row.Gender})
		}
		cw.Flush()
		if rawCSV {
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, b.String())
			return
		}
		writeJSON(w, http.StatusOK, b.String())
	default:
		writeError(w, http.StatusBadRequest, msgBadFormat)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	if err := json.NewDecoder(reader).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeDetail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"detail": msg})
}
