// Package reports exposes the staff-only aggregate views: assessment
// statistics and the raw data export.
package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"srq20.org/internal/apiclient"
	"srq20.org/internal/audit"
	"srq20.org/internal/questionnaire"
	"srq20.org/internal/session"
)

// ErrPermissionDenied is returned, without contacting the backend, when the
// cached profile is missing or not staff.
var ErrPermissionDenied = errors.New("reports: staff access required")

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// FormatError is a local rejection of an export format.
type FormatError struct {
	Format string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("reports: unsupported export format %q, use json or csv", e.Format)
}

// API is the part of the request client reports use.
type API interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
	Download(ctx context.Context, req apiclient.Request, w io.Writer) (string, error)
}

// UserSource yields the cached profile.
type UserSource interface {
	CurrentUser() *session.Profile
}

// BandCount is the number of assessments in one band.
type BandCount struct {
	Band  questionnaire.Band `json:"nivel_sofrimento"`
	Total int                `json:"total"`
}

// GenderStats aggregates scores per gender. Gender is nil for users without one.
type GenderStats struct {
	Gender *string `json:"usuario__genero"`
	Mean   float64 `json:"media"`
	Total  int     `json:"total"`
}

// Statistics is the aggregate view. MeanScore is nil when there are no assessments.
type Statistics struct {
	Total     int           `json:"total_avaliacoes"`
	MeanScore *float64      `json:"media_pontuacao"`
	ByBand    []BandCount   `json:"distribuicao_niveis"`
	ByGender  []GenderStats `json:"por_genero"`
}

// Service runs report requests for the current user.
type Service struct {
	api   API
	users UserSource
}

// New returns a Service.
func New(api API, users UserSource) *Service {
	return &Service{api: api, users: users}
}

func (s *Service) authorize() error {
	p := s.users.CurrentUser()
	if p == nil || !p.IsStaff {
		return ErrPermissionDenied
	}
	return nil
}

// Statistics loads the aggregate statistics.
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	if err := s.authorize(); err != nil {
		return nil, err
	}
	var out Statistics
	if err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/avaliacoes/estatisticas/"}, &out); err != nil {
		return nil, fmt.Errorf("reports: statistics: %w", err)
	}
	return &out, nil
}

// Export writes every assessment to w in format. CSV delivered as a JSON
// string literal is unquoted first.
func (s *Service) Export(ctx context.Context, format string, w io.Writer) error {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != FormatJSON && format != FormatCSV {
		return &FormatError{Format: format}
	}
	if err := s.authorize(); err != nil {
		return err
	}

	var buf bytes.Buffer
	_, err := s.api.Download(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/avaliacoes/export/",
		Query:  url.Values{"formato": {format}},
	}, &buf)
	if err != nil {
		return fmt.Errorf("reports: export: %w", err)
	}

	body := buf.Bytes()
	if format == FormatCSV {
		body = unquoteCSV(body)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("reports: write export: %w", err)
	}
	_ = audit.LogEvent(ctx, "reports.exported", map[string]any{"format": format, "bytes": len(body)})
	return nil
}

func unquoteCSV(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) < 2 || trimmed[0] != '"' {
		return body
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return body
	}
	return []byte(s)
}
