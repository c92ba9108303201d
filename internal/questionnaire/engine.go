// Package questionnaire loads the SRQ-20 items, tracks the user's answers and
// submits a complete answer set for scoring.
package questionnaire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"srq20.org/internal/apiclient"
	"srq20.org/internal/audit"
	"srq20.org/internal/obs"
)

// API is the part of the request client the engine uses.
type API interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
}

// ResultSaver persists a scored result so a later process can show it.
type ResultSaver interface {
	Save(ctx context.Context, res *Result) error
}

// Engine holds the loaded questions and the answers recorded so far.
type Engine struct {
	api   API
	saver ResultSaver

	mu         sync.Mutex
	questions  []Question
	known      map[int64]struct{}
	answers    map[int64]bool
	submitting bool
}

// New returns an Engine with no questions loaded.
func New(api API, saver ResultSaver) *Engine {
	return &Engine{
		api:     api,
		saver:   saver,
		known:   map[int64]struct{}{},
		answers: map[int64]bool{},
	}
}

// LoadQuestions fetches the question set and keeps it in server order.
// Answers for ids no longer in the set are dropped.
func (e *Engine) LoadQuestions(ctx context.Context) ([]Question, error) {
	var qs []Question
	if err := e.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/srq20/"}, &qs); err != nil {
		return nil, fmt.Errorf("questionnaire: load questions: %w", err)
	}

	known := make(map[int64]struct{}, len(qs))
	for _, q := range qs {
		known[q.ID] = struct{}{}
	}

	e.mu.Lock()
	e.questions = qs
	e.known = known
	for id := range e.answers {
		if _, ok := known[id]; !ok {
			delete(e.answers, id)
		}
	}
	e.mu.Unlock()

	obs.Logger().Debug("questionnaire: questions loaded", zap.Int("count", len(qs)))
	return append([]Question(nil), qs...), nil
}

// Questions returns the loaded questions in display order.
func (e *Engine) Questions() []Question {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Question(nil), e.questions...)
}

// RecordAnswer sets the answer for id; the last write wins.
func (e *Engine) RecordAnswer(id int64, answer bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.questions) > 0 {
		if _, ok := e.known[id]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownQuestion, id)
		}
	}
	e.answers[id] = answer
	return nil
}

// Answers returns a copy of the recorded answers.
func (e *Engine) Answers() map[int64]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[int64]bool, len(e.answers))
	for id, a := range e.answers {
		out[id] = a
	}
	return out
}

// IsComplete reports whether every loaded question has an answer and nothing else does.
func (e *Engine) IsComplete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.questions) > 0 && Complete(questionIDs(e.questions), e.answers)
}

// Complete reports whether the answered ids equal ids exactly.
func Complete(ids []int64, answers map[int64]bool) bool {
	if len(answers) != len(ids) {
		return false
	}
	for _, id := range ids {
		if _, ok := answers[id]; !ok {
			return false
		}
	}
	return true
}

// Missing lists unanswered question ids in display order.
func (e *Engine) Missing() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.missingLocked()
}

func (e *Engine) missingLocked() []int64 {
	var out []int64
	for _, q := range e.questions {
		if _, ok := e.answers[q.ID]; !ok {
			out = append(out, q.ID)
		}
	}
	return out
}

// Reset forgets every recorded answer.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.answers = map[int64]bool{}
}

// Submit sends the complete answer set, saves the scored result and returns it.
// Incomplete sets are rejected without a request. Answers are kept when the
// backend rejects the submission.
func (e *Engine) Submit(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	switch {
	case e.submitting:
		e.mu.Unlock()
		return nil, ErrSubmissionInFlight
	case len(e.questions) == 0:
		e.mu.Unlock()
		return nil, ErrNoQuestions
	}
	if missing := e.missingLocked(); len(missing) > 0 || len(e.answers) != len(e.questions) {
		e.mu.Unlock()
		return nil, &IncompleteError{Missing: missing}
	}
	payload := submission{Responses: make([]response, 0, len(e.questions))}
	for _, q := range e.questions {
		payload.Responses = append(payload.Responses, response{Question: q.ID, Answer: e.answers[q.ID]})
	}
	e.submitting = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.submitting = false
		e.mu.Unlock()
	}()

	var res Result
	if err := e.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: "/srq20/", Body: payload}, &res); err != nil {
		return nil, fmt.Errorf("questionnaire: submit: %w", err)
	}
	if e.saver != nil {
		if err := e.saver.Save(ctx, &res); err != nil {
			return nil, fmt.Errorf("questionnaire: save result: %w", err)
		}
	}

	_ = audit.LogEvent(ctx, "questionnaire.submitted", map[string]any{
		"assessment_id": res.Assessment.ID,
		"score":         res.Assessment.Score,
		"band":          string(res.Assessment.Band),
	})
	return &res, nil
}

type historyEnvelope struct {
	Count   int          `json:"count"`
	Next    *string      `json:"next"`
	Results []Assessment `json:"results"`
}

// LoadHistory fetches one page of past assessments. An empty page is "1".
// Both the paginated envelope and a bare array are accepted.
func (e *Engine) LoadHistory(ctx context.Context, page string) (*HistoryPage, error) {
	req := apiclient.Request{Method: http.MethodGet, Path: "/avaliacoes/"}
	if page = strings.TrimSpace(page); page != "" {
		if n, err := strconv.Atoi(page); err != nil || n < 1 {
			return nil, fmt.Errorf("questionnaire: invalid history page %q", page)
		}
		req.Query = url.Values{"page": {page}}
	}

	var raw json.RawMessage
	if err := e.api.Do(ctx, req, &raw); err != nil {
		return nil, fmt.Errorf("questionnaire: load history: %w", err)
	}
	return decodeHistory(raw)
}

func decodeHistory(raw json.RawMessage) (*HistoryPage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &HistoryPage{Items: []Assessment{}}, nil
	}
	if trimmed[0] == '[' {
		var items []Assessment
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("questionnaire: decode history: %w", err)
		}
		if items == nil {
			items = []Assessment{}
		}
		return &HistoryPage{Count: len(items), Items: items}, nil
	}

	var env historyEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("questionnaire: decode history: %w", err)
	}
	out := &HistoryPage{Count: env.Count, Items: env.Results}
	if out.Items == nil {
		out.Items = []Assessment{}
	}
	if env.Next != nil {
		out.NextPage = pageParam(*env.Next)
	}
	return out, nil
}

// pageParam extracts the page number from a DRF next/previous link.
func pageParam(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Query().Get("page")
}

func questionIDs(qs []Question) []int64 {
	ids := make([]int64, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}
