package questionnaire

import "time"

// Question is one yes/no item, correlated with answers by ID.
type Question struct {
	ID       int64  `json:"id"`
	Order    int    `json:"ordem"`
	Text     string `json:"texto"`
	Category string `json:"categoria"`
}

// Band is the severity band assigned by the backend. Values are kept as sent.
type Band string

const (
	BandNone     Band = "Nenhum"
	BandMild     Band = "Leve"
	BandModerate Band = "Moderado"
	BandSevere   Band = "Grave"
)

// Label is the English name of a known band, or the wire value verbatim.
func (b Band) Label() string {
	switch b {
	case BandNone:
		return "None"
	case BandMild:
		return "Mild"
	case BandModerate:
		return "Moderate"
	case BandSevere:
		return "Severe"
	default:
		return string(b)
	}
}

// Known reports whether b is one of the four bands.
func (b Band) Known() bool {
	switch b {
	case BandNone, BandMild, BandModerate, BandSevere:
		return true
	}
	return false
}

// Assessment is a scored submission. Score is never recomputed client-side.
type Assessment struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"usuario"`
	Score       int       `json:"pontuacao_total"`
	Band        Band      `json:"nivel_sofrimento"`
	EvaluatedAt time.Time `json:"data_avaliacao"`
}

// Activity is a suggestion returned for the assessment's band.
type Activity struct {
	ID          int64  `json:"id"`
	Band        Band   `json:"nivel_sofrimento"`
	Description string `json:"descricao"`
}

// Result is the backend's answer to a submission.
type Result struct {
	Assessment Assessment `json:"avaliacao"`
	Activities []Activity `json:"atividades_sugeridas"`
}

// HistoryPage is one page of past assessments. NextPage is empty on the last page.
type HistoryPage struct {
	Count    int
	Items    []Assessment
	NextPage string
}

type response struct {
	Question int64 `json:"pergunta"`
	Answer   bool  `json:"resposta"`
}

type submission struct {
	Responses []response `json:"respostas"`
}
