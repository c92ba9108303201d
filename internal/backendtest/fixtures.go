package backendtest

// Question is a questionnaire item as the backend serves it.
type Question struct {
	ID       int64  `json:"id"`
	Text     string `json:"texto"`
	Category string `json:"categoria"`
	Order    int    `json:"ordem"`
}

// Activity is a suggested activity for one severity band.
type Activity struct {
	ID          int64  `json:"id"`
	Band        string `json:"nivel_sofrimento"`
	Description string `json:"descricao"`
}

const (
	categoryPhysical  = "sintomas físicos"
	categoryEmotional = "distúrbios psicoemocionais"
)

var srq20Texts = []struct {
	text     string
	category string
}{
	{"Você tem dores de cabeça frequentes?", categoryPhysical},
	{"Tem falta de apetite?", categoryPhysical},
	{"Dorme mal?", categoryPhysical},
	{"Assusta-se com facilidade?", categoryEmotional},
	{"Tem tremores nas mãos?", categoryPhysical},
	{"Sente-se nervoso(a), tenso(a) ou preocupado(a)?", categoryEmotional},
	{"Tem má digestão?", categoryPhysical},
	{"Tem dificuldade de pensar com clareza?", categoryEmotional},
	{"Tem se sentido triste ultimamente?", categoryEmotional},
	{"Tem chorado mais do que de costume?", categoryEmotional},
	{"Encontra dificuldade para realizar com satisfação suas atividades diárias?", categoryEmotional},
	{"Tem dificuldade para tomar decisões?", categoryEmotional},
	{"Tem dificuldade no serviço (seu trabalho é penoso, causa-lhe sofrimento)?", categoryEmotional},
	{"É incapaz de desempenhar um papel útil em sua vida?", categoryEmotional},
	{"Tem perdido o interesse pelas coisas?", categoryEmotional},
	{"Você se sente uma pessoa inútil, sem préstimo?", categoryEmotional},
	{"Tem tido a ideia de acabar com a vida?", categoryEmotional},
	{"Sente-se cansado(a) o tempo todo?", categoryPhysical},
	{"Tem sensações desagradáveis no estômago?", categoryPhysical},
	{"Você se cansa com facilidade?", categoryPhysical},
}

// QuestionIDBase offsets question ids from their display order so that
// clients correlating by order instead of id fail loudly.
const QuestionIDBase = 100

// DefaultQuestions returns the twenty SRQ-20 items. Ids are QuestionIDBase+order.
func DefaultQuestions() []Question {
	out := make([]Question, 0, len(srq20Texts))
	for i, q := range srq20Texts {
		out = append(out, Question{
			ID:       int64(QuestionIDBase + i + 1),
			Text:     q.text,
			Category: q.category,
			Order:    i + 1,
		})
	}
	return out
}

// DefaultActivities returns two suggestions for each band except "Nenhum".
func DefaultActivities() []Activity {
	return []Activity{
		{ID: 1, Band: BandMild, Description: "Praticar atividade física regularmente, pelo menos 30 minutos por dia"},
		{ID: 2, Band: BandMild, Description: "Buscar momentos de lazer e relaxamento"},
		{ID: 3, Band: BandModerate, Description: "Conversar com amigos ou familiares de confiança sobre seus sentimentos"},
		{ID: 4, Band: BandModerate, Description: "Considerar buscar apoio psicológico profissional"},
		{ID: 5, Band: BandSevere, Description: "Procurar atendimento com profissional de saúde mental o quanto antes"},
		{ID: 6, Band: BandSevere, Description: "Em caso de crise, ligar para o CVV no número 188"},
	}
}

// Band wire values.
const (
	BandNone     = "Nenhum"
	BandMild     = "Leve"
	BandModerate = "Moderado"
	BandSevere   = "Grave"
)

// BandForScore is the backend's scoring rule, used only to produce realistic fixtures.
func BandForScore(score int) string {
	switch {
	case score <= 0:
		return BandNone
	case score <= 7:
		return BandMild
	case score <= 14:
		return BandModerate
	default:
		return BandSevere
	}
}
