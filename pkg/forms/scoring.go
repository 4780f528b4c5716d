package forms

// Scorer is implemented by checklist sections whose total is a weighted sum
// of boolean risk factors. Totals are never stored; they are recomputed from
// the current values wherever they are shown.
type Scorer interface {
	Section
	TotalScore() int
	MaxScore() int
	RiskLevel() string
}

// Factor is one weighted item of a checklist.
type Factor struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Points int    `json:"points"`
}

// Score is the computed result of a scored section.
type Score struct {
	Section   string `json:"section"`
	Total     int    `json:"total"`
	Max       int    `json:"max"`
	RiskLevel string `json:"riskLevel"`
}

// ScoreOf computes the score of s, or reports false when s is not a checklist.
func ScoreOf(s Section) (Score, bool) {
	sc, ok := s.(Scorer)
	if !ok {
		return Score{}, false
	}
	return Score{
		Section:   sc.SectionName(),
		Total:     sc.TotalScore(),
		Max:       sc.MaxScore(),
		RiskLevel: sc.RiskLevel(),
	}, true
}

func weightedSum(factors []Factor, flags []bool) int {
	total := 0
	for i, f := range factors {
		if flags[i] {
			total += f.Points
		}
	}
	return total
}

func maxOf(factors []Factor) int {
	total := 0
	for _, f := range factors {
		total += f.Points
	}
	return total
}

const (
	RiskLow      = "LOW"
	RiskModerate = "MODERATE"
	RiskHigh     = "HIGH"
)
