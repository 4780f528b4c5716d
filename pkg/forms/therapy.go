package forms

const (
	SectionOTEval = "otEval"
	SectionPTEval = "ptEval"
	SectionSTEval = "stEval"
)

// Goal is one measurable therapy goal.
type Goal struct {
	Description string  `json:"description" validate:"required,max=500"`
	TargetWeeks int     `json:"targetWeeks" validate:"gte=1,lte=52"`
	Term        string  `json:"term" validate:"required,oneof=SHORT LONG"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=NEW ONGOING MET NOT_MET DISCONTINUED"`
}

// Frequency is a visit plan such as "2W4" (two visits a week for four weeks).
type Frequency struct {
	VisitsPerWeek int `json:"visitsPerWeek" validate:"gte=1,lte=7"`
	Weeks         int `json:"weeks" validate:"gte=1,lte=9"`
}

// OTEval is the occupational therapy evaluation. ADL fields use the standard
// assist levels.
type OTEval struct {
	versioned
	Feeding           string    `json:"feeding" validate:"required,oneof=INDEPENDENT SUPERVISION MIN_ASSIST MOD_ASSIST MAX_ASSIST DEPENDENT"`
	Grooming          string    `json:"grooming" validate:"required,oneof=INDEPENDENT SUPERVISION MIN_ASSIST MOD_ASSIST MAX_ASSIST DEPENDENT"`
	Bathing           string    `json:"bathing" validate:"required,oneof=INDEPENDENT SUPERVISION MIN_ASSIST MOD_ASSIST MAX_ASSIST DEPENDENT"`
	UpperDressing     string    `json:"upperDressing" validate:"required,oneof=INDEPENDENT SUPERVISION MIN_ASSIST MOD_ASSIST MAX_ASSIST DEPENDENT"`
	LowerDressing     string    `json:"lowerDressing" validate:"required,oneof=INDEPENDENT SUPERVISION MIN_ASSIST MOD_ASSIST MAX_ASSIST DEPENDENT"`
	Toileting         string    `json:"toileting" validate:"required,oneof=INDEPENDENT SUPERVISION MIN_ASSIST MOD_ASSIST MAX_ASSIST DEPENDENT"`
	DominantHand      *string   `json:"dominantHand,omitempty" validate:"omitempty,oneof=LEFT RIGHT"`
	FineMotor         *string   `json:"fineMotor,omitempty" validate:"omitempty,oneof=GOOD FAIR POOR"`
	AdaptiveEquipment []string  `json:"adaptiveEquipment,omitempty" validate:"omitempty,dive,max=100"`
	Goals             []Goal    `json:"goals" validate:"required,min=1,max=10,dive"`
	Frequency         Frequency `json:"frequency"`
	Notes             *string   `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

func (*OTEval) SectionName() string { return SectionOTEval }

// PTEval is the physical therapy evaluation.
type PTEval struct {
	versioned
	BedMobility     string    `json:"bedMobility" validate:"required,oneof=INDEPENDENT SUPERVISION MIN_ASSIST MOD_ASSIST MAX_ASSIST DEPENDENT"`
	Transfers       string    `json:"transfers" validate:"required,oneof=INDEPENDENT SUPERVISION MIN_ASSIST MOD_ASSIST MAX_ASSIST DEPENDENT"`
	Gait            string    `json:"gait" validate:"required,oneof=INDEPENDENT SUPERVISION MIN_ASSIST MOD_ASSIST MAX_ASSIST DEPENDENT NON_AMBULATORY"`
	GaitDistanceFt  *int      `json:"gaitDistanceFt,omitempty" validate:"omitempty,gte=0,lte=5000"`
	AssistiveDevice *string   `json:"assistiveDevice,omitempty" validate:"omitempty,oneof=NONE CANE QUAD_CANE WALKER ROLLING_WALKER WHEELCHAIR"`
	StaticBalance   string    `json:"staticBalance" validate:"required,oneof=GOOD FAIR POOR"`
	DynamicBalance  string    `json:"dynamicBalance" validate:"required,oneof=GOOD FAIR POOR"`
	TinettiScore    *int      `json:"tinettiScore,omitempty" validate:"omitempty,gte=0,lte=28"`
	TimedUpAndGo    *float64  `json:"timedUpAndGoSec,omitempty" validate:"omitempty,gt=0,lte=300"`
	Goals           []Goal    `json:"goals" validate:"required,min=1,max=10,dive"`
	Frequency       Frequency `json:"frequency"`
	Notes           *string   `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

func (*PTEval) SectionName() string { return SectionPTEval }

// STEval is the speech-language pathology evaluation.
type STEval struct {
	versioned
	Intelligibility        string    `json:"intelligibility" validate:"required,oneof=NORMAL MILD MODERATE SEVERE UNINTELLIGIBLE"`
	Comprehension          string    `json:"comprehension" validate:"required,oneof=INTACT MILD MODERATE SEVERE"`
	Expression             string    `json:"expression" validate:"required,oneof=INTACT MILD MODERATE SEVERE"`
	SwallowDiet            *string   `json:"swallowDiet,omitempty" validate:"omitempty,oneof=REGULAR MECHANICAL_SOFT MINCED PUREED NPO"`
	LiquidConsistency      *string   `json:"liquidConsistency,omitempty" validate:"omitempty,oneof=THIN SLIGHTLY_THICK MILDLY_THICK MODERATELY_THICK EXTREMELY_THICK"`
	AspirationRisk         bool      `json:"aspirationRisk"`
	CognitiveCommunication *string   `json:"cognitiveCommunication,omitempty" validate:"omitempty,max=2000"`
	Goals                  []Goal    `json:"goals" validate:"required,min=1,max=10,dive"`
	Frequency              Frequency `json:"frequency"`
	Notes                  *string   `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

func (*STEval) SectionName() string { return SectionSTEval }
