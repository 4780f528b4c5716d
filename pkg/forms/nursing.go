package forms

const (
	SectionNursingAssessment = "nursingAssessment"
	SectionBodyAssessment    = "bodyAssessment"
	SectionPsychosocial      = "psychosocial"
	SectionPainAssessment    = "painAssessment"
)

// Vitals recorded at the start of a skilled nursing visit. Every reading is
// optional; a reading that is present must be physiologically plausible.
type Vitals struct {
	Temperature      *float64 `json:"temperature,omitempty" validate:"omitempty,gte=90,lte=110"`
	TemperatureRoute *string  `json:"temperatureRoute,omitempty" validate:"omitempty,oneof=ORAL TYMPANIC AXILLARY TEMPORAL RECTAL"`
	Pulse            *int     `json:"pulse,omitempty" validate:"omitempty,gte=20,lte=250"`
	Respirations     *int     `json:"respirations,omitempty" validate:"omitempty,gte=4,lte=60"`
	Systolic         *int     `json:"systolic,omitempty" validate:"omitempty,gte=50,lte=300"`
	Diastolic        *int     `json:"diastolic,omitempty" validate:"omitempty,gte=20,lte=200"`
	BPPosition       *string  `json:"bpPosition,omitempty" validate:"omitempty,oneof=SITTING STANDING LYING"`
	OxygenSaturation *int     `json:"oxygenSaturation,omitempty" validate:"omitempty,gte=50,lte=100"`
	OnOxygen         bool     `json:"onOxygen"`
	OxygenLitersMin  *float64 `json:"oxygenLitersMin,omitempty" validate:"omitempty,gt=0,lte=15"`
	WeightLbs        *float64 `json:"weightLbs,omitempty" validate:"omitempty,gt=0,lte=1000"`
	BloodGlucose     *int     `json:"bloodGlucose,omitempty" validate:"omitempty,gte=10,lte=1000"`
}

// NursingAssessment is the skilled nursing visit narrative.
type NursingAssessment struct {
	versioned
	Vitals           *Vitals  `json:"vitals,omitempty"`
	OrientedTo       []string `json:"orientedTo,omitempty" validate:"omitempty,max=4,dive,oneof=PERSON PLACE TIME SITUATION"`
	LivingSituation  string   `json:"livingSituation" validate:"required,oneof=ALONE WITH_FAMILY WITH_CAREGIVER ASSISTED_LIVING OTHER"`
	Homebound        bool     `json:"homebound"`
	HomeboundReasons []string `json:"homeboundReasons,omitempty" validate:"required_if=Homebound true,omitempty,dive,oneof=TAXING_EFFORT ASSISTIVE_DEVICE ASSIST_OF_ANOTHER MEDICAL_RESTRICTION DYSPNEA CONFUSION OTHER"`
	SkilledNeed      string   `json:"skilledNeed" validate:"required,max=4000"`
	TeachingProvided []string `json:"teachingProvided,omitempty" validate:"omitempty,dive,max=200"`
	PatientResponse  *string  `json:"patientResponse,omitempty" validate:"omitempty,max=2000"`
}

func (*NursingAssessment) SectionName() string { return SectionNursingAssessment }

// SystemFinding is the review of one body system.
type SystemFinding struct {
	WithinNormalLimits bool     `json:"withinNormalLimits"`
	Findings           []string `json:"findings,omitempty" validate:"omitempty,max=30,dive,max=200"`
	Comment            *string  `json:"comment,omitempty" validate:"omitempty,max=2000"`
}

// Wound describes one wound observed during the integumentary review.
type Wound struct {
	Location string   `json:"location" validate:"required,max=200"`
	Type     string   `json:"type" validate:"required,oneof=PRESSURE SURGICAL VENOUS ARTERIAL DIABETIC TRAUMA OTHER"`
	Stage    *string  `json:"stage,omitempty" validate:"omitempty,oneof=1 2 3 4 UNSTAGEABLE DTI"`
	LengthCm *float64 `json:"lengthCm,omitempty" validate:"omitempty,gte=0,lte=100"`
	WidthCm  *float64 `json:"widthCm,omitempty" validate:"omitempty,gte=0,lte=100"`
	DepthCm  *float64 `json:"depthCm,omitempty" validate:"omitempty,gte=0,lte=50"`
}

// BodyAssessment is the head to toe systems review.
type BodyAssessment struct {
	versioned
	Cardiovascular   *SystemFinding `json:"cardiovascular,omitempty"`
	Respiratory      *SystemFinding `json:"respiratory,omitempty"`
	Integumentary    *SystemFinding `json:"integumentary,omitempty"`
	Neurological     *SystemFinding `json:"neurological,omitempty"`
	Gastrointestinal *SystemFinding `json:"gastrointestinal,omitempty"`
	Genitourinary    *SystemFinding `json:"genitourinary,omitempty"`
	Musculoskeletal  *SystemFinding `json:"musculoskeletal,omitempty"`
	Edema            *string        `json:"edema,omitempty" validate:"omitempty,oneof=NONE TRACE 1+ 2+ 3+ 4+"`
	Wounds           []Wound        `json:"wounds,omitempty" validate:"omitempty,max=20,dive"`
}

func (*BodyAssessment) SectionName() string { return SectionBodyAssessment }

// Psychosocial covers mood, cognition and the patient's support at home.
type Psychosocial struct {
	versioned
	Mood           string   `json:"mood" validate:"required,oneof=CALM ANXIOUS DEPRESSED AGITATED FLAT IRRITABLE"`
	Cognition      string   `json:"cognition" validate:"required,oneof=ALERT FORGETFUL CONFUSED LETHARGIC COMATOSE"`
	DepressionPHQ2 *int     `json:"depressionPhq2,omitempty" validate:"omitempty,gte=0,lte=6"`
	SupportSystem  []string `json:"supportSystem,omitempty" validate:"omitempty,dive,oneof=SPOUSE CHILD SIBLING FRIEND PAID_CAREGIVER COMMUNITY NONE"`
	SafetyConcerns []string `json:"safetyConcerns,omitempty" validate:"omitempty,dive,oneof=ABUSE NEGLECT SELF_HARM WANDERING FIREARMS SMOKING_OXYGEN OTHER"`
	MSWReferral    bool     `json:"mswReferral"`
	SpiritualNeeds *string  `json:"spiritualNeeds,omitempty" validate:"omitempty,max=2000"`
	Comments       *string  `json:"comments,omitempty" validate:"omitempty,max=2000"`
}

func (*Psychosocial) SectionName() string { return SectionPsychosocial }

// PainAssessment records pain on a 0-10 numeric scale.
type PainAssessment struct {
	versioned
	HasPain       bool     `json:"hasPain"`
	Score         *int     `json:"score,omitempty" validate:"required_if=HasPain true,omitempty,gte=0,lte=10"`
	Location      *string  `json:"location,omitempty" validate:"required_if=HasPain true,omitempty,max=200"`
	Character     []string `json:"character,omitempty" validate:"omitempty,dive,oneof=ACHING BURNING CRAMPING DULL SHARP SHOOTING STABBING THROBBING"`
	Frequency     *string  `json:"frequency,omitempty" validate:"omitempty,oneof=CONSTANT INTERMITTENT OCCASIONAL"`
	Interventions []string `json:"interventions,omitempty" validate:"omitempty,dive,oneof=MEDICATION REPOSITIONING HEAT COLD RELAXATION MASSAGE OTHER"`
	Acceptable    *bool    `json:"acceptable,omitempty"`
}

func (*PainAssessment) SectionName() string { return SectionPainAssessment }
