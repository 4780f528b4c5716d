package forms

const (
	SectionFallRisk  = "fallRisk"
	SectionNutrition = "nutrition"
)

// FallRiskFactors lists the fall risk checklist items in form order.
var FallRiskFactors = []Factor{
	{Key: "age65OrOlder", Label: "Age 65 or older", Points: 1},
	{Key: "historyOfFalls", Label: "Fall in the past 3 months", Points: 3},
	{Key: "multipleDiagnoses", Label: "Three or more co-existing diagnoses", Points: 1},
	{Key: "incontinence", Label: "Bowel or bladder incontinence", Points: 1},
	{Key: "visualImpairment", Label: "Visual impairment", Points: 1},
	{Key: "impairedFunctionalMobility", Label: "Impaired functional mobility", Points: 2},
	{Key: "environmentalHazards", Label: "Environmental hazards in the home", Points: 1},
	{Key: "polypharmacy", Label: "Four or more prescriptions", Points: 2},
	{Key: "painAffectingFunction", Label: "Pain affecting level of function", Points: 1},
	{Key: "cognitiveImpairment", Label: "Cognitive impairment", Points: 2},
	{Key: "usesAssistiveDevice", Label: "Uses cane, walker or wheelchair", Points: 1},
	{Key: "gaitOrBalanceDeficit", Label: "Gait or balance deficit", Points: 2},
	{Key: "orthostaticHypotension", Label: "Orthostatic hypotension", Points: 2},
	{Key: "psychotropicMedications", Label: "Psychotropic or sedating medications", Points: 2},
	{Key: "urgencyOrFrequency", Label: "Urinary urgency or frequency", Points: 1},
	{Key: "footProblems", Label: "Foot problems or unsafe footwear", Points: 1},
}

// FallRisk is the 16 item home fall risk checklist.
type FallRisk struct {
	versioned
	Age65OrOlder               bool     `json:"age65OrOlder"`
	HistoryOfFalls             bool     `json:"historyOfFalls"`
	MultipleDiagnoses          bool     `json:"multipleDiagnoses"`
	Incontinence               bool     `json:"incontinence"`
	VisualImpairment           bool     `json:"visualImpairment"`
	ImpairedFunctionalMobility bool     `json:"impairedFunctionalMobility"`
	EnvironmentalHazards       bool     `json:"environmentalHazards"`
	Polypharmacy               bool     `json:"polypharmacy"`
	PainAffectingFunction      bool     `json:"painAffectingFunction"`
	CognitiveImpairment        bool     `json:"cognitiveImpairment"`
	UsesAssistiveDevice        bool     `json:"usesAssistiveDevice"`
	GaitOrBalanceDeficit       bool     `json:"gaitOrBalanceDeficit"`
	OrthostaticHypotension     bool     `json:"orthostaticHypotension"`
	PsychotropicMedications    bool     `json:"psychotropicMedications"`
	UrgencyOrFrequency         bool     `json:"urgencyOrFrequency"`
	FootProblems               bool     `json:"footProblems"`
	Interventions              []string `json:"interventions,omitempty" validate:"omitempty,max=20,dive,oneof=EDUCATION PT_REFERRAL OT_REFERRAL HOME_SAFETY_EVAL MEDICATION_REVIEW ASSISTIVE_DEVICE EMERGENCY_RESPONSE_SYSTEM OTHER"`
	Notes                      *string  `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

func (*FallRisk) SectionName() string { return SectionFallRisk }

func (f *FallRisk) flags() []bool {
	return []bool{
		f.Age65OrOlder, f.HistoryOfFalls, f.MultipleDiagnoses, f.Incontinence,
		f.VisualImpairment, f.ImpairedFunctionalMobility, f.EnvironmentalHazards, f.Polypharmacy,
		f.PainAffectingFunction, f.CognitiveImpairment, f.UsesAssistiveDevice, f.GaitOrBalanceDeficit,
		f.OrthostaticHypotension, f.PsychotropicMedications, f.UrgencyOrFrequency, f.FootProblems,
	}
}

func (f *FallRisk) TotalScore() int { return weightedSum(FallRiskFactors, f.flags()) }

func (f *FallRisk) MaxScore() int { return maxOf(FallRiskFactors) }

// RiskLevel bands the total: below 4 low, 4 through 9 moderate, 10 and up high.
func (f *FallRisk) RiskLevel() string {
	switch t := f.TotalScore(); {
	case t >= 10:
		return RiskHigh
	case t >= 4:
		return RiskModerate
	default:
		return RiskLow
	}
}

// NutritionFactors lists the nutritional health checklist items in form order.
var NutritionFactors = []Factor{
	{Key: "hasIllnessChangingDiet", Label: "Illness or condition that changed the kind or amount of food eaten", Points: 2},
	{Key: "eatsFewerThan2Meals", Label: "Eats fewer than 2 meals per day", Points: 3},
	{Key: "eatsFewFruitsOrVegetables", Label: "Eats few fruits, vegetables or milk products", Points: 2},
	{Key: "has3OrMoreDrinks", Label: "Has 3 or more drinks of beer, liquor or wine almost every day", Points: 2},
	{Key: "hasToothOrMouthProblems", Label: "Tooth or mouth problems that make it hard to eat", Points: 2},
	{Key: "doesNotHaveMoney", Label: "Does not always have enough money to buy food", Points: 4},
	{Key: "eatsAlone", Label: "Eats alone most of the time", Points: 1},
	{Key: "takes3OrMoreDrugs", Label: "Takes 3 or more different drugs a day", Points: 1},
	{Key: "lostOrGainedWeight", Label: "Lost or gained 10 pounds in the last 6 months without wanting to", Points: 2},
	{Key: "notPhysicallyAble", Label: "Not always physically able to shop, cook or feed self", Points: 2},
}

// Nutrition is the 10 item nutritional health checklist.
type Nutrition struct {
	versioned
	HasIllnessChangingDiet    bool    `json:"hasIllnessChangingDiet"`
	EatsFewerThan2Meals       bool    `json:"eatsFewerThan2Meals"`
	EatsFewFruitsOrVegetables bool    `json:"eatsFewFruitsOrVegetables"`
	Has3OrMoreDrinks          bool    `json:"has3OrMoreDrinks"`
	HasToothOrMouthProblems   bool    `json:"hasToothOrMouthProblems"`
	DoesNotHaveMoney          bool    `json:"doesNotHaveMoney"`
	EatsAlone                 bool    `json:"eatsAlone"`
	Takes3OrMoreDrugs         bool    `json:"takes3OrMoreDrugs"`
	LostOrGainedWeight        bool    `json:"lostOrGainedWeight"`
	NotPhysicallyAble         bool    `json:"notPhysicallyAble"`
	DietitianReferral         bool    `json:"dietitianReferral"`
	Notes                     *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

func (*Nutrition) SectionName() string { return SectionNutrition }

func (n *Nutrition) flags() []bool {
	return []bool{
		n.HasIllnessChangingDiet, n.EatsFewerThan2Meals, n.EatsFewFruitsOrVegetables,
		n.Has3OrMoreDrinks, n.HasToothOrMouthProblems, n.DoesNotHaveMoney,
		n.EatsAlone, n.Takes3OrMoreDrugs, n.LostOrGainedWeight, n.NotPhysicallyAble,
	}
}

func (n *Nutrition) TotalScore() int { return weightedSum(NutritionFactors, n.flags()) }

func (n *Nutrition) MaxScore() int { return maxOf(NutritionFactors) }

// RiskLevel: 0-2 good, 3-5 moderate nutritional risk, 6 or more high.
func (n *Nutrition) RiskLevel() string {
	switch t := n.TotalScore(); {
	case t >= 6:
		return RiskHigh
	case t >= 3:
		return RiskModerate
	default:
		return RiskLow
	}
}
