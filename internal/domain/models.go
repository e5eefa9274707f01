package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/organ-waitlist-engine/pkg/abo"
)

// Recipient is a waitlisted patient. The engine reads recipients and only ever
// writes back PriorityScore and PriorityBreakdown.
type Recipient struct {
	ID                  string           `json:"id"`
	FirstName           string           `json:"first_name"`
	LastName            string           `json:"last_name"`
	BloodType           abo.BloodType    `json:"blood_type"`
	OrganNeeded         OrganType        `json:"organ_needed"`
	HLATyping           string           `json:"hla_typing,omitempty"`
	MedicalUrgency      UrgencyLevel     `json:"medical_urgency,omitempty"`
	FunctionalStatus    FunctionalStatus `json:"functional_status,omitempty"`
	PrognosisRating     PrognosisRating  `json:"prognosis_rating,omitempty"`
	WaitlistEntryDate   *time.Time       `json:"waitlist_entry_date,omitempty"`
	LastEvaluationDate  *time.Time       `json:"last_evaluation_date,omitempty"`
	DateOfBirth         *time.Time       `json:"date_of_birth,omitempty"`
	MELDScore           *float64         `json:"meld_score,omitempty"`
	LASScore            *float64         `json:"las_score,omitempty"`
	PRAPercentage       *float64         `json:"pra_percentage,omitempty"`
	CPRAPercentage      *float64         `json:"cpra_percentage,omitempty"`
	WeightKg            *float64         `json:"weight_kg,omitempty"`
	HeightCm            *float64         `json:"height_cm,omitempty"`
	ComorbidityScore    *float64         `json:"comorbidity_score,omitempty"`
	PreviousTransplants int              `json:"previous_transplants"`
	ComplianceScore     *float64         `json:"compliance_score,omitempty"`
	PriorityScore       float64          `json:"priority_score"`
	PriorityBreakdown   *ScoreBreakdown  `json:"priority_breakdown,omitempty"`
	WaitlistStatus      WaitlistStatus   `json:"waitlist_status"`
	UpdatedAt           time.Time        `json:"updated_at,omitempty"`
}

// DisplayName is the name shown on match records and notifications.
func (r *Recipient) DisplayName() string {
	name := strings.TrimSpace(r.FirstName + " " + r.LastName)
	if name == "" {
		return r.ID
	}
	return name
}

// Sensitization returns the higher of the two sensitization percentages, or nil
// when neither is recorded.
func (r *Recipient) Sensitization() *float64 {
	switch {
	case r.PRAPercentage == nil && r.CPRAPercentage == nil:
		return nil
	case r.PRAPercentage == nil:
		v := *r.CPRAPercentage
		return &v
	case r.CPRAPercentage == nil:
		v := *r.PRAPercentage
		return &v
	}
	v := *r.PRAPercentage
	if *r.CPRAPercentage > v {
		v = *r.CPRAPercentage
	}
	return &v
}

// AgeAt returns the recipient's age in whole years at t.
func (r *Recipient) AgeAt(t time.Time) (int, bool) {
	if r.DateOfBirth == nil {
		return 0, false
	}
	return yearsBetween(*r.DateOfBirth, t), true
}

// IsActive reports whether the recipient can be matched.
func (r *Recipient) IsActive() bool {
	return r.WaitlistStatus == STATUS_ACTIVE
}

// DonorOrgan is an organ offered for allocation. Hypothetical organs exist only
// for simulation: they are never persisted and never trigger notifications.
type DonorOrgan struct {
	ID            string        `json:"id" yaml:"id"`
	DonorID       string        `json:"donor_id,omitempty" yaml:"donor_id"`
	OrganType     OrganType     `json:"organ_type" yaml:"organ_type"`
	BloodType     abo.BloodType `json:"blood_type" yaml:"blood_type"`
	HLATyping     string        `json:"hla_typing,omitempty" yaml:"hla_typing"`
	DonorAge      *int          `json:"donor_age,omitempty" yaml:"donor_age"`
	DonorWeightKg *float64      `json:"donor_weight_kg,omitempty" yaml:"donor_weight_kg"`
	DonorHeightCm *float64      `json:"donor_height_cm,omitempty" yaml:"donor_height_cm"`
	Hypothetical  bool          `json:"hypothetical" yaml:"-"`
}

// Validate checks the fields the matching pass cannot do without.
func (d *DonorOrgan) Validate() error {
	if !d.OrganType.IsValid() {
		return NewValidationError("organ_type", "unsupported organ type", d.OrganType)
	}
	if d.DonorAge != nil && (*d.DonorAge < 0 || *d.DonorAge > 120) {
		return NewValidationError("donor_age", "must be between 0 and 120", *d.DonorAge)
	}
	if d.DonorWeightKg != nil && !positiveFinite(*d.DonorWeightKg) {
		return NewValidationError("donor_weight_kg", "must be a positive number", *d.DonorWeightKg)
	}
	if d.DonorHeightCm != nil && !positiveFinite(*d.DonorHeightCm) {
		return NewValidationError("donor_height_cm", "must be a positive number", *d.DonorHeightCm)
	}
	return nil
}

// Normalize rewrites free-form organ and blood type spellings ("kidney", "O−",
// "o neg") into their canonical values. Unrecognized blood types become
// abo.Unknown, which no recipient can accept.
func (d *DonorOrgan) Normalize() error {
	organ, err := ParseOrganType(string(d.OrganType))
	if err != nil {
		return err
	}
	d.OrganType = organ
	d.BloodType = abo.Parse(string(d.BloodType))
	return nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// WeightConfig holds the scoring weights of one organization. Weights are fractions
// applied to component scores that are already normalized to 0-100; they are not
// required to sum to 1.
type WeightConfig struct {
	ID                string    `json:"id,omitempty" yaml:"-"`
	OrganizationID    string    `json:"organization_id,omitempty" yaml:"-"`
	Name              string    `json:"name" yaml:"name"`
	MedicalUrgency    float64   `json:"medical_urgency_weight" yaml:"medical_urgency_weight"`
	TimeOnWaitlist    float64   `json:"time_on_waitlist_weight" yaml:"time_on_waitlist_weight"`
	OrganSpecific     float64   `json:"organ_specific_weight" yaml:"organ_specific_weight"`
	EvaluationRecency float64   `json:"evaluation_recency_weight" yaml:"evaluation_recency_weight"`
	BloodTypeRarity   float64   `json:"blood_type_rarity_weight" yaml:"blood_type_rarity_weight"`
	DecayRate         float64   `json:"decay_rate" yaml:"decay_rate"`
	Active            bool      `json:"active" yaml:"-"`
	IsDefault         bool      `json:"is_default" yaml:"-"`
	UpdatedAt         time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// DefaultWeightConfig is used when an organization has no active configuration.
func DefaultWeightConfig() WeightConfig {
	return WeightConfig{
		Name:              "default",
		MedicalUrgency:    0.30,
		TimeOnWaitlist:    0.25,
		OrganSpecific:     0.25,
		EvaluationRecency: 0.10,
		BloodTypeRarity:   0.10,
		DecayRate:         0.5,
		Active:            true,
		IsDefault:         true,
	}
}

// ScoreComponent records one factor of the priority score.
type ScoreComponent struct {
	RawScore     float64 `json:"raw_score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"weighted_contribution"`
}

// ScoreAdjustments are applied after weighting, directly to the weighted sum.
type ScoreAdjustments struct {
	Comorbidity         float64 `json:"comorbidity"`
	PreviousTransplants float64 `json:"previous_transplants"`
	Compliance          float64 `json:"compliance"`
	Net                 float64 `json:"net"`
}

// ScoreBreakdown explains a priority score in full. Given the same recipient
// snapshot, weight configuration and CalculatedAt, it is reproduced exactly.
type ScoreBreakdown struct {
	MedicalUrgency    ScoreComponent `json:"medical_urgency"`
	TimeOnWaitlist    ScoreComponent `json:"time_on_waitlist"`
	OrganSpecific     ScoreComponent `json:"organ_specific"`
	EvaluationRecency ScoreComponent `json:"evaluation_recency"`
	BloodTypeRarity   ScoreComponent `json:"blood_type_rarity"`

	UrgencyBaseScore       float64 `json:"urgency_base_score"`
	FunctionalStatusFactor float64 `json:"functional_status_factor"`
	PrognosisFactor        float64 `json:"prognosis_factor"`
	OrganScoreSource       string  `json:"organ_score_source"`
	DecayPeriods           int     `json:"decay_periods"`
	LongWaitBonusApplied   bool    `json:"long_wait_bonus_applied"`

	Adjustments   ScoreAdjustments `json:"adjustments"`
	WeightedSum   float64          `json:"weighted_sum"`
	PreClampTotal float64          `json:"pre_clamp_total"`
	Total         float64          `json:"total"`

	DaysOnWaitlist      *int `json:"days_on_waitlist,omitempty"`
	DaysSinceEvaluation *int `json:"days_since_evaluation,omitempty"`

	Weights      WeightConfig `json:"weights"`
	CalculatedAt time.Time    `json:"calculated_at"`
}

// HLAMatchCounts are per-locus antigen overlaps between donor and recipient.
type HLAMatchCounts struct {
	A     int `json:"a"`
	B     int `json:"b"`
	DR    int `json:"dr"`
	DQ    int `json:"dq"`
	Total int `json:"total"`
}

// Match is a persisted, ranked donor-recipient pairing. It is created once per
// matching pass and never updated by the engine.
type Match struct {
	ID                 string           `json:"id"`
	DonorOrganID       string           `json:"donor_organ_id"`
	RecipientID        string           `json:"recipient_id"`
	RecipientName      string           `json:"recipient_name"`
	CompatibilityScore float64          `json:"compatibility_score"`
	ABOCompatible      bool             `json:"abo_compatible"`
	BloodTypeExact     bool             `json:"blood_type_exact"`
	HLAMatchScore      float64          `json:"hla_match_score"`
	HLAMatches         HLAMatchCounts   `json:"hla_matches"`
	SizeCompatible     bool             `json:"size_compatible"`
	Rank               int              `json:"rank"`
	VirtualCrossmatch  CrossmatchResult `json:"virtual_crossmatch"`
	PhysicalCrossmatch CrossmatchResult `json:"physical_crossmatch"`
	PredictedSurvival  float64          `json:"predicted_survival"`
	Status             MatchStatus      `json:"status"`
	CreatedBy          string           `json:"created_by,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

// Notification alerts a privileged user to a new top-ranked match.
type Notification struct {
	ID           string               `json:"id"`
	UserID       string               `json:"user_id"`
	Type         string               `json:"type"`
	Severity     NotificationSeverity `json:"severity"`
	Title        string               `json:"title"`
	Message      string               `json:"message"`
	DonorOrganID string               `json:"donor_organ_id"`
	RecipientID  string               `json:"recipient_id"`
	MatchID      string               `json:"match_id"`
	CreatedBy    string               `json:"created_by,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

// NotificationTypeMatchFound is the only notification type the engine emits.
const NotificationTypeMatchFound = "match_found"

// User is a staff member who may receive match notifications.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Actor identifies who triggered an operation. It is used only to attribute
// writes; the engine performs no authorization.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// SystemActor attributes writes made without an authenticated user.
var SystemActor = Actor{ID: "system", Name: "system", Role: "system"}

// String returns a compact audit representation.
func (a Actor) String() string {
	if a.Role == "" {
		return a.ID
	}
	return fmt.Sprintf("%s (%s)", a.ID, a.Role)
}

func yearsBetween(from, to time.Time) int {
	years := to.Year() - from.Year()
	if to.Month() < from.Month() || (to.Month() == from.Month() && to.Day() < from.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
