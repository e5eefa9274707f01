package service

import (
	"math"
	"time"

	"github.com/organ-waitlist-engine/internal/domain"
	"github.com/organ-waitlist-engine/pkg/abo"
)

const (
	hoursPerDay = 24

	waitlistFullCreditDays = 730
	longWaitThresholdDays  = 1095
	longWaitBonus          = 10.0

	evaluationFreshDays = 90

	organFallbackFactor = 0.6
	meldFloor           = 6.0
	meldSpan            = 34.0
)

// Organ-specific score sources recorded in the breakdown.
const (
	OrganSourceMELD     = "meld"
	OrganSourceLAS      = "las"
	OrganSourcePRA      = "pra"
	OrganSourceFallback = "urgency_fallback"
)

var urgencyBase = map[domain.UrgencyLevel]float64{
	domain.URGENCY_CRITICAL: 100,
	domain.URGENCY_HIGH:     75,
	domain.URGENCY_MEDIUM:   50,
	domain.URGENCY_LOW:      25,
}

var functionalFactor = map[domain.FunctionalStatus]float64{
	domain.FUNCTIONAL_CRITICAL:           1.2,
	domain.FUNCTIONAL_SEVERELY_LIMITED:   1.1,
	domain.FUNCTIONAL_LIMITED:            1.05,
	domain.FUNCTIONAL_MOSTLY_INDEPENDENT: 1.0,
	domain.FUNCTIONAL_INDEPENDENT:        0.95,
}

var prognosisFactor = map[domain.PrognosisRating]float64{
	domain.PROGNOSIS_CRITICAL:  1.3,
	domain.PROGNOSIS_POOR:      1.15,
	domain.PROGNOSIS_FAIR:      1.0,
	domain.PROGNOSIS_GOOD:      0.95,
	domain.PROGNOSIS_EXCELLENT: 0.9,
}

var bloodTypeRarity = map[abo.BloodType]float64{
	abo.ABNeg: 100,
	abo.BNeg:  90,
	abo.ABPos: 80,
	abo.ANeg:  70,
	abo.ONeg:  60,
	abo.BPos:  50,
	abo.APos:  30,
	abo.OPos:  20,
}

const (
	defaultUrgencyBase = 50.0
	unknownRarity      = 40.0
)

// PriorityCalculator computes waitlist priority scores. It holds no state and is
// safe for concurrent use.
type PriorityCalculator struct{}

// NewPriorityCalculator creates a priority calculator
func NewPriorityCalculator() *PriorityCalculator {
	return &PriorityCalculator{}
}

// Score computes the recipient's priority in [0,100] as of now, together with the
// full breakdown of how it was reached. It does not modify r.
func (p *PriorityCalculator) Score(r *domain.Recipient, w domain.WeightConfig, now time.Time) (float64, *domain.ScoreBreakdown) {
	b := &domain.ScoreBreakdown{
		Weights:      w,
		CalculatedAt: now,
	}

	// 1. medical urgency
	base := lookup(urgencyBase, r.MedicalUrgency, defaultUrgencyBase)
	b.UrgencyBaseScore = base
	b.FunctionalStatusFactor = lookup(functionalFactor, r.FunctionalStatus, 1.0)
	b.PrognosisFactor = lookup(prognosisFactor, r.PrognosisRating, 1.0)
	b.MedicalUrgency = component(base*b.FunctionalStatusFactor*b.PrognosisFactor, w.MedicalUrgency)

	// 2. time on waitlist
	waitScore := 0.0
	if days, ok := wholeDays(r.WaitlistEntryDate, now); ok {
		if days < 0 {
			days = 0
		}
		b.DaysOnWaitlist = &days
		waitScore = math.Min(100, float64(days)/waitlistFullCreditDays*100)
		if days > longWaitThresholdDays {
			waitScore = math.Min(100, waitScore+longWaitBonus)
			b.LongWaitBonusApplied = true
		}
	}
	b.TimeOnWaitlist = component(waitScore, w.TimeOnWaitlist)

	// 3. organ specific
	organScore, source := organSpecificScore(r, base)
	b.OrganScoreSource = source
	b.OrganSpecific = component(organScore, w.OrganSpecific)

	// 4. evaluation recency
	recency := 0.0
	if days, ok := wholeDays(r.LastEvaluationDate, now); ok {
		if days < 0 {
			days = 0
		}
		b.DaysSinceEvaluation = &days
		if days <= evaluationFreshDays {
			recency = 100
		} else {
			periods := days / evaluationFreshDays
			b.DecayPeriods = periods
			recency = 100 * math.Pow(1-clamp(w.DecayRate, 0, 1), float64(periods))
		}
	}
	b.EvaluationRecency = component(recency, w.EvaluationRecency)

	// 5. blood type rarity
	b.BloodTypeRarity = component(lookup(bloodTypeRarity, r.BloodType, unknownRarity), w.BloodTypeRarity)

	b.WeightedSum = b.MedicalUrgency.Contribution +
		b.TimeOnWaitlist.Contribution +
		b.OrganSpecific.Contribution +
		b.EvaluationRecency.Contribution +
		b.BloodTypeRarity.Contribution

	adj := domain.ScoreAdjustments{
		PreviousTransplants: -5 * float64(r.PreviousTransplants),
	}
	if v := finite(r.ComorbidityScore); v != nil {
		adj.Comorbidity = -(*v / 10) * 10
	}
	if v := finite(r.ComplianceScore); v != nil {
		adj.Compliance = (*v / 10) * 5
	}
	adj.Net = adj.Comorbidity + adj.PreviousTransplants + adj.Compliance
	b.Adjustments = adj

	b.PreClampTotal = b.WeightedSum + adj.Net
	b.Total = clamp(b.PreClampTotal, 0, 100)

	return b.Total, b
}

func organSpecificScore(r *domain.Recipient, urgencyBase float64) (float64, string) {
	switch r.OrganNeeded {
	case domain.LIVER:
		if meld := finite(r.MELDScore); meld != nil {
			return clamp((*meld-meldFloor)/meldSpan*100, 0, 100), OrganSourceMELD
		}
	case domain.LUNG:
		if las := finite(r.LASScore); las != nil {
			return clamp(*las, 0, 100), OrganSourceLAS
		}
	case domain.KIDNEY:
		pra, cpra := finite(r.PRAPercentage), finite(r.CPRAPercentage)
		if pra != nil || cpra != nil {
			score := 50.0
			if pra != nil {
				score += *pra / 100 * 30
			}
			if cpra != nil {
				score += *cpra / 100 * 20
			}
			return clamp(score, 0, 100), OrganSourcePRA
		}
	}
	return organFallbackFactor * urgencyBase, OrganSourceFallback
}

func component(raw, weight float64) domain.ScoreComponent {
	return domain.ScoreComponent{
		RawScore:     raw,
		Weight:       weight,
		Contribution: raw * weight,
	}
}

// wholeDays returns the number of complete days from t to now.
func wholeDays(t *time.Time, now time.Time) (int, bool) {
	if t == nil || t.IsZero() {
		return 0, false
	}
	return int(math.Floor(now.Sub(*t).Hours() / hoursPerDay)), true
}

// finite returns nil for missing, NaN or infinite values.
func finite(p *float64) *float64 {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return nil
	}
	return p
}

func lookup[K comparable](table map[K]float64, key K, fallback float64) float64 {
	if v, ok := table[key]; ok {
		return v
	}
	return fallback
}

// clamp bounds v to [lo,hi]; NaN maps to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
