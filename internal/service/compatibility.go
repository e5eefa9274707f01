package service

import (
	"math"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/organ-waitlist-engine/internal/domain"
	"github.com/organ-waitlist-engine/pkg/abo"
	"github.com/organ-waitlist-engine/pkg/hla"
)

const (
	priorityWeight = 0.35
	hlaWeight      = 0.30

	exactABOBonus      = 10.0
	compatibleABOBonus = 5.0
	sizeOKBonus        = 10.0
	sizeMismatchBonus  = 3.0
	maxWaitBonus       = 10.0
	closeAgeBonus      = 5.0
	nearAgeBonus       = 3.0

	highSensitization    = 80.0
	sizeRatioMin         = 0.7
	sizeRatioMax         = 1.5
	hlaLoci              = 6.0
	dqMatchBonus         = 5.0
	negativeCrossmatchAt = 5
	sensitizedMinMatches = 4

	survivalBase        = 85.0
	survivalHLAMax      = 10.0
	survivalExactABO    = 3.0
	survivalPerPrior    = 5.0
	survivalPerComorbid = 2.0
	survivalMin         = 60.0
	survivalMax         = 98.0

	defaultTypingCacheSize = 4096
)

// Candidate is a recipient that survived every compatibility filter.
type Candidate struct {
	Recipient           *domain.Recipient       `json:"-"`
	RecipientID         string                  `json:"recipient_id"`
	RecipientName       string                  `json:"recipient_name"`
	Rank                int                     `json:"rank"`
	CompatibilityScore  float64                 `json:"compatibility_score"`
	ABOCompatible       bool                    `json:"abo_compatible"`
	BloodTypeExact      bool                    `json:"blood_type_exact"`
	HLAMatchScore       float64                 `json:"hla_match_score"`
	HLAMatches          domain.HLAMatchCounts   `json:"hla_matches"`
	SizeCompatible      bool                    `json:"size_compatible"`
	WeightRatio         *float64                `json:"weight_ratio,omitempty"`
	VirtualCrossmatch   domain.CrossmatchResult `json:"virtual_crossmatch"`
	PredictedSurvival   float64                 `json:"predicted_survival"`
	Eligibility         domain.Eligibility      `json:"eligibility"`
	DroppedTypingTokens []string                `json:"dropped_typing_tokens,omitempty"`
}

// Verdict is the outcome of evaluating one donor/recipient pair. Exactly one of
// Candidate and Reason is set.
type Verdict struct {
	RecipientID string                 `json:"recipient_id"`
	Eligibility domain.Eligibility     `json:"eligibility"`
	Reason      domain.RejectionReason `json:"reason,omitempty"`
	Candidate   *Candidate             `json:"candidate,omitempty"`
}

// Rejected reports whether the pair was filtered out.
func (v Verdict) Rejected() bool {
	return v.Eligibility == domain.ELIGIBILITY_REJECT
}

type parsedTyping struct {
	typing hla.Typing
	report hla.Report
}

// CompatibilityEvaluator scores a single donor/recipient pair. Parsed typing strings
// are cached; cached typings are never mutated so the evaluator is safe for
// concurrent use.
type CompatibilityEvaluator struct {
	logger  *logrus.Logger
	typings *lru.Cache[string, parsedTyping]
}

// NewCompatibilityEvaluator creates an evaluator whose typing cache holds up to
// cacheSize parsed strings.
func NewCompatibilityEvaluator(logger *logrus.Logger, cacheSize int) (*CompatibilityEvaluator, error) {
	if cacheSize <= 0 {
		cacheSize = defaultTypingCacheSize
	}
	cache, err := lru.New[string, parsedTyping](cacheSize)
	if err != nil {
		return nil, err
	}
	return &CompatibilityEvaluator{logger: logger, typings: cache}, nil
}

// Evaluate runs the compatibility filters for donor against recipient. A non-nil
// error always wraps domain.ErrDataError; rejections are reported in the Verdict.
func (e *CompatibilityEvaluator) Evaluate(donor *domain.DonorOrgan, recipient *domain.Recipient, now time.Time) (Verdict, error) {
	verdict := Verdict{RecipientID: recipient.ID}

	if err := validateRecipient(recipient); err != nil {
		return verdict, err
	}

	// 1. ABO
	if !abo.CanDonate(donor.BloodType, recipient.BloodType) {
		return reject(verdict, domain.REJECT_BLOOD_TYPE), nil
	}
	exactABO := donor.BloodType == recipient.BloodType

	// 2. HLA
	donorTyping := e.parse(donor.HLATyping)
	recipientTyping := e.parse(recipient.HLATyping)
	m := hla.Compare(donorTyping.typing, recipientTyping.typing)
	counts := domain.HLAMatchCounts{A: m.A, B: m.B, DR: m.DR, DQ: m.DQ, Total: m.Total}
	hlaScore := math.Min(100, float64(m.Total)/hlaLoci*100+dqMatchBonus*float64(m.DQ))

	if !recipientTyping.report.Clean() {
		e.logger.WithFields(logrus.Fields{
			"recipient_id": recipient.ID,
			"dropped":      recipientTyping.report.Dropped,
		}).Debug("Unrecognized typing tokens ignored")
	}

	// 3. virtual crossmatch
	crossmatch := virtualCrossmatch(recipient.Sensitization(), m.Total)
	if crossmatch == domain.CROSSMATCH_POSITIVE {
		return reject(verdict, domain.REJECT_CROSSMATCH), nil
	}

	// 4. size
	sizeOK := true
	var ratio *float64
	if donor.DonorWeightKg != nil && recipient.WeightKg != nil {
		r := *donor.DonorWeightKg / *recipient.WeightKg
		ratio = &r
		sizeOK = r >= sizeRatioMin && r <= sizeRatioMax
	}

	// 5. composite score
	score := priorityWeight*recipient.PriorityScore + hlaWeight*hlaScore
	if exactABO {
		score += exactABOBonus
	} else {
		score += compatibleABOBonus
	}
	if sizeOK {
		score += sizeOKBonus
	} else {
		score += sizeMismatchBonus
	}
	if days, ok := wholeDays(recipient.WaitlistEntryDate, now); ok && days > 0 {
		score += math.Min(maxWaitBonus, float64(days)/365*maxWaitBonus)
	}
	score += ageBonus(donor, recipient, now)
	score = math.Min(100, score)

	// 6. predicted survival
	survival := survivalBase + math.Min(survivalHLAMax, float64(m.Total)/hlaLoci*survivalHLAMax)
	if exactABO {
		survival += survivalExactABO
	}
	survival -= survivalPerPrior * float64(recipient.PreviousTransplants)
	if recipient.ComorbidityScore != nil {
		survival -= survivalPerComorbid * *recipient.ComorbidityScore
	}
	survival = clamp(survival, survivalMin, survivalMax)

	eligibility := domain.ELIGIBILITY_MAYBE
	if crossmatch == domain.CROSSMATCH_NEGATIVE {
		eligibility = domain.ELIGIBILITY_ACCEPT
	}

	verdict.Eligibility = eligibility
	verdict.Candidate = &Candidate{
		Recipient:           recipient,
		RecipientID:         recipient.ID,
		RecipientName:       recipient.DisplayName(),
		CompatibilityScore:  score,
		ABOCompatible:       true,
		BloodTypeExact:      exactABO,
		HLAMatchScore:       hlaScore,
		HLAMatches:          counts,
		SizeCompatible:      sizeOK,
		WeightRatio:         ratio,
		VirtualCrossmatch:   crossmatch,
		PredictedSurvival:   survival,
		Eligibility:         eligibility,
		DroppedTypingTokens: slices.Clone(recipientTyping.report.Dropped),
	}
	return verdict, nil
}

func (e *CompatibilityEvaluator) parse(typing string) parsedTyping {
	if cached, ok := e.typings.Get(typing); ok {
		return cached
	}
	t, report := hla.ParseWithReport(typing)
	parsed := parsedTyping{typing: t, report: report}
	e.typings.Add(typing, parsed)
	return parsed
}

func reject(v Verdict, reason domain.RejectionReason) Verdict {
	v.Eligibility = domain.ELIGIBILITY_REJECT
	v.Reason = reason
	return v
}

func virtualCrossmatch(sensitization *float64, totalMatches int) domain.CrossmatchResult {
	if sensitization != nil && *sensitization > highSensitization {
		if totalMatches < sensitizedMinMatches {
			return domain.CROSSMATCH_POSITIVE
		}
		return domain.CROSSMATCH_PENDING
	}
	if totalMatches >= negativeCrossmatchAt {
		return domain.CROSSMATCH_NEGATIVE
	}
	return domain.CROSSMATCH_PENDING
}

func ageBonus(donor *domain.DonorOrgan, recipient *domain.Recipient, now time.Time) float64 {
	if donor.DonorAge == nil {
		return 0
	}
	recipientAge, ok := recipient.AgeAt(now)
	if !ok {
		return 0
	}
	diff := *donor.DonorAge - recipientAge
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff <= 10:
		return closeAgeBonus
	case diff <= 20:
		return nearAgeBonus
	default:
		return 0
	}
}

// validateRecipient rejects records whose numeric fields cannot be scored.
func validateRecipient(r *domain.Recipient) error {
	if err := checkRange("pra_percentage", r.PRAPercentage, 0, 100); err != nil {
		return err
	}
	if err := checkRange("cpra_percentage", r.CPRAPercentage, 0, 100); err != nil {
		return err
	}
	if err := checkRange("comorbidity_score", r.ComorbidityScore, 0, 10); err != nil {
		return err
	}
	if err := checkRange("compliance_score", r.ComplianceScore, 0, 10); err != nil {
		return err
	}
	if r.WeightKg != nil && (math.IsNaN(*r.WeightKg) || math.IsInf(*r.WeightKg, 0) || *r.WeightKg <= 0) {
		return domain.DataError("weight_kg", "must be a positive number", *r.WeightKg)
	}
	if r.PreviousTransplants < 0 {
		return domain.DataError("previous_transplants", "must not be negative", r.PreviousTransplants)
	}
	if math.IsNaN(r.PriorityScore) || r.PriorityScore < 0 || r.PriorityScore > 100 {
		return domain.DataError("priority_score", "must be between 0 and 100", r.PriorityScore)
	}
	return nil
}

func checkRange(field string, v *float64, lo, hi float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || *v < lo || *v > hi {
		return domain.DataError(field, "out of range", *v)
	}
	return nil
}
