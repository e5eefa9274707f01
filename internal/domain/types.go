// Package domain contains the core entities, enumerations and contracts of the
// waitlist priority scoring and donor-recipient matching engine.
//
// The engine is an operational ranking aid. It does not make clinical decisions and
// does not replace the determinations of an organ allocation authority.
package domain

import (
	"strings"
)

// OrganType is the closed set of organs the engine knows how to score. Adding an
// organ means adding a constant here and a case in the organ-specific scorer.
type OrganType string

const (
	KIDNEY    OrganType = "KIDNEY"
	LIVER     OrganType = "LIVER"
	LUNG      OrganType = "LUNG"
	HEART     OrganType = "HEART"
	PANCREAS  OrganType = "PANCREAS"
	INTESTINE OrganType = "INTESTINE"
)

// OrganTypes lists every supported organ.
var OrganTypes = []OrganType{KIDNEY, LIVER, LUNG, HEART, PANCREAS, INTESTINE}

// ParseOrganType normalizes user input ("kidney", " Liver ") into an OrganType.
func ParseOrganType(s string) (OrganType, error) {
	ot := OrganType(strings.ToUpper(strings.TrimSpace(s)))
	if !ot.IsValid() {
		return "", NewValidationError("organ_type", "unsupported organ type", s)
	}
	return ot, nil
}

// IsValid reports whether the organ type is supported.
func (o OrganType) IsValid() bool {
	switch o {
	case KIDNEY, LIVER, LUNG, HEART, PANCREAS, INTESTINE:
		return true
	default:
		return false
	}
}

// String returns the string representation of the organ type.
func (o OrganType) String() string {
	return string(o)
}

// UrgencyLevel is the recipient's medical urgency category.
type UrgencyLevel string

const (
	URGENCY_CRITICAL UrgencyLevel = "critical"
	URGENCY_HIGH     UrgencyLevel = "high"
	URGENCY_MEDIUM   UrgencyLevel = "medium"
	URGENCY_LOW      UrgencyLevel = "low"
)

// IsValid reports whether the urgency is a known category.
func (u UrgencyLevel) IsValid() bool {
	switch u {
	case URGENCY_CRITICAL, URGENCY_HIGH, URGENCY_MEDIUM, URGENCY_LOW:
		return true
	default:
		return false
	}
}

// FunctionalStatus describes how independent the recipient currently is.
type FunctionalStatus string

const (
	FUNCTIONAL_CRITICAL           FunctionalStatus = "critical"
	FUNCTIONAL_SEVERELY_LIMITED   FunctionalStatus = "severely_limited"
	FUNCTIONAL_LIMITED            FunctionalStatus = "limited"
	FUNCTIONAL_MOSTLY_INDEPENDENT FunctionalStatus = "mostly_independent"
	FUNCTIONAL_INDEPENDENT        FunctionalStatus = "independent"
)

// IsValid reports whether the functional status is a known category.
func (f FunctionalStatus) IsValid() bool {
	switch f {
	case FUNCTIONAL_CRITICAL, FUNCTIONAL_SEVERELY_LIMITED, FUNCTIONAL_LIMITED,
		FUNCTIONAL_MOSTLY_INDEPENDENT, FUNCTIONAL_INDEPENDENT:
		return true
	default:
		return false
	}
}

// PrognosisRating is the clinical team's prognosis category.
type PrognosisRating string

const (
	PROGNOSIS_CRITICAL  PrognosisRating = "critical"
	PROGNOSIS_POOR      PrognosisRating = "poor"
	PROGNOSIS_FAIR      PrognosisRating = "fair"
	PROGNOSIS_GOOD      PrognosisRating = "good"
	PROGNOSIS_EXCELLENT PrognosisRating = "excellent"
)

// IsValid reports whether the prognosis is a known category.
func (p PrognosisRating) IsValid() bool {
	switch p {
	case PROGNOSIS_CRITICAL, PROGNOSIS_POOR, PROGNOSIS_FAIR, PROGNOSIS_GOOD, PROGNOSIS_EXCELLENT:
		return true
	default:
		return false
	}
}

// WaitlistStatus is the recipient's listing status. Only active recipients are
// matched.
type WaitlistStatus string

const (
	STATUS_ACTIVE       WaitlistStatus = "active"
	STATUS_INACTIVE     WaitlistStatus = "inactive"
	STATUS_TRANSPLANTED WaitlistStatus = "transplanted"
	STATUS_REMOVED      WaitlistStatus = "removed"
)

// CrossmatchResult is the outcome of a virtual or physical crossmatch.
type CrossmatchResult string

const (
	CROSSMATCH_NEGATIVE      CrossmatchResult = "negative"
	CROSSMATCH_PENDING       CrossmatchResult = "pending"
	CROSSMATCH_POSITIVE      CrossmatchResult = "positive"
	CROSSMATCH_NOT_PERFORMED CrossmatchResult = "not_performed"
)

// Eligibility summarizes a compatibility verdict.
type Eligibility string

const (
	ELIGIBILITY_ACCEPT Eligibility = "accept"
	ELIGIBILITY_MAYBE  Eligibility = "maybe"
	ELIGIBILITY_REJECT Eligibility = "reject"
)

// RejectionReason explains why a candidate left the ranking.
type RejectionReason string

const (
	REJECT_BLOOD_TYPE     RejectionReason = "blood_type"
	REJECT_CROSSMATCH     RejectionReason = "crossmatch"
	REJECT_DATA_ERROR     RejectionReason = "data_error"
	REJECT_ORGAN_MISMATCH RejectionReason = "organ_mismatch"
	REJECT_INACTIVE       RejectionReason = "inactive"
)

// NotificationSeverity ranks notification importance.
type NotificationSeverity string

const (
	SEVERITY_CRITICAL NotificationSeverity = "critical"
	SEVERITY_HIGH     NotificationSeverity = "high"
)

// MatchStatus is the lifecycle status of a persisted match. The engine only ever
// creates matches in the pending state.
type MatchStatus string

const (
	MATCH_PENDING MatchStatus = "pending"
)

// TieBreak selects how equal compatibility scores are ordered.
type TieBreak string

const (
	// TIE_BREAK_POOL_ORDER keeps the candidate pool's iteration order.
	TIE_BREAK_POOL_ORDER TieBreak = "pool_order"
	// TIE_BREAK_RECIPIENT_ID orders ties by ascending recipient ID.
	TIE_BREAK_RECIPIENT_ID TieBreak = "recipient_id"
)
