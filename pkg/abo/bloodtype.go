// Package abo implements the ABO/Rh donor-to-recipient compatibility matrix used
// for solid-organ allocation. The table is fixed and exhaustively enumerated for the
// eight standard types; anything outside it is treated as incompatible.
package abo

import (
	"strings"
)

// BloodType is a normalized ABO/Rh type such as "O-" or "AB+".
type BloodType string

const (
	ONeg    BloodType = "O-"
	OPos    BloodType = "O+"
	ANeg    BloodType = "A-"
	APos    BloodType = "A+"
	BNeg    BloodType = "B-"
	BPos    BloodType = "B+"
	ABNeg   BloodType = "AB-"
	ABPos   BloodType = "AB+"
	Unknown BloodType = ""
)

// All lists the eight standard types in table order.
var All = []BloodType{ONeg, OPos, ANeg, APos, BNeg, BPos, ABNeg, ABPos}

// donorTable maps a donor type to the recipient types it can supply.
var donorTable = map[BloodType][]BloodType{
	ONeg:  {ONeg, OPos, ANeg, APos, BNeg, BPos, ABNeg, ABPos},
	OPos:  {OPos, APos, BPos, ABPos},
	ANeg:  {ANeg, APos, ABNeg, ABPos},
	APos:  {APos, ABPos},
	BNeg:  {BNeg, BPos, ABNeg, ABPos},
	BPos:  {BPos, ABPos},
	ABNeg: {ABNeg, ABPos},
	ABPos: {ABPos},
}

// Parse normalizes free-form blood type input. It accepts "O-", "O−" (unicode
// minus), "o neg", "AB pos", "A positive" and similar. Unrecognized input yields
// Unknown.
func Parse(input string) BloodType {
	s := strings.ToUpper(strings.TrimSpace(input))
	if s == "" {
		return Unknown
	}
	s = strings.NewReplacer("−", "-", "–", "-", "_", " ").Replace(s)

	var group, rh string
	switch {
	case strings.HasPrefix(s, "AB"):
		group, rh = "AB", s[2:]
	case strings.HasPrefix(s, "A"), strings.HasPrefix(s, "B"), strings.HasPrefix(s, "O"):
		group, rh = s[:1], s[1:]
	default:
		return Unknown
	}

	switch strings.TrimSpace(rh) {
	case "+", "POS", "POSITIVE":
		rh = "+"
	case "-", "NEG", "NEGATIVE":
		rh = "-"
	default:
		return Unknown
	}

	bt := BloodType(group + rh)
	if !bt.IsValid() {
		return Unknown
	}
	return bt
}

// IsValid reports whether the type is one of the eight standard types.
func (b BloodType) IsValid() bool {
	_, ok := donorTable[b]
	return ok
}

// String returns the normalized representation.
func (b BloodType) String() string {
	if b == Unknown {
		return "unknown"
	}
	return string(b)
}

// CanDonate reports whether an organ of donor type can be given to a recipient of
// recipient type. Unknown on either side is incompatible.
func CanDonate(donor, recipient BloodType) bool {
	for _, r := range donorTable[donor] {
		if r == recipient {
			return true
		}
	}
	return false
}

// CompatibleRecipients returns a copy of the recipient types a donor type can
// supply. Unknown donors supply nobody.
func CompatibleRecipients(donor BloodType) []BloodType {
	recipients := donorTable[donor]
	out := make([]BloodType, len(recipients))
	copy(out, recipients)
	return out
}
