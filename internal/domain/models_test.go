package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/organ-waitlist-engine/pkg/abo"
)

func ptr[T any](v T) *T { return &v }

func TestRecipient_Sensitization(t *testing.T) {
	tests := []struct {
		name     string
		pra      *float64
		cpra     *float64
		expected *float64
	}{
		{"neither", nil, nil, nil},
		{"pra only", ptr(40.0), nil, ptr(40.0)},
		{"cpra only", nil, ptr(85.0), ptr(85.0)},
		{"cpra higher", ptr(40.0), ptr(85.0), ptr(85.0)},
		{"pra higher", ptr(90.0), ptr(10.0), ptr(90.0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Recipient{PRAPercentage: tt.pra, CPRAPercentage: tt.cpra}
			assert.Equal(t, tt.expected, r.Sensitization())
		})
	}
}

func TestRecipient_AgeAt(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	r := &Recipient{DateOfBirth: ptr(time.Date(1980, 6, 16, 0, 0, 0, 0, time.UTC))}
	age, ok := r.AgeAt(now)
	require.True(t, ok)
	assert.Equal(t, 43, age, "birthday not reached yet this year")

	r.DateOfBirth = ptr(time.Date(1980, 6, 1, 0, 0, 0, 0, time.UTC))
	age, _ = r.AgeAt(now)
	assert.Equal(t, 44, age)

	_, ok = (&Recipient{}).AgeAt(now)
	assert.False(t, ok)
}

func TestRecipient_DisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", (&Recipient{ID: "r1", FirstName: "Ada", LastName: "Lovelace"}).DisplayName())
	assert.Equal(t, "r2", (&Recipient{ID: "r2"}).DisplayName())
}

func TestDonorOrgan_Validate(t *testing.T) {
	valid := &DonorOrgan{ID: "d1", OrganType: KIDNEY}
	assert.NoError(t, valid.Validate())

	err := (&DonorOrgan{ID: "d2", OrganType: "SPLEEN"}).Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	err = (&DonorOrgan{ID: "d3", OrganType: LIVER, DonorWeightKg: ptr(0.0)}).Validate()
	assert.Error(t, err)

	err = (&DonorOrgan{ID: "d4", OrganType: LIVER, DonorAge: ptr(-1)}).Validate()
	assert.Error(t, err)

	nonFinite := []struct {
		name  string
		donor *DonorOrgan
		field string
	}{
		{"weight NaN", &DonorOrgan{OrganType: KIDNEY, DonorWeightKg: ptr(math.NaN())}, "donor_weight_kg"},
		{"weight +Inf", &DonorOrgan{OrganType: KIDNEY, DonorWeightKg: ptr(math.Inf(1))}, "donor_weight_kg"},
		{"height NaN", &DonorOrgan{OrganType: KIDNEY, DonorHeightCm: ptr(math.NaN())}, "donor_height_cm"},
		{"height -Inf", &DonorOrgan{OrganType: KIDNEY, DonorHeightCm: ptr(math.Inf(-1))}, "donor_height_cm"},
		{"height zero", &DonorOrgan{OrganType: KIDNEY, DonorHeightCm: ptr(0.0)}, "donor_height_cm"},
	}
	for _, tt := range nonFinite {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.donor.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestDonorOrgan_Normalize(t *testing.T) {
	tests := []struct {
		organ OrganType
		blood abo.BloodType
		want  abo.BloodType
	}{
		{"kidney", "O−", abo.ONeg},
		{" Liver ", "o neg", abo.ONeg},
		{"KIDNEY", "ab pos", abo.ABPos},
		{"heart", "Z+", abo.Unknown},
	}
	for _, tt := range tests {
		t.Run(string(tt.organ)+"/"+string(tt.blood), func(t *testing.T) {
			d := &DonorOrgan{OrganType: tt.organ, BloodType: tt.blood}
			require.NoError(t, d.Normalize())
			assert.True(t, d.OrganType.IsValid())
			assert.Equal(t, tt.want, d.BloodType)
		})
	}

	err := (&DonorOrgan{OrganType: "spleen", BloodType: "O-"}).Normalize()
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestDefaultWeightConfig(t *testing.T) {
	w := DefaultWeightConfig()

	assert.True(t, w.IsDefault)
	assert.InDelta(t, 0.30, w.MedicalUrgency, 1e-9)
	assert.InDelta(t, 0.25, w.TimeOnWaitlist, 1e-9)
	assert.InDelta(t, 0.25, w.OrganSpecific, 1e-9)
	assert.InDelta(t, 0.10, w.EvaluationRecency, 1e-9)
	assert.InDelta(t, 0.10, w.BloodTypeRarity, 1e-9)
	assert.InDelta(t, 0.5, w.DecayRate, 1e-9)
}

func TestActor_String(t *testing.T) {
	assert.Equal(t, "u1 (coordinator)", Actor{ID: "u1", Role: "coordinator"}.String())
	assert.Equal(t, "u2", Actor{ID: "u2"}.String())
}
