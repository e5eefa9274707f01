package litestore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/organ-waitlist-engine/internal/domain"
	"github.com/organ-waitlist-engine/internal/service"
	"github.com/organ-waitlist-engine/pkg/abo"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func createTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "litestore-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := Open(filepath.Join(tmpDir, "test.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func ptr[T any](v T) *T { return &v }

func daysAgo(n int) *time.Time {
	t := time.Now().UTC().AddDate(0, 0, -n).Truncate(time.Second)
	return &t
}

func TestOpen_CreatesDatabaseFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "litestore-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "nested", "waitlist.db")
	store, err := Open(dbPath, testLogger())
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist")
	assert.Equal(t, dbPath, store.Path())
	assert.NoError(t, store.Ping(context.Background()))
}

func TestRecipients_RoundTrip(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	in := &domain.Recipient{
		ID:                "r1",
		FirstName:         "Ana",
		LastName:          "Silva",
		BloodType:         abo.ABNeg,
		OrganNeeded:       domain.LIVER,
		HLATyping:         "A1 B8 DR3",
		MedicalUrgency:    domain.URGENCY_HIGH,
		FunctionalStatus:  domain.FUNCTIONAL_LIMITED,
		PrognosisRating:   domain.PROGNOSIS_FAIR,
		WaitlistEntryDate: daysAgo(120),
		MELDScore:         ptr(31.0),
		WeightKg:          ptr(64.5),
	}
	require.NoError(t, store.SaveRecipient(ctx, in))

	got, err := store.Recipients().GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Silva", got.DisplayName())
	assert.Equal(t, abo.ABNeg, got.BloodType)
	assert.Equal(t, domain.LIVER, got.OrganNeeded)
	assert.Equal(t, domain.STATUS_ACTIVE, got.WaitlistStatus)
	require.NotNil(t, got.MELDScore)
	assert.Equal(t, 31.0, *got.MELDScore)
	assert.Nil(t, got.LASScore)
	assert.Nil(t, got.DateOfBirth)
	require.NotNil(t, got.WaitlistEntryDate)
	assert.True(t, in.WaitlistEntryDate.Equal(*got.WaitlistEntryDate))
	assert.Nil(t, got.PriorityBreakdown)

	_, err = store.Recipients().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecipients_UpdatePriority(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveRecipient(ctx, &domain.Recipient{ID: "r1", BloodType: abo.OPos, OrganNeeded: domain.KIDNEY}))

	breakdown := &domain.ScoreBreakdown{Total: 72.5, OrganScoreSource: "pra", DecayPeriods: 1}
	require.NoError(t, store.Recipients().UpdatePriority(ctx, "r1", 72.5, breakdown))

	got, err := store.GetRecipient(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 72.5, got.PriorityScore)
	require.NotNil(t, got.PriorityBreakdown)
	assert.Equal(t, "pra", got.PriorityBreakdown.OrganScoreSource)
	assert.Equal(t, 1, got.PriorityBreakdown.DecayPeriods)

	err = store.Recipients().UpdatePriority(ctx, "ghost", 10, breakdown)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecipients_ListActiveByOrgan_PoolOrder(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for _, r := range []*domain.Recipient{
		{ID: "a", OrganNeeded: domain.KIDNEY, BloodType: abo.OPos, WaitlistEntryDate: daysAgo(10)},
		{ID: "b", OrganNeeded: domain.KIDNEY, BloodType: abo.OPos},
		{ID: "c", OrganNeeded: domain.KIDNEY, BloodType: abo.OPos, WaitlistEntryDate: daysAgo(300)},
		{ID: "d", OrganNeeded: domain.KIDNEY, BloodType: abo.OPos, WaitlistEntryDate: daysAgo(10)},
		{ID: "e", OrganNeeded: domain.KIDNEY, BloodType: abo.OPos, WaitlistStatus: domain.STATUS_INACTIVE},
		{ID: "f", OrganNeeded: domain.HEART, BloodType: abo.OPos},
	} {
		require.NoError(t, store.SaveRecipient(ctx, r))
	}

	pool, err := store.Recipients().ListActiveByOrgan(ctx, domain.KIDNEY)
	require.NoError(t, err)

	ids := make([]string, len(pool))
	for i, r := range pool {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"c", "a", "d", "b"}, ids)
}

func TestDonorOrgans_RoundTrip(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveDonorOrgan(ctx, &domain.DonorOrgan{
		ID:        "d1", DonorID: "donor-9", OrganType: domain.KIDNEY, BloodType: abo.ONeg,
		HLATyping: "A1 A2", DonorAge: ptr(44), DonorWeightKg: ptr(80.0),
	}))

	got, err := store.DonorOrgans().GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.KIDNEY, got.OrganType)
	assert.Equal(t, abo.ONeg, got.BloodType)
	require.NotNil(t, got.DonorAge)
	assert.Equal(t, 44, *got.DonorAge)
	assert.Nil(t, got.DonorHeightCm)
	assert.False(t, got.Hypothetical)

	_, err = store.DonorOrgans().GetByID(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWeightConfigs_SingleActivePerOrganization(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	none, err := store.WeightConfigs().GetActive(ctx, "org-1")
	require.NoError(t, err)
	assert.Nil(t, none)

	first := domain.DefaultWeightConfig()
	first.OrganizationID = "org-1"
	first.Name = "first"
	first.IsDefault = false
	require.NoError(t, store.SaveWeightConfig(ctx, &first))
	assert.NotEmpty(t, first.ID)

	second := first
	second.ID = ""
	second.Name = "second"
	second.MedicalUrgency = 0.5
	require.NoError(t, store.SaveWeightConfig(ctx, &second))

	active, err := store.WeightConfigs().GetActive(ctx, "org-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "second", active.Name)
	assert.Equal(t, 0.5, active.MedicalUrgency)
	assert.True(t, active.Active)

	other, err := store.WeightConfigs().GetActive(ctx, "org-2")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestUsers_ListByRoles(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for _, u := range []domain.User{
		{ID: "u3", Name: "Cleo", Role: "coordinator"},
		{ID: "u1", Name: "Abe", Role: "admin"},
		{ID: "u2", Name: "Bo", Role: "viewer"},
	} {
		require.NoError(t, store.SaveUser(ctx, u))
	}

	got, err := store.Users().ListByRoles(ctx, []string{"admin", "coordinator"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "u1", got[0].ID)
	assert.Equal(t, "u3", got[1].ID)

	empty, err := store.Users().ListByRoles(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func sampleEffects(now time.Time) ([]domain.Match, []domain.Notification) {
	ms := []domain.Match{
		{ID: "m1", DonorOrganID: "d1", RecipientID: "r1", RecipientName: "r1", CompatibilityScore: 90, ABOCompatible: true,
			HLAMatchScore:     50, HLAMatches: domain.HLAMatchCounts{A: 1, B: 1, DR: 1, Total: 3}, SizeCompatible: true, Rank: 1,
			VirtualCrossmatch: domain.CROSSMATCH_NEGATIVE, PhysicalCrossmatch: domain.CROSSMATCH_PENDING,
			PredictedSurvival: 90, Status: domain.MATCH_PENDING, CreatedBy: "coord", CreatedAt: now},
		{ID: "m2", DonorOrganID: "d1", RecipientID: "r2", RecipientName: "r2", CompatibilityScore: 70, ABOCompatible: true,
			SizeCompatible:    true, Rank: 2, VirtualCrossmatch: domain.CROSSMATCH_PENDING, PhysicalCrossmatch: domain.CROSSMATCH_PENDING,
			PredictedSurvival: 80, Status: domain.MATCH_PENDING, CreatedBy: "coord", CreatedAt: now},
	}
	ns := []domain.Notification{
		{ID: "n1", UserID: "coord", Type: domain.NotificationTypeMatchFound, Severity: domain.SEVERITY_HIGH,
			Title:     "KIDNEY match found: rank 1", Message: "m", DonorOrganID: "d1", RecipientID: "r1", MatchID: "m1",
			CreatedBy: "coord", CreatedAt: now},
	}
	return ms, ns
}

func TestApplyMatchEffects_CommitsAll(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveUser(ctx, domain.User{ID: "coord", Role: "coordinator"}))

	ms, ns := sampleEffects(time.Now().UTC())
	require.NoError(t, store.Effects().ApplyMatchEffects(ctx, ms, ns))

	listed, err := store.Matches().ListByDonorOrgan(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "m1", listed[0].ID)
	assert.Equal(t, domain.HLAMatchCounts{A: 1, B: 1, DR: 1, Total: 3}, listed[0].HLAMatches)
	assert.Equal(t, domain.CROSSMATCH_NEGATIVE, listed[0].VirtualCrossmatch)
	assert.True(t, listed[0].ABOCompatible)
	assert.False(t, listed[0].BloodTypeExact)

	count, err := store.CountNotifications(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestApplyMatchEffects_RollsBackOnNotificationFailure(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	// No users exist, so the notification violates its foreign key.
	ms, ns := sampleEffects(time.Now().UTC())
	err := store.ApplyMatchEffects(ctx, ms, ns)
	require.Error(t, err)

	listed, err := store.ListMatches(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, listed, "matches must not survive a failed notification insert")
}

func TestApplyMatchEffects_RollbackWithMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, testLogger())
	ms, ns := sampleEffects(time.Now().UTC())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO matches").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO matches").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("INSERT INTO notifications").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = store.ApplyMatchEffects(context.Background(), ms, ns)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "n1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMatchEffects_CommitWithMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, testLogger())
	ms, _ := sampleEffects(time.Now().UTC())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO matches").WithArgs(
		"m1", "d1", "r1", "r1", 90.0, true, false, 50.0, 1, 1, 1, 0, 3, true, 1,
		"negative", "pending", 90.0, "pending", "coord", sqlmock.AnyArg(),
	).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.ApplyMatchEffects(context.Background(), ms[:1], nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportImportMatches(t *testing.T) {
	source := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, source.SaveUser(ctx, domain.User{ID: "coord", Role: "coordinator"}))
	ms, ns := sampleEffects(time.Now().UTC().Truncate(time.Second))
	require.NoError(t, source.ApplyMatchEffects(ctx, ms, ns))

	var buf bytes.Buffer
	require.NoError(t, source.ExportMatches(ctx, &buf, "d1"))
	assert.Contains(t, buf.String(), `"version": "1.0"`)
	assert.Contains(t, buf.String(), `"count": 2`)

	target := createTestStore(t)
	imported, skipped, err := target.ImportMatches(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 0, skipped)

	imported, skipped, err = target.ImportMatches(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 2, skipped)

	listed, err := target.ListMatches(ctx, "")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, ms[0].RecipientID, listed[0].RecipientID)
	assert.True(t, ms[0].CreatedAt.Equal(listed[0].CreatedAt))
}

func TestImportMatches_RejectsUnknownVersion(t *testing.T) {
	store := createTestStore(t)
	_, _, err := store.ImportMatches(context.Background(), strings.NewReader(`{"version":"9","matches":[]}`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = store.ImportMatches(context.Background(), strings.NewReader(`not json`))
	assert.Error(t, err)
}

const seedJSON = `{
  "users": [{"id": "coord", "name": "Coordinator", "role": "coordinator"}],
  "recipients": [
    {"id": "r1", "blood_type": "O+", "organ_needed": "KIDNEY", "medical_urgency": "medium", "pra_percentage": 10, "waitlist_status": "active"},
    {"id": "r2", "blood_type": "O+", "organ_needed": "KIDNEY", "medical_urgency": "high", "pra_percentage": 20, "waitlist_status": "active"}
  ],
  "donor_organs": [{"id": "d1", "organ_type": "KIDNEY", "blood_type": "O-", "hla_typing": "A1 A2 B7 B8 DR3 DR4"}],
  "weight_configs": [{"organization_id": "default", "name": "seeded", "medical_urgency_weight": 0.3,
    "time_on_waitlist_weight": 0.25, "organ_specific_weight": 0.25, "evaluation_recency_weight": 0.1,
    "blood_type_rarity_weight": 0.1, "decay_rate": 0.5, "active": true}]
}`

func TestLoadSeed_AndEngineEndToEnd(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	seed, err := store.LoadSeed(ctx, strings.NewReader(seedJSON))
	require.NoError(t, err)
	assert.Len(t, seed.Recipients, 2)

	weights, err := store.GetActiveWeights(ctx, "default")
	require.NoError(t, err)
	require.NotNil(t, weights)
	assert.Equal(t, "seeded", weights.Name)

	engine, err := service.NewEngine(store, nil, domain.DefaultEngineConfig(), testLogger())
	require.NoError(t, err)

	batch, err := engine.RecomputeWaitlist(ctx, domain.SystemActor, domain.KIDNEY)
	require.NoError(t, err)
	assert.Len(t, batch.Results, 2)
	assert.Empty(t, batch.Failures)

	live, err := engine.RunMatching(ctx, domain.SystemActor, "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, live.MatchesPersisted)
	assert.Equal(t, 2, live.NotificationsEmitted)

	listed, err := engine.ListMatches(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, 1, listed[0].Rank)
	assert.Equal(t, live.Ranked[0].RecipientID, listed[0].RecipientID)
}
