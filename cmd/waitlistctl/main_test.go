package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/organ-waitlist-engine/internal/domain"
	"github.com/organ-waitlist-engine/internal/service"
	"github.com/organ-waitlist-engine/pkg/abo"
)

const seed = `{
  "users": [{"id": "coord", "name": "Coordinator", "role": "coordinator"}],
  "donor_organs": [{"id": "d1", "organ_type": "KIDNEY", "blood_type": "O-", "hla_typing": "A1 A2 B7 B8 DR3 DR4"}],
  "recipients": [
    {"id": "r1", "blood_type": "O+", "organ_needed": "KIDNEY", "medical_urgency": "high",
     "waitlist_entry_date": "2024-02-01T00:00:00Z", "pra_percentage": 5},
    {"id": "r2", "blood_type": "A+", "organ_needed": "KIDNEY", "medical_urgency": "medium",
     "waitlist_entry_date": "2024-05-01T00:00:00Z", "pra_percentage": 5}
  ]
}`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// seeded returns a lite data directory holding the seed fixture.
func seeded(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	seedFile := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seedFile, []byte(seed), 0644))

	dataDir := filepath.Join(dir, "data")
	out, err := run(t, "lite", "seed", seedFile, "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 recipients")
	return dataDir
}

func TestMatch_LiteBackend(t *testing.T) {
	dataDir := seeded(t)

	out, err := run(t, "match", "d1", "--backend", "lite", "--data-dir", dataDir, "--actor", "ops-1")
	require.NoError(t, err)

	var result service.MatchingResult
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.Equal(t, 2, result.MatchesPersisted)
	assert.Equal(t, 2, result.NotificationsEmitted)
	require.Len(t, result.Matches, 2)
	assert.Equal(t, "ops-1", result.Matches[0].CreatedBy)
}

func TestRecompute_LiteBackend(t *testing.T) {
	dataDir := seeded(t)

	out, err := run(t, "recompute", "r1", "--backend", "lite", "--data-dir", dataDir)
	require.NoError(t, err)
	var result service.PriorityResult
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.Equal(t, "r1", result.RecipientID)

	_, err = run(t, "recompute", "ghost", "--backend", "lite", "--data-dir", dataDir)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecomputeWaitlist_RejectsUnknownOrgan(t *testing.T) {
	_, err := run(t, "recompute-waitlist", "spleen", "--backend", "lite", "--data-dir", t.TempDir())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSimulate_FromYAMLWritesNothing(t *testing.T) {
	dataDir := seeded(t)
	donorFile := filepath.Join(t.TempDir(), "donor.yaml")
	require.NoError(t, os.WriteFile(donorFile, []byte(`
id: what-if-1
organ_type: kidney
blood_type: O neg
hla_typing: A1 A2 B7 B8 DR3 DR4
donor_age: 35
`), 0644))

	out, err := run(t, "simulate", "--donor-file", donorFile, "--backend", "lite", "--data-dir", dataDir)
	require.NoError(t, err)
	var result service.MatchingResult
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.True(t, result.Simulated)
	assert.Equal(t, "what-if-1", result.DonorOrganID)
	assert.Len(t, result.Ranked, 2)
	assert.Zero(t, result.MatchesPersisted)

	exportFile := filepath.Join(t.TempDir(), "export.json")
	_, err = run(t, "lite", "export", "--out", exportFile, "--data-dir", dataDir)
	require.NoError(t, err)
	raw, err := os.ReadFile(exportFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"count": 0`)
}

func TestSimulate_RequiresDonorFile(t *testing.T) {
	_, err := run(t, "simulate", "--backend", "lite", "--data-dir", t.TempDir())
	assert.Error(t, err)
}

func TestLoadDonorFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("organ_type: Liver\nblood_type: AB pos\ndonor_weight_kg: 72.5\n"), 0644))
	donor, err := loadDonorFile(good)
	require.NoError(t, err)
	assert.Equal(t, domain.LIVER, donor.OrganType)
	assert.Equal(t, abo.ABPos, donor.BloodType)
	require.NotNil(t, donor.DonorWeightKg)
	assert.InDelta(t, 72.5, *donor.DonorWeightKg, 1e-9)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("organ_type: kidney\ncolour: blue\n"), 0644))
	_, err = loadDonorFile(unknown)
	assert.Error(t, err, "unknown keys are rejected")

	badOrgan := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badOrgan, []byte("organ_type: spleen\n"), 0644))
	_, err = loadDonorFile(badOrgan)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestExplainAndWeights_LiteBackend(t *testing.T) {
	dataDir := seeded(t)

	out, err := run(t, "explain", "d1", "r2", "--backend", "lite", "--data-dir", dataDir)
	require.NoError(t, err)
	var explanation service.Explanation
	require.NoError(t, json.Unmarshal([]byte(out), &explanation), out)
	assert.Equal(t, "r2", explanation.Verdict.RecipientID)

	out, err = run(t, "weights", "--backend", "lite", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, `"is_default": true`)
}

func TestWeightsSet_LiteBackend(t *testing.T) {
	dataDir := seeded(t)
	dir := t.TempDir()

	weightsFile := filepath.Join(dir, "weights.yaml")
	require.NoError(t, os.WriteFile(weightsFile, []byte(`name: urgency-heavy
medical_urgency_weight: 0.6
time_on_waitlist_weight: 0.2
organ_specific_weight: 0.1
evaluation_recency_weight: 0.05
blood_type_rarity_weight: 0.05
decay_rate: 0.1
`), 0644))

	out, err := run(t, "weights", "set", weightsFile, "--backend", "lite", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "urgency-heavy"`)

	out, err = run(t, "weights", "--backend", "lite", "--data-dir", dataDir)
	require.NoError(t, err)
	var active domain.WeightConfig
	require.NoError(t, json.Unmarshal([]byte(out), &active), out)
	assert.False(t, active.IsDefault)
	assert.Equal(t, "urgency-heavy", active.Name)
	assert.InDelta(t, 0.6, active.MedicalUrgency, 1e-9)

	negative := filepath.Join(dir, "negative.yaml")
	require.NoError(t, os.WriteFile(negative, []byte("name: broken\nmedical_urgency_weight: -1\n"), 0644))
	_, err = run(t, "weights", "set", negative, "--backend", "lite", "--data-dir", dataDir)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("urgency: 1\n"), 0644))
	_, err = run(t, "weights", "set", unknown, "--backend", "lite", "--data-dir", dataDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing weights file")
}

func TestLiteExportImport(t *testing.T) {
	dataDir := seeded(t)
	_, err := run(t, "match", "d1", "--backend", "lite", "--data-dir", dataDir)
	require.NoError(t, err)

	exportFile := filepath.Join(t.TempDir(), "matches.json")
	out, err := run(t, "lite", "export", "--donor", "d1", "-o", exportFile, "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, exportFile)

	out, err = run(t, "lite", "import", exportFile, "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Equal(t, "Imported 0 matches, skipped 2\n", out)

	freshDir := filepath.Join(t.TempDir(), "fresh")
	seedFile := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(seedFile, []byte(seed), 0644))
	_, err = run(t, "lite", "seed", seedFile, "--data-dir", freshDir)
	require.NoError(t, err)
	out, err = run(t, "lite", "import", exportFile, "--data-dir", freshDir)
	require.NoError(t, err)
	assert.Equal(t, "Imported 2 matches, skipped 0\n", out)
}

func TestMigrate_RejectsLiteBackend(t *testing.T) {
	_, err := run(t, "migrate", "up", "--backend", "lite")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres backend only")
}

func TestUnknownBackend(t *testing.T) {
	_, err := run(t, "weights", "--backend", "mongo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestMCPRegisterAndStatus(t *testing.T) {
	dir := t.TempDir()
	clientConfig := filepath.Join(dir, "client.json")
	binary := filepath.Join(dir, "mcp-server-lite")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0755))

	out, err := run(t, "mcp", "register", "--client-config", clientConfig, "--binary", binary, "--server-data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Registered organ-waitlist-engine")

	out, err = run(t, "mcp", "status", "--client-config", clientConfig)
	require.NoError(t, err)
	assert.Contains(t, out, `"Registered": true`)
	assert.Contains(t, out, `"Issues": null`)
}

func TestToken(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("auth:\n  jwt_secret: s3cret\n  jwt_issuer: transplant-center\n"), 0644))

	out, err := run(t, "token", "--config", configFile, "--subject", "dr-lee", "--role", "coordinator")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "."), 3)

	noSecret := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(noSecret, []byte("environment: test\n"), 0644))
	_, err = run(t, "token", "--config", noSecret, "--subject", "dr-lee")
	assert.Error(t, err)
}
