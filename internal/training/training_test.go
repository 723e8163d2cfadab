package training

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/triage/internal/core"
	"github.com/roach88/triage/internal/features"
	"github.com/roach88/triage/internal/model"
	"github.com/roach88/triage/internal/store"
	"github.com/roach88/triage/internal/testutil"
)

func testConfig(t *testing.T) core.Config {
	cfg := core.DefaultConfig()
	dir := t.TempDir()
	cfg.DatabasePath = dir + "/history.db"
	cfg.ArtifactDir = dir + "/artifacts"
	return cfg
}

func openManager(t *testing.T, cfg core.Config) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(cfg.DatabasePath, store.Priors{
		FailureRate: cfg.NeutralPrior,
		Latency:     cfg.LatencyPrior,
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	extractor := features.NewExtractor(st, cfg)
	m := NewManager(st, extractor, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.now = testutil.FixedClock{Instant: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}.Now
	return m, st
}

// seedRuns records n runs over three rules. The yaml-heavy runs fail the
// schema rule, giving the classifier a learnable file-pattern signal.
func seedRuns(t *testing.T, st *store.Store, n int) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < n; i++ {
		yamlChange := i%2 == 0
		files := []core.FileChangeRecord{core.ClassifyFile("internal/app/main.go")}
		if yamlChange {
			files = []core.FileChangeRecord{core.ClassifyFile("config/app.yaml")}
		}

		run := &core.ValidationRun{
			ID:         fmt.Sprintf("run-%03d", i),
			CommitID:   fmt.Sprintf("commit-%03d", i),
			Author:     "dev@example.com",
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			Mode:       core.ModeFixed,
			Files:      files,
			TotalRules: 3,
			Outcomes: []core.RuleOutcome{
				{RuleID: "lint", Passed: true, Duration: 100 * time.Millisecond, Severity: core.SeverityMedium, OrderIndex: 1},
				{RuleID: "schema", Passed: !yamlChange, Duration: 200 * time.Millisecond, Severity: core.SeverityCritical, OrderIndex: 2},
				{RuleID: "links", Passed: true, Duration: 150 * time.Millisecond, Severity: core.SeverityMedium, OrderIndex: 3},
			},
		}
		if yamlChange {
			run.FailedRules = 1
			run.TimeToFirst = 300 * time.Millisecond
		}
		run.TotalTime = 450 * time.Millisecond
		require.NoError(t, st.RecordRun(ctx, run))
	}
}

func TestShouldRetrainNoSnapshot(t *testing.T) {
	m, _ := openManager(t, testConfig(t))

	need, reason, err := m.ShouldRetrain(context.Background())
	require.NoError(t, err)
	assert.True(t, need)
	assert.Contains(t, reason, "no published model")
}

func publishSnapshot(t *testing.T, st *store.Store, version string, accuracy, fnr float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.RecordSnapshot(ctx, &core.ModelSnapshot{
		Version:     version,
		Strategy:    "linear",
		SampleCount: 50,
		Metrics:     core.Metrics{Accuracy: accuracy, F1: 0.9, FalseNegativeRate: fnr},
		TrainedAt:   time.Date(2026, 4, 20, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, st.PublishLatest(ctx, version))
}

func TestShouldRetrainThresholds(t *testing.T) {
	cases := []struct {
		name     string
		accuracy float64
		fnr      float64
		want     bool
	}{
		{"healthy", 0.95, 0.02, false},
		{"accuracy degraded", 0.80, 0.02, true},
		{"fnr elevated", 0.95, 0.10, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, st := openManager(t, testConfig(t))
			publishSnapshot(t, st, "v-"+tc.name, tc.accuracy, tc.fnr)

			need, reason, err := m.ShouldRetrain(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, need, reason)
		})
	}
}

func TestTrainAndPublishInsufficientData(t *testing.T) {
	m, st := openManager(t, testConfig(t))
	seedRuns(t, st, 5)

	_, err := m.TrainAndPublish(context.Background(), model.KindLinear)
	require.Error(t, err)
	assert.True(t, core.IsInsufficientData(err))

	snap, err := st.LatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestTrainAndPublishEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	m, st := openManager(t, cfg)
	seedRuns(t, st, 40)

	snap, err := m.TrainAndPublish(context.Background(), model.KindLinear)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "linear", snap.Strategy)
	assert.Equal(t, 120, snap.SampleCount)

	// Artifact exists on disk and loads against the current feature schema.
	_, err = os.Stat(snap.ArtifactPath)
	require.NoError(t, err)
	artifact, err := model.LoadArtifact(snap.ArtifactPath, features.FeatureNames)
	require.NoError(t, err)
	assert.Equal(t, snap.Version, artifact.Version)

	latest, err := st.LatestSnapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, snap.Version, latest.Version)
}

func TestTrainAndPublishIdempotent(t *testing.T) {
	cfg := testConfig(t)
	m, st := openManager(t, cfg)
	seedRuns(t, st, 40)

	first, err := m.TrainAndPublish(context.Background(), model.KindLinear)
	require.NoError(t, err)
	second, err := m.TrainAndPublish(context.Background(), model.KindLinear)
	require.NoError(t, err)

	// Same corpus, same fixed clock: the content-derived version repeats and
	// the pointer stays on it.
	assert.Equal(t, first.Version, second.Version)

	latest, err := st.LatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Version, latest.Version)
}

func TestTrainAndPublishEnsemble(t *testing.T) {
	cfg := testConfig(t)
	m, st := openManager(t, cfg)
	seedRuns(t, st, 40)

	snap, err := m.TrainAndPublish(context.Background(), model.KindEnsemble)
	require.NoError(t, err)
	assert.Equal(t, "ensemble", snap.Strategy)
	assert.NotEmpty(t, snap.Metrics.FeatureImportance)
}

func TestSuggestThresholds(t *testing.T) {
	m, st := openManager(t, testConfig(t))

	_, err := m.SuggestThresholds(context.Background())
	require.Error(t, err)

	publishSnapshot(t, st, "v-seed", 0.90, 0.04)
	th, err := m.SuggestThresholds(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.90/1.1, th.Accuracy, 1e-9)
	assert.InDelta(t, 0.04*1.1, th.FNR, 1e-9)
}
