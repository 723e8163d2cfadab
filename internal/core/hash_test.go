package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotVersionDeterminism(t *testing.T) {
	trainedAt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	v1, err := SnapshotVersion(120, 0.91, 0.87, trainedAt)
	require.NoError(t, err)

	v2, err := SnapshotVersion(120, 0.91, 0.87, trainedAt)
	require.NoError(t, err)

	assert.Equal(t, v1, v2, "SnapshotVersion must be deterministic")
	assert.Len(t, v1, 64, "SHA-256 hex is 64 characters")
}

func TestSnapshotVersionChangesWithInput(t *testing.T) {
	trainedAt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	base, err := SnapshotVersion(120, 0.91, 0.87, trainedAt)
	require.NoError(t, err)

	diffSamples, err := SnapshotVersion(121, 0.91, 0.87, trainedAt)
	require.NoError(t, err)
	diffAccuracy, err := SnapshotVersion(120, 0.92, 0.87, trainedAt)
	require.NoError(t, err)
	diffF1, err := SnapshotVersion(120, 0.91, 0.88, trainedAt)
	require.NoError(t, err)
	diffTime, err := SnapshotVersion(120, 0.91, 0.87, trainedAt.Add(time.Second))
	require.NoError(t, err)

	assert.NotEqual(t, base, diffSamples)
	assert.NotEqual(t, base, diffAccuracy)
	assert.NotEqual(t, base, diffF1)
	assert.NotEqual(t, base, diffTime)
}

func TestSnapshotVersionTimezoneInsensitive(t *testing.T) {
	utc := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	est := utc.In(time.FixedZone("EST", -5*3600))

	v1, err := SnapshotVersion(50, 0.8, 0.75, utc)
	require.NoError(t, err)
	v2, err := SnapshotVersion(50, 0.8, 0.75, est)
	require.NoError(t, err)

	assert.Equal(t, v1, v2, "same instant in different zones must hash identically")
}

func TestMarshalCanonicalSortsKeys(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{
		"zebra": int64(1),
		"alpha": int64(2),
		"mango": int64(3),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mango":3,"zebra":1}`, string(data))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"x": 0.5})
	assert.Error(t, err, "raw floats are forbidden, format them first")

	_, err = MarshalCanonical(map[string]any{"x": FormatFloat(0.5)})
	assert.NoError(t, err)
}

func TestMarshalCanonicalNoHTMLEscaping(t *testing.T) {
	data, err := MarshalCanonical("a<b&c>d")
	require.NoError(t, err)
	assert.Equal(t, `"a<b&c>d"`, string(data))
}

func TestFormatFloatRoundTrips(t *testing.T) {
	for _, f := range []float64{0, 0.5, 1.0 / 3.0, 0.95, 1e-9} {
		s := FormatFloat(f)
		assert.NotEmpty(t, s)
	}
	assert.Equal(t, "0.5", FormatFloat(0.5))
}
