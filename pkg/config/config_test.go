package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriods(t *testing.T) {
	periods, err := parsePeriods("2025-1:Semester 2025-1:s2025_1, 2025-2:Semester 2025-2:s2025_2")
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, PeriodConfig{ID: "2025-1", Label: "Semester 2025-1", Suffix: "s2025_1"}, periods[0])
	assert.Equal(t, "s2025_2", periods[1].Suffix)
}

func TestParsePeriodsRejectsUnsafeSuffix(t *testing.T) {
	_, err := parsePeriods("2025-1:Semester:s2025;drop")
	require.Error(t, err)

	_, err = parsePeriods("2025-1:Semester")
	require.Error(t, err)

	_, err = parsePeriods("a:A:x,a:B:y")
	require.Error(t, err)

	_, err = parsePeriods("")
	require.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PERIODS", "2025-1:First:s2025_1")
	t.Setenv("ALLOCATOR_POLICY", PolicyFirstDescending)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, PolicyFirstDescending, cfg.Allocator.Policy)
	assert.True(t, cfg.Allocator.AtomicReplace)
	assert.Equal(t, " (imported)", cfg.Imports.DuplicateSuffix)
	assert.Equal(t, 3, cfg.Messaging.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Messaging.RetryDelay)
	require.Len(t, cfg.Periods, 1)
	assert.Equal(t, "s2025_1", cfg.Periods[0].Suffix)
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	t.Setenv("ALLOCATOR_POLICY", "random")
	_, err := Load()
	require.Error(t, err)
}
