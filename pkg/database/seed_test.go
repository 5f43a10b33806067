package database

import (
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/testutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRewards(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rewards.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSeedRewards_Dedupes(t *testing.T) {
	db := testutil.NewDB(t)
	path := writeRewards(t, `
rewards:
  - name: Hoodie
    kind: merch
    cost: 500
  - name: Discord Role
    kind: virtual
    cost: 50
`)

	n, err := SeedRewards(db, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = SeedRewards(db, path)
	require.NoError(t, err)
	assert.Zero(t, n)

	var items []model.RewardItem
	require.NoError(t, db.Order("cost ASC").Find(&items).Error)
	require.Len(t, items, 2)
	assert.Equal(t, "Discord Role", items[0].Name)
	assert.True(t, items[0].Active)
}

func TestSeedRewards_Invalid(t *testing.T) {
	db := testutil.NewDB(t)

	n, err := SeedRewards(db, filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = SeedRewards(db, writeRewards(t, "rewards:\n  - name: Gold\n    kind: cash\n    cost: 10\n"))
	assert.Error(t, err)

	_, err = SeedRewards(db, writeRewards(t, "rewards:\n  - name: Free\n    kind: virtual\n    cost: 0\n"))
	assert.Error(t, err)
}
