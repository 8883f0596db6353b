package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "pgdev.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndRecent(t *testing.T) {
	j := openTestJournal(t)

	require.NoError(t, j.Append(KindProvision, "shop", "role shop_user", "ok"))
	require.NoError(t, j.Append(KindBackup, "shop", "/tmp/b/shop_20260823_143005.sql.gz", "ok"))
	require.NoError(t, j.Append(KindToggle, "", "service now STOPPED", "ok"))

	records, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest first.
	require.Equal(t, KindToggle, records[0].Kind)
	require.Equal(t, KindBackup, records[1].Kind)
	require.Equal(t, "shop", records[1].Database)
	require.Equal(t, KindProvision, records[2].Kind)

	for _, r := range records {
		require.NotEmpty(t, r.ID)
		require.Equal(t, "ok", r.Status)
		require.False(t, r.CreatedAt.IsZero())
	}
}

func TestRecent_HonorsLimit(t *testing.T) {
	j := openTestJournal(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, j.Append(KindBackup, "shop", "artifact", "ok"))
	}

	records, err := j.Recent(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestRecent_EmptyJournal(t *testing.T) {
	j := openTestJournal(t)
	records, err := j.Recent(10)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "pgdev.db")
	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()
	require.Equal(t, path, j.Path())
}
