package migrations

import (
	"io/fs"
	"testing"

	"github.com/cuongbtq/tracker-enrich/shared/postgresql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFS_ContainsRunTable(t *testing.T) {
	files, err := postgresql.MigrationFiles(FS)
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_create_enrichment_runs.sql", files[0])

	script, err := fs.ReadFile(FS, files[0])
	require.NoError(t, err)
	assert.Contains(t, string(script), "CREATE TABLE IF NOT EXISTS enrichment_runs")
}
