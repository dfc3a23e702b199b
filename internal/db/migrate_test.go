package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_OrderedAndEmbedded(t *testing.T) {
	versions, err := Migrations()
	require.NoError(t, err)

	require.NotEmpty(t, versions)
	assert.IsIncreasing(t, versions)
	assert.Equal(t, "0001_accounts.sql", versions[0])

	for _, version := range versions {
		script, err := migrationFiles.ReadFile("migrations/" + version)
		require.NoError(t, err)
		assert.NotEmpty(t, script, version)
	}
}

func TestMigrations_DefineEveryTable(t *testing.T) {
	versions, err := Migrations()
	require.NoError(t, err)

	var all string
	for _, version := range versions {
		script, err := migrationFiles.ReadFile("migrations/" + version)
		require.NoError(t, err)
		all += string(script)
	}

	for _, table := range []string{"accounts", "refresh_tokens", "posts", "post_likes", "post_comments", "notifications", "follows"} {
		assert.Contains(t, all, "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
	assert.Contains(t, all, "accounts_email_key")
	assert.Contains(t, all, "accounts_username_key")
}
