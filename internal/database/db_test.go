package database

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	src := `-- leading comment
CREATE TABLE a (
  id BIGINT PRIMARY KEY
);

CREATE TABLE b (id BIGINT);
-- trailing comment
`
	stmts := SplitStatements(src)
	require.Len(t, stmts, 2)
	assert.True(t, strings.HasPrefix(stmts[0], "-- leading comment\nCREATE TABLE a"))
	assert.True(t, strings.HasSuffix(stmts[0], ")"))
	assert.Equal(t, "CREATE TABLE b (id BIGINT)", stmts[1])
}

func TestInitMigrationParses(t *testing.T) {
	b, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_init.sql"))
	require.NoError(t, err)

	stmts := SplitStatements(string(b))
	require.Len(t, stmts, 5)
	for _, table := range []string{"users", "rooms", "room_members", "messages", "message_reactions"} {
		found := false
		for _, s := range stmts {
			if strings.Contains(s, "CREATE TABLE IF NOT EXISTS "+table+" (") {
				found = true
			}
		}
		assert.True(t, found, "table %s", table)
	}
}
