package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptionsConnString(t *testing.T) {
	require.Equal(t, "postgres://u@h/db", Options{DSN: "postgres://u@h/db", Host: "ignored"}.ConnString())
	require.Equal(t,
		"host=localhost port=5432 user=pka password=secret dbname=notes sslmode=disable",
		Options{User: "pka", Password: "secret", DBName: "notes"}.ConnString())
	require.Equal(t,
		"host=db port=6543 user=a password= dbname=b sslmode=require",
		Options{Host: "db", Port: 6543, User: "a", DBName: "b", SSLMode: "require"}.ConnString())
}

func TestMigrationsEmbedded(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/001_pgvector.sql")
	require.NoError(t, err)
	require.Contains(t, string(data), "CREATE EXTENSION IF NOT EXISTS vector")
}
