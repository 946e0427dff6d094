package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"neo4j-graphql/internal/config"
)

func TestVersionString(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })

	Version, Commit = "1.2.3", "abc123"
	assert.Equal(t, "neo4j-graphql 1.2.3 (abc123)", versionString())
}

func TestReportValidation(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ok := &config.ValidationResult{
		Warnings: []config.ValidationWarning{{Field: "database.password", Message: "no password source configured"}},
	}
	assert.NoError(t, reportValidation(logger, ok))
	assert.Contains(t, buf.String(), "configuration warning")

	failed := &config.ValidationResult{
		Errors: []config.ValidationError{
			{Field: "database.uri", Message: "is required"},
			{Field: "server.port", Message: "out of range"},
		},
	}
	assert.EqualError(t, reportValidation(logger, failed), "configuration validation failed: 2 error(s)")
	assert.Contains(t, buf.String(), "field=database.uri")
}
