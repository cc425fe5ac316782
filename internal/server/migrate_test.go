package server

import (
	"strings"
	"testing"
)

func TestMigrateRejectsUnknownDirection(t *testing.T) {
	err := Migrate("file://migrations", "postgres://u:p@localhost/docqa?sslmode=disable", "sideways", 0)
	if err == nil || !strings.Contains(err.Error(), "unknown direction") {
		t.Fatalf("expected unknown-direction error, got %v", err)
	}
}

func TestMigrateSurfacesSourceErrors(t *testing.T) {
	// a bad source scheme must come back as an error, not be swallowed
	err := Migrate("broken://migrations", "postgres://u:p@localhost/docqa?sslmode=disable", "up", 0)
	if err == nil {
		t.Fatal("expected error for unknown source driver")
	}
}
