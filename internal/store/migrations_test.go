package store

import (
	"strings"
	"testing"
)

// Embedded migrations are applied in lexical order; guard the naming
// convention so a misnamed file cannot silently reorder the schema.
func TestMigrationFilesWellFormed(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no embedded migrations found")
	}

	var previous string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			t.Errorf("migration %s does not follow the NNNN_name.up.sql convention", name)
		}
		if len(name) < 5 || strings.Trim(name[:4], "0123456789") != "" {
			t.Errorf("migration %s does not start with a four-digit sequence", name)
		}
		if previous != "" && name <= previous {
			t.Errorf("migration %s does not sort after %s", name, previous)
		}
		previous = name

		contents, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			t.Fatalf("read migration %s: %v", name, err)
		}
		if strings.TrimSpace(string(contents)) == "" {
			t.Errorf("migration %s is empty", name)
		}
	}
}
