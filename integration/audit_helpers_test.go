package integration_test

import (
	"database/sql"
	"sort"
	"testing"

	_ "modernc.org/sqlite"
)

// requireAuditEvents fails unless every event type in want was logged at
// least once.
func requireAuditEvents(t *testing.T, dbPath string, want []string) {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open audit db: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	rows, err := db.Query("SELECT DISTINCT type FROM events")
	if err != nil {
		t.Fatalf("query audit events %s: %v", dbPath, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	seen := make(map[string]bool)
	for rows.Next() {
		var eventType string
		if err := rows.Scan(&eventType); err != nil {
			t.Fatalf("scan audit event: %v", err)
		}
		seen[eventType] = true
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate audit events: %v", err)
	}

	for _, eventType := range want {
		if !seen[eventType] {
			have := make([]string, 0, len(seen))
			for k := range seen {
				have = append(have, k)
			}
			sort.Strings(have)
			t.Fatalf("missing audit event %s in %s (have %v)", eventType, dbPath, have)
		}
	}
}
