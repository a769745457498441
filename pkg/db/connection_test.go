package db

import (
	"strings"
	"testing"
)

func TestParseMigrationName(t *testing.T) {
	version, op, err := parseMigrationName("0001_init.up.sql")
	if err != nil || version != 1 || op != "up" {
		t.Fatalf("unexpected result %v %v %v", version, op, err)
	}
	version, op, err = parseMigrationName("0012_add_index.down.sql")
	if err != nil || version != 12 || op != "down" {
		t.Fatalf("unexpected result %v %v %v", version, op, err)
	}
	for _, name := range []string{"init.up.sql", "0001_init.sql", "0001_init.sideways.sql"} {
		if _, _, err := parseMigrationName(name); err == nil {
			t.Errorf("expected error for %v", name)
		}
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	dir, err := fs.ReadDir("migrations")
	if err != nil {
		t.Fatal(err)
	}
	ups := 0
	for _, f := range dir {
		version, op, err := parseMigrationName(f.Name())
		if err != nil {
			t.Fatalf("invalid migration %v: %v", f.Name(), err)
		}
		if op == "up" {
			ups++
			if version != ups {
				t.Errorf("migrations must be sequential, got %v at %v", version, ups)
			}
		}
	}
	if ups == 0 {
		t.Fatalf("no migrations embedded")
	}
}

func TestMarshalJsonForDb(t *testing.T) {
	b, err := marshalJsonForDb(map[string]string{"log": "a\x00b"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), `\u0000`) {
		t.Errorf("null characters must be removed: %s", b)
	}
}

func TestJobHistoryColumns(t *testing.T) {
	columns := strings.Split(jobColumns, ", ")
	history := strings.Split(jobHistoryColumns, ", ")
	if len(columns) != len(history) {
		t.Fatalf("history columns must scan like job columns: %v vs %v", columns, history)
	}
	for i := range columns {
		if columns[i] == "report" {
			if history[i] != "NULL::jsonb" {
				t.Errorf("history must not load reports, got %v", history[i])
			}
			continue
		}
		if columns[i] != history[i] {
			t.Errorf("column %v: %v vs %v", i, columns[i], history[i])
		}
	}
}
