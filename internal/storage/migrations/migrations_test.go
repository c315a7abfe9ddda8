package migrations

import (
	"errors"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	input := `-- header
CREATE TABLE a (x String) ENGINE = Memory;

-- second
CREATE TABLE b (y String DEFAULT 'it''s') ENGINE = Memory;
`
	stmts, err := splitStatements(input)
	if err != nil {
		t.Fatalf("splitStatements: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[0] != "CREATE TABLE a (x String) ENGINE = Memory" {
		t.Errorf("unexpected first statement %q", stmts[0])
	}
}

func TestSplitStatements_RejectsSemicolonInString(t *testing.T) {
	_, err := splitStatements(`INSERT INTO a VALUES ('x;y');`)
	if !errors.Is(err, errSemicolonInString) {
		t.Errorf("expected errSemicolonInString, got %v", err)
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/mapcap")
	if err != nil || db != "mapcap" {
		t.Errorf("expected mapcap, got %q (%v)", db, err)
	}
	if _, err := databaseFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Error("expected error for dsn without database")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	for _, dir := range []struct {
		name  string
		files func() ([]migration, error)
	}{
		{"postgres", func() ([]migration, error) { return load(PostgresFS, "postgres") }},
		{"clickhouse", func() ([]migration, error) { return load(ClickhouseFS, "clickhouse") }},
	} {
		files, err := dir.files()
		if err != nil {
			t.Fatalf("%s: %v", dir.name, err)
		}
		if len(files) == 0 {
			t.Errorf("%s: no migrations embedded", dir.name)
		}
		for _, m := range files {
			if _, err := splitStatements(m.sql); err != nil {
				t.Errorf("%s/%s: %v", dir.name, m.name, err)
			}
		}
	}
}
