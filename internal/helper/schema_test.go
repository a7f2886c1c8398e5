package helper

import (
	"strings"
	"testing"

	"mangwale-chat/database"
)

func TestSchemaStatements(t *testing.T) {
	pg := SchemaStatements(database.DriverPostgres)
	if len(pg) != 3 {
		t.Fatalf("expected 3 postgres statements, got %d", len(pg))
	}
	if !strings.Contains(pg[1], "BIGSERIAL") {
		t.Fatalf("expected postgres serial column, got %q", pg[1])
	}

	my := SchemaStatements(database.DriverMySQL)
	if len(my) != 2 {
		t.Fatalf("expected 2 mysql statements, got %d", len(my))
	}
	for _, stmt := range my {
		if strings.HasSuffix(stmt, ";") {
			t.Fatalf("statement should not keep its terminator: %q", stmt)
		}
	}
	if !strings.Contains(my[1], "AUTO_INCREMENT") {
		t.Fatalf("expected mysql auto increment column, got %q", my[1])
	}
}
