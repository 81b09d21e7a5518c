package database

import (
	"strings"
	"testing"
)

func TestDSN(t *testing.T) {
	cfg := Config{User: "gym", Pass: "secret", Host: "127.0.0.1", Port: "3306", Name: "classfit"}
	dsn := cfg.dsn()

	if !strings.HasPrefix(dsn, "gym:secret@tcp(127.0.0.1:3306)/classfit?") {
		t.Fatalf("dsn=%q, wrong endpoint prefix", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Fatalf("dsn=%q missing parseTime", dsn)
	}
	if !strings.Contains(dsn, "charset=utf8mb4") {
		t.Fatalf("dsn=%q missing charset", dsn)
	}
}

func TestDSNWithoutPassword(t *testing.T) {
	cfg := Config{User: "gym", Host: "db", Port: "3306", Name: "classfit"}
	dsn := cfg.dsn()
	if !strings.HasPrefix(dsn, "gym@tcp(db:3306)/classfit?") {
		t.Fatalf("dsn=%q, password separator must be absent", dsn)
	}
}
