package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielpatrickdp/fairaudit/internal/snapshot"
)

const auditCSV = `prediction,label,gender
1,1,Man
1,0,Woman
0,0,Man
1,1,Woman
0,1,Man
1,1,Woman
`

func writeCSV(t *testing.T) (csvPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	csvPath = filepath.Join(dir, "audit.csv")
	if err := os.WriteFile(csvPath, []byte(auditCSV), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return csvPath, filepath.Join(dir, "audit.db")
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func TestAuditTextAndArchive(t *testing.T) {
	csvPath, dbPath := writeCSV(t)
	out, err := runCmd(t, "--csv", csvPath, "--db", dbPath, "--sensitive", "gender",
		"--metrics", "tpr,pr", "--reducers", "max,std", "--name", "credit")
	if err != nil {
		t.Fatalf("audit: %v\n%s", err, out)
	}
	if !strings.Contains(out, "[report] report") {
		t.Fatalf("expected text report, got:\n%s", out)
	}

	store, err := snapshot.NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()
	rows, err := store.ListWithProvenance(10)
	if err != nil {
		t.Fatalf("ListWithProvenance: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(rows))
	}
	if rows[0].Name != "credit" || rows[0].Decision != "archived" || rows[0].Groups != 2 {
		t.Fatalf("unexpected snapshot %+v", rows[0].Record)
	}
}

func TestAuditGateFails(t *testing.T) {
	csvPath, dbPath := writeCSV(t)
	// Man tpr 1/2, Woman tpr 1: std 0.25 is above the default 0.1
	_, err := runCmd(t, "--csv", csvPath, "--db", dbPath, "--sensitive", "gender",
		"--metrics", "tpr", "--reducers", "std", "--gate", "--format", "json")
	if !errors.Is(err, errGateFailed) {
		t.Fatalf("expected gate failure, got %v", err)
	}

	store, err := snapshot.NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()
	rows, err := store.ListWithProvenance(1)
	if err != nil {
		t.Fatalf("ListWithProvenance: %v", err)
	}
	if rows[0].Decision != "fail" || rows[0].GateJSON == "" {
		t.Fatalf("expected logged gate failure, got %+v", rows[0])
	}
}

func TestAuditNoStore(t *testing.T) {
	csvPath, dbPath := writeCSV(t)
	if _, err := runCmd(t, "--csv", csvPath, "--db", dbPath, "--sensitive", "gender", "--no-store", "--format", "help"); err != nil {
		t.Fatalf("audit: %v", err)
	}
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatalf("expected no database, stat err=%v", err)
	}
}

func TestAuditBudgetOfZeroArchives(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "nobody.csv")
	data := "prediction,label,gender\n0,1,Man\n0,0,Woman\n0,1,Woman\n0,1,Man\n"
	if err := os.WriteFile(csvPath, []byte(data), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	dbPath := filepath.Join(dir, "audit.db")
	out, err := runCmd(t, "--csv", csvPath, "--db", dbPath, "--sensitive", "gender",
		"--metrics", "tpr", "--reducers", "budget,max", "--format", "json")
	if err != nil {
		t.Fatalf("audit: %v\n%s", err, out)
	}
	if strings.Contains(out, "budget") {
		t.Fatalf("undefined budget should be left out:\n%s", out)
	}

	store, err := snapshot.NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()
	rows, err := store.List(10)
	if err != nil || len(rows) != 1 {
		t.Fatalf("List: %v (%d rows)", err, len(rows))
	}
}

func TestAuditRejectsBadFlags(t *testing.T) {
	csvPath, _ := writeCSV(t)
	if _, err := runCmd(t, "--csv", csvPath, "--sensitive", "gender", "--mode", "gpu"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if _, err := runCmd(t, "--sensitive", "gender"); err == nil {
		t.Fatal("expected error without --csv")
	}
}
