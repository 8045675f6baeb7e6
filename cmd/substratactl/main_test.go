package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"substrata/internal/model"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

var quickFlags = []string{
	"--allowed=binary_only", "--generations=6", "--population=8", "--seeds=2", "--sigma=0.1", "--log-level=error", "--store=memory",
}

func TestEvaluatePrintsRow(t *testing.T) {
	out, err := runCLI(t, append([]string{"evaluate", "--header"}, quickFlags...)...)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header and row, got %q", out)
	}
	if lines[3] != "CSV_ROW,0.1,0.0,0.0,2,(2/2)" {
		t.Fatalf("unexpected row %q", lines[3])
	}
	if !strings.HasPrefix(lines[2], "allowed=binary_only optimizer=ga") {
		t.Fatalf("unexpected params line %q", lines[2])
	}
}

func TestEvaluateReadsEnvironment(t *testing.T) {
	t.Setenv("SUBSTRATA_SEEDS", "1")
	t.Setenv("SUBSTRATA_ENERGY_ZERO", "0.5")
	out, err := runCLI(t, "evaluate", "--allowed=binary_only", "--generations=4", "--population=6", "--log-level=error", "--store=memory")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if strings.TrimSpace(out) != "CSV_ROW,0.0,0.5,0.0,2,(1/1)" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestEvaluateRejectsUnknownOptimizer(t *testing.T) {
	_, err := runCLI(t, "evaluate", "--optimizer=annealing")
	if !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	_, err = runCLI(t, "evaluate", "--seeds=0")
	if !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSweepReportAndExport(t *testing.T) {
	dir := t.TempDir()
	grid := filepath.Join(dir, "binary_ga.yaml")
	body := "allowed: binary_only\ngenerations: 5\npopulation_size: 8\nseeds: 2\nsigmas: [0.0, 0.3]\n"
	if err := os.WriteFile(grid, []byte(body), 0o644); err != nil {
		t.Fatalf("write grid: %v", err)
	}
	runsDir := filepath.Join(dir, "runs")
	common := []string{"--runs-dir", runsDir, "--exports-dir", filepath.Join(dir, "exports"), "--log-level=error", "--store=memory"}

	out, err := runCLI(t, append([]string{"sweep", grid}, common...)...)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if strings.Count(out, "CSV_ROW,") != 2 || !strings.Contains(out, "# Seeds: 2") {
		t.Fatalf("unexpected sweep output %q", out)
	}
	logPath := filepath.Join(dir, "binary_ga.log")
	if err := os.WriteFile(logPath, []byte(out), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	reportDir := filepath.Join(dir, "report")
	report, err := runCLI(t, append([]string{"report", logPath, "--out", reportDir}, common...)...)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(report, "Conditions: 2") || !strings.Contains(report, "H3 binary-only") || !strings.Contains(report, "binary_ga") {
		t.Fatalf("unexpected report %q", report)
	}
	if _, err := os.Stat(filepath.Join(reportDir, "final_validation_summary.json")); err != nil {
		t.Fatalf("missing validation summary: %v", err)
	}

	exported, err := runCLI(t, append([]string{"export", "--latest"}, common...)...)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(exported, "exported run_id=") {
		t.Fatalf("unexpected export output %q", exported)
	}
}

func TestInspectPrintsChampion(t *testing.T) {
	out, err := runCLI(t, append([]string{"inspect", "--seed-index=1"}, quickFlags...)...)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, "seed=43 family=step") || !strings.Contains(out, "n_states=2 (Binary)") {
		t.Fatalf("unexpected inspect output %q", out)
	}
}

func TestRunsListsHeader(t *testing.T) {
	out, err := runCLI(t, "runs", "--log-level=error", "--store=memory")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.HasPrefix(out, "RUN ID") {
		t.Fatalf("unexpected runs output %q", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := runCLI(t, "bogus"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}
