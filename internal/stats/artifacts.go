package stats

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"substrata/internal/classify"
	"substrata/internal/model"
)

const (
	runIndexFile      = "run_index.json"
	runFile           = "run.json"
	conditionsFile    = "conditions.json"
	rowsFile          = "rows.log"
	seedFile          = "seed.json"
	fitnessSeriesFile = "fitness_series.csv"
	responseFile      = "response.csv"

	// ValidationSummaryFile is the machine-readable report summary.
	ValidationSummaryFile = "final_validation_summary.json"
)

// ValidationSummary is the compact form of a Summary written next to the
// logs it was computed from.
type ValidationSummary struct {
	TotalExperiments      int                        `json:"total_experiments"`
	TotalCombinations     int                        `json:"total_combinations"`
	StateDistribution     map[int]int                `json:"state_distribution"`
	HysteresisRate        float64                    `json:"hysteresis_rate"`
	ContinuousTernaryRate float64                    `json:"continuous_ternary_rate"`
	DiscreteTernaryRate   float64                    `json:"discrete_ternary_rate"`
	BinaryConstraintRate  float64                    `json:"binary_constraint_rate"`
	OptimizerConsistency  bool                       `json:"optimizer_consistency"`
	Experiments           map[string]ExperimentEntry `json:"experiments"`
}

type ExperimentEntry struct {
	Conditions int      `json:"conditions"`
	Metadata   Metadata `json:"metadata"`
}

func NewValidationSummary(s Summary) ValidationSummary {
	out := ValidationSummary{
		TotalExperiments:      s.Experiments,
		TotalCombinations:     s.Conditions,
		StateDistribution:     make(map[int]int, len(s.States)),
		HysteresisRate:        s.Hysteresis.Rate,
		ContinuousTernaryRate: s.ContinuousTernary.Rate,
		DiscreteTernaryRate:   s.DiscreteTernary.Rate,
		BinaryConstraintRate:  s.BinaryConstraint.Rate,
		OptimizerConsistency:  s.OptimizerConsistent,
		Experiments:           make(map[string]ExperimentEntry, len(s.ExperimentList)),
	}
	for _, st := range s.States {
		out.StateDistribution[st.NStates] = st.Successes
	}
	for _, e := range s.ExperimentList {
		out.Experiments[e.Name] = ExperimentEntry{Conditions: e.Conditions, Metadata: e.Metadata}
	}
	return out
}

// WriteValidationSummary writes final_validation_summary.json into dir and
// returns its path.
func WriteValidationSummary(dir string, s Summary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, ValidationSummaryFile)
	if err := writeJSON(path, NewValidationSummary(s)); err != nil {
		return "", fmt.Errorf("write %s: %w", ValidationSummaryFile, err)
	}
	return path, nil
}

// ReadValidationSummary loads a summary written by WriteValidationSummary.
func ReadValidationSummary(path string) (ValidationSummary, error) {
	var out ValidationSummary
	ok, err := readJSON(path, &out)
	if err != nil {
		return ValidationSummary{}, err
	}
	if !ok {
		return ValidationSummary{}, fmt.Errorf("%s not found", path)
	}
	return out, nil
}

// RunArtifacts is everything exported for one sweep.
type RunArtifacts struct {
	Run        model.RunRecord         `json:"run"`
	Conditions []model.ConditionRecord `json:"conditions"`
}

// SeedArtifacts describe one inspected seed of one condition.
type SeedArtifacts struct {
	Name             string                        `json:"name"`
	Condition        model.Condition               `json:"condition"`
	Seed             int64                         `json:"seed"`
	Champion         model.Scored                  `json:"champion"`
	Champions        []model.Scored                `json:"champions"`
	Classification   classify.SeedClassification   `json:"classification"`
	Diagnostics      []model.GenerationDiagnostics `json:"diagnostics,omitempty"`
	BestByGeneration []float64                     `json:"best_by_generation"`
	Response         classify.Sweep                `json:"-"`
}

type RunIndexEntry struct {
	RunID        string `json:"run_id"`
	Command      string `json:"command,omitempty"`
	Allowed      string `json:"allowed"`
	Optimizer    string `json:"optimizer"`
	Fitness      string `json:"fitness"`
	Conditions   int    `json:"conditions"`
	Failed       int    `json:"failed"`
	CreatedAtUTC string `json:"created_at_utc"`
}

// WriteRunArtifacts writes run.json, conditions.json and a rows.log in the
// line format that ParseLog reads back.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, runFile), artifacts.Run); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, conditionsFile), artifacts.Conditions); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, line := range HeaderLines(MetadataFor(artifacts.Run.Command, artifacts.Run.Base)) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	for _, rec := range artifacts.Conditions {
		if rec.Error != "" {
			fmt.Fprintf(&b, "# condition %d failed: %s\n", rec.Index, rec.Error)
			continue
		}
		b.WriteString(FormatRow(NewRow(rec.Condition, rec.Result)))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(filepath.Join(runDir, rowsFile), []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return runDir, nil
}

// ReadRunArtifacts loads what WriteRunArtifacts wrote.
func ReadRunArtifacts(baseDir, runID string) (RunArtifacts, bool, error) {
	var out RunArtifacts
	ok, err := readJSON(filepath.Join(baseDir, runID, runFile), &out.Run)
	if err != nil || !ok {
		return RunArtifacts{}, ok, err
	}
	if _, err := readJSON(filepath.Join(baseDir, runID, conditionsFile), &out.Conditions); err != nil {
		return RunArtifacts{}, false, err
	}
	return out, true, nil
}

// IndexEntry condenses a run for the run index.
func IndexEntry(artifacts RunArtifacts) RunIndexEntry {
	failed := 0
	for _, rec := range artifacts.Conditions {
		if rec.Error != "" {
			failed++
		}
	}
	base := artifacts.Run.Base
	return RunIndexEntry{
		RunID:        artifacts.Run.ID,
		Command:      artifacts.Run.Command,
		Allowed:      base.Allowed.String(),
		Optimizer:    base.Optimizer.String(),
		Fitness:      base.Fitness.String(),
		Conditions:   len(artifacts.Conditions),
		Failed:       failed,
		CreatedAtUTC: artifacts.Run.CreatedAtUTC,
	}
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}
	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first. Entries with equal
// timestamps keep the later append first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	var entries []RunIndexEntry
	ok, err := readJSON(filepath.Join(baseDir, runIndexFile), &entries)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []RunIndexEntry{}, nil
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := entries[order[i]], entries[order[j]]
		if a.CreatedAtUTC == b.CreatedAtUTC {
			return order[i] > order[j]
		}
		return a.CreatedAtUTC > b.CreatedAtUTC
	})
	sorted := make([]RunIndexEntry, 0, len(entries))
	for _, i := range order {
		sorted = append(sorted, entries[i])
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory's files into outDir.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}
	for _, file := range []string{runFile, conditionsFile, rowsFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

// WriteSeedArtifacts writes seed.json plus the per-generation best fitness
// and the response sweep as CSV into dir/name.
func WriteSeedArtifacts(dir string, artifacts SeedArtifacts) (string, error) {
	if strings.TrimSpace(artifacts.Name) == "" {
		return "", fmt.Errorf("seed artifact name is required")
	}
	seedDir := filepath.Join(dir, artifacts.Name)
	if err := os.MkdirAll(seedDir, 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(seedDir, seedFile), artifacts); err != nil {
		return "", err
	}
	if err := writeResponse(filepath.Join(seedDir, responseFile), artifacts.Response); err != nil {
		return "", err
	}
	if err := writeFitnessSeries(filepath.Join(seedDir, fitnessSeriesFile), artifacts.BestByGeneration); err != nil {
		return "", err
	}
	return seedDir, nil
}

func writeFitnessSeries(path string, bestByGeneration []float64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "best_fitness"}); err != nil {
		return err
	}
	for i, best := range bestByGeneration {
		if err := writer.Write([]string{strconv.Itoa(i), strconv.FormatFloat(best, 'g', -1, 64)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// writeResponse keeps the sweep as CSV; a degenerate response holds NaN,
// which JSON cannot encode.
func writeResponse(path string, sweep classify.Sweep) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"input", "forward", "backward"}); err != nil {
		return err
	}
	for i, x := range sweep.Inputs {
		if err := writer.Write([]string{FormatFloat(x), FormatFloat(sweep.Forward[i]), FormatFloat(sweep.Backward[i])}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadFitnessSeries reads the CSV written next to a seed artifact.
func ReadFitnessSeries(seedDir string) ([]float64, error) {
	file, err := os.Open(filepath.Join(seedDir, fitnessSeriesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return []float64{}, nil
		}
		return nil, err
	}
	var series []float64
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("fitness series row must have 2 columns")
		}
		v, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, err
		}
		series = append(series, v)
	}
	return series, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, into any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, into); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
