package stats

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"substrata/internal/model"
)

// Metadata is what a sweep log says about how it was produced.
type Metadata struct {
	Command     string `json:"command,omitempty"`
	Seeds       int    `json:"seeds,omitempty"`
	Allowed     string `json:"allowed,omitempty"`
	Optimizer   string `json:"optimizer,omitempty"`
	Fitness     string `json:"fitness,omitempty"`
	EnergyModel string `json:"energy_model,omitempty"`
	Generations int    `json:"gens,omitempty"`
	Population  int    `json:"pop,omitempty"`
}

// Log is one parsed sweep log.
type Log struct {
	Name     string   `json:"name"`
	Metadata Metadata `json:"metadata"`
	Rows     []Row    `json:"rows"`
}

var commandFlagPattern = regexp.MustCompile(`--(?:sweep-)?(optimizer|fitness|energy-model|allowed)=(\w+)`)

// HeaderLines renders the lines a sweep prints before its rows.
func HeaderLines(meta Metadata) []string {
	return []string{
		"# Command: " + meta.Command,
		fmt.Sprintf("# Seeds: %d", meta.Seeds),
		fmt.Sprintf("allowed=%s optimizer=%s fitness=%s energy_model=%s gens=%d pop=%d",
			meta.Allowed, meta.Optimizer, meta.Fitness, meta.EnergyModel, meta.Generations, meta.Population),
	}
}

// MetadataFor describes a sweep over variations of base.
func MetadataFor(command string, base model.Condition) Metadata {
	return Metadata{
		Command:     command,
		Seeds:       base.Seeds,
		Allowed:     base.Allowed.String(),
		Optimizer:   base.Optimizer.String(),
		Fitness:     base.Fitness.String(),
		EnergyModel: base.EnergyModel.String(),
		Generations: base.Generations,
		Population:  base.PopulationSize,
	}
}

// ParseLog extracts metadata and CSV_ROW lines. Lines that fail to parse are
// skipped.
func ParseLog(name string, r io.Reader) (Log, error) {
	out := Log{Name: name}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "# "):
			parseCommentLine(line, &out.Metadata)
		case strings.HasPrefix(line, rowPrefix+","):
			row, err := ParseRow(line)
			if err != nil {
				continue
			}
			out.Rows = append(out.Rows, row)
		case strings.Contains(line, "optimizer=") || strings.Contains(line, "gens="):
			parseParams(line, &out.Metadata)
		}
	}
	if err := scanner.Err(); err != nil {
		return Log{}, fmt.Errorf("read log %s: %w", name, err)
	}
	return out, nil
}

// LogName is the experiment name of a log file: its base name without
// extension.
func LogName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func parseCommentLine(line string, meta *Metadata) {
	body := strings.TrimSpace(line[2:])
	switch {
	case strings.HasPrefix(body, "Seeds:"):
		fields := strings.Fields(body)
		if n, err := strconv.Atoi(fields[len(fields)-1]); err == nil {
			meta.Seeds = n
		}
	case strings.HasPrefix(body, "Command:"):
		meta.Command = strings.TrimSpace(strings.TrimPrefix(body, "Command:"))
		for _, m := range commandFlagPattern.FindAllStringSubmatch(meta.Command, -1) {
			setParam(meta, strings.ReplaceAll(m[1], "-", "_"), m[2])
		}
	}
}

func parseParams(line string, meta *Metadata) {
	for _, field := range strings.Fields(line) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		setParam(meta, key, value)
	}
}

func setParam(meta *Metadata, key, value string) {
	switch key {
	case "allowed":
		meta.Allowed = value
	case "optimizer":
		meta.Optimizer = value
	case "fitness":
		meta.Fitness = value
	case "energy_model":
		meta.EnergyModel = value
	case "gens":
		if n, err := strconv.Atoi(value); err == nil {
			meta.Generations = n
		}
	case "pop":
		if n, err := strconv.Atoi(value); err == nil {
			meta.Population = n
		}
	}
}
