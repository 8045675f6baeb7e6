package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"substrata/internal/model"
)

const yamlSweep = `
allowed: discrete_only
optimizer: cmaes
fitness: info
energy_model: leak
quantizer_levels: 3
seeds: 20
generations: 50
population_size: 24
sigmas: [0.1, 0.3]
energy_zeros: [0, 2]
energy_abs1: 1.5
parallelism: 4
settings:
  classifier:
    min_separation: 0.2
`

const tomlSweep = `
allowed = "binary_only"
optimizer = "random"
seeds = 5
sigmas = [0.0, 0.2, 0.4]
energy_abs1s = [1.0]

[settings.search]
elite_count = 1
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "sweep.yaml", yamlSweep))
	require.NoError(t, err)
	require.Equal(t, model.DiscreteOnly, cfg.Allowed)
	require.Equal(t, model.OptimizerCMAES, cfg.Optimizer)
	require.Equal(t, model.FitnessInfo, cfg.Fitness)
	require.Equal(t, model.EnergyLeak, cfg.EnergyModel)
	require.Equal(t, 3, cfg.QuantizerLevels)
	require.Equal(t, 4, cfg.Parallelism)
	require.Equal(t, 0.2, cfg.Settings.Classifier.MinSeparation)
	// Untouched settings keep their defaults.
	require.Equal(t, 401, cfg.Settings.Classifier.SweepPoints)
	require.Equal(t, model.DefaultBaseSeed, cfg.Seed)

	conds := cfg.Conditions()
	require.Len(t, conds, 4)
	require.Equal(t, []float64{0.1, 0}, []float64{conds[0].Sigma, conds[0].EnergyZero})
	require.Equal(t, []float64{0.1, 2}, []float64{conds[1].Sigma, conds[1].EnergyZero})
	require.Equal(t, []float64{0.3, 0}, []float64{conds[2].Sigma, conds[2].EnergyZero})
	for _, c := range conds {
		require.Equal(t, 1.5, c.EnergyAbs1)
		require.Equal(t, 20, c.Seeds)
	}
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(writeFile(t, "sweep.toml", tomlSweep))
	require.NoError(t, err)
	require.Equal(t, model.BinaryOnly, cfg.Allowed)
	require.Equal(t, model.OptimizerRandom, cfg.Optimizer)
	require.Equal(t, 1, cfg.Settings.Search.EliteCount)
	require.Equal(t, model.FitnessTask, cfg.Fitness)
	require.Len(t, cfg.Conditions(), 3)
}

func TestLoadRejectsBadInput(t *testing.T) {
	_, err := Load(writeFile(t, "sweep.json", "{}"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "optimizer: annealing\n"))
	require.True(t, errors.Is(err, model.ErrConfiguration), "got %v", err)

	_, err = Load(writeFile(t, "unknown.yaml", "sigmaz: [0.1]\n"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "unknown.toml", "sigmaz = [0.1]\n"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "neg.yaml", "sigmas: [0.1, -0.2]\n"))
	require.True(t, errors.Is(err, model.ErrConfiguration), "got %v", err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Len(t, cfg.Conditions(), 1)
}
