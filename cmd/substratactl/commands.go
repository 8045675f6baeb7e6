package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"substrata/internal/config"
	"substrata/internal/model"
	"substrata/internal/stats"
	"substrata/pkg/substrata"
)

func addConditionFlags(fs *pflag.FlagSet) {
	def := model.DefaultCondition()
	fs.String("allowed", def.Allowed.String(), "transfer constraint: continuous_only|binary_only|discrete_only|relu_only")
	fs.Float64("sigma", def.Sigma, "input noise standard deviation")
	fs.Float64("energy-zero", def.EnergyZero, "energy cost of the zero level")
	fs.Float64("energy-abs1", def.EnergyAbs1, "energy cost of the |1| levels")
	fs.Int("generations", def.Generations, "generations per search")
	fs.Int("population", def.PopulationSize, "population size")
	fs.Int("seeds", def.Seeds, "independent seeds per condition")
	fs.Int64("seed", def.Seed, "base seed")
	fs.String("energy-model", def.EnergyModel.String(), "energy model: base|asym|leak")
	fs.String("optimizer", def.Optimizer.String(), "optimizer: ga|random|cmaes")
	fs.String("fitness", def.Fitness.String(), "fitness: task|reg|info")
	fs.Int("quantizer-levels", def.QuantizerLevels, "fixed quantizer level count (0 = evolved)")
	fs.Int("workers", def.Workers, "individuals evaluated at once (0 = GOMAXPROCS)")
}

// condition reads the condition flags through viper. Enums are parsed from
// their text so unknown names fail as configuration errors.
func (a *app) condition() (model.Condition, error) {
	v := a.v
	cond := model.DefaultCondition()
	var err error
	if cond.Allowed, err = model.ParseAllowed(v.GetString("allowed")); err != nil {
		return cond, err
	}
	if cond.EnergyModel, err = model.ParseEnergyModel(v.GetString("energy-model")); err != nil {
		return cond, err
	}
	if cond.Optimizer, err = model.ParseOptimizerKind(v.GetString("optimizer")); err != nil {
		return cond, err
	}
	if cond.Fitness, err = model.ParseFitnessKind(v.GetString("fitness")); err != nil {
		return cond, err
	}
	cond.Sigma = v.GetFloat64("sigma")
	cond.EnergyZero = v.GetFloat64("energy-zero")
	cond.EnergyAbs1 = v.GetFloat64("energy-abs1")
	cond.Generations = v.GetInt("generations")
	cond.PopulationSize = v.GetInt("population")
	cond.Seeds = v.GetInt("seeds")
	cond.Seed = v.GetInt64("seed")
	cond.QuantizerLevels = v.GetInt("quantizer-levels")
	cond.Workers = v.GetInt("workers")
	return cond, cond.Validate()
}

func (a *app) evaluateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one condition and print its CSV_ROW line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cond, err := a.condition()
			if err != nil {
				return err
			}
			client, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			res, err := client.EvaluateCondition(cmd.Context(), cond)
			if err != nil {
				return err
			}
			if a.v.GetBool("header") {
				for _, line := range stats.HeaderLines(stats.MetadataFor(commandLine(), cond)) {
					fmt.Fprintln(a.stdout, line)
				}
			}
			fmt.Fprintln(a.stdout, stats.FormatRow(stats.NewRow(cond, res)))
			return nil
		},
	}
	addConditionFlags(cmd.Flags())
	cmd.Flags().Bool("header", false, "print the log header before the row")
	return cmd
}

func (a *app) sweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep <grid.yaml|grid.toml>",
		Short: "Run a condition grid, stream its log and persist the run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			client, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Sweep(cmd.Context(), substrata.SweepRequest{
				Command: commandLine(),
				Config:  cfg,
				Out:     a.stdout,
			})
			if err != nil {
				return err
			}
			a.logger.WithFields(logrus.Fields{
				"run_id":    summary.RunID,
				"artifacts": summary.ArtifactsDir,
				"completed": summary.Conditions,
				"failed":    summary.Failed,
				"cancelled": summary.Cancelled,
			}).Info("sweep saved")
			return nil
		},
	}
}

func (a *app) inspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Evolve one seed and show its champion and plateaus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cond, err := a.condition()
			if err != nil {
				return err
			}
			client, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			got, err := client.Inspect(cmd.Context(), substrata.InspectRequest{
				Condition: cond,
				SeedIndex: a.v.GetInt("seed-index"),
				OutDir:    a.v.GetString("out"),
				Plot:      a.v.GetBool("plot"),
			})
			if err != nil {
				return err
			}
			o := got.Outcome
			c := o.Classification
			fmt.Fprintf(a.stdout, "seed=%d family=%s params=%v fitness=%.6g\n", o.Seed, o.Champion.Genome.Family, o.Champion.Genome.Params, o.Champion.Score.Value)
			fmt.Fprintf(a.stdout, "n_states=%d (%s) hysteresis=%t max_gap=%.4g coverage=%.3f\n", c.NStates, stats.StateName(c.NStates), c.Hysteresis, c.MaxGap, c.Coverage)
			for _, cl := range c.Clusters {
				fmt.Fprintf(a.stdout, "  level=%.4f occupancy=%.3f\n", cl.Level, cl.Occupancy)
			}
			for _, ch := range o.Champions {
				fmt.Fprintf(a.stdout, "  candidate %s fitness=%.6g\n", ch.Genome.Family, ch.Score.Value)
			}
			if got.ArtifactsDir != "" {
				fmt.Fprintf(a.stdout, "artifacts=%s\n", got.ArtifactsDir)
			}
			if got.PlotPath != "" {
				fmt.Fprintf(a.stdout, "plot=%s\n", got.PlotPath)
			}
			return nil
		},
	}
	addConditionFlags(cmd.Flags())
	cmd.Flags().Int("seed-index", 0, "seed offset from --seed")
	cmd.Flags().String("out", "", "directory for seed artifacts")
	cmd.Flags().Bool("plot", false, "render the response curve (requires --out)")
	return cmd
}

func (a *app) reportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <log>...",
		Short: "Summarize sweep logs with confidence intervals and hypothesis checks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			report, err := client.Report(cmd.Context(), substrata.ReportRequest{Paths: args, OutDir: a.v.GetString("out")})
			if err != nil {
				return err
			}
			if report.SummaryPath != "" {
				a.logger.WithField("path", report.SummaryPath).Info("validation summary saved")
			}
			if a.v.GetBool("json") {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report.Summary)
			}
			return stats.WriteSummary(a.stdout, report.Summary)
		},
	}
	cmd.Flags().Bool("json", false, "print the summary as JSON")
	cmd.Flags().String("out", "", "directory for final_validation_summary.json")
	return cmd
}

func (a *app) runsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored sweep runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			if runID := a.v.GetString("rows"); runID != "" {
				rows, err := client.Rows(cmd.Context(), runID)
				if err != nil {
					return err
				}
				for _, row := range rows {
					fmt.Fprintln(a.stdout, row)
				}
				return nil
			}

			items, err := client.Runs(cmd.Context(), substrata.RunsRequest{Limit: a.v.GetInt("limit")})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tCREATED\tALLOWED\tOPTIMIZER\tFITNESS\tSTORED\tFAILED")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%d\n", it.RunID, it.CreatedAtUTC, it.Allowed, it.Optimizer, it.Fitness, it.Stored, it.Conditions, it.Failed)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "maximum runs to list")
	cmd.Flags().String("rows", "", "print the stored CSV_ROW lines of this run instead")
	return cmd
}

func (a *app) exportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifacts to the exports directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			out, err := client.Export(cmd.Context(), substrata.ExportRequest{
				RunID:  a.v.GetString("run-id"),
				Latest: a.v.GetBool("latest"),
				OutDir: a.v.GetString("out"),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "exported run_id=%s dir=%s\n", out.RunID, out.Directory)
			return nil
		},
	}
	cmd.Flags().String("run-id", "", "run to export")
	cmd.Flags().Bool("latest", false, "export the newest run")
	cmd.Flags().String("out", "", "export directory (defaults to --exports-dir)")
	return cmd
}

func commandLine() string {
	return "substratactl " + strings.Join(os.Args[1:], " ")
}
