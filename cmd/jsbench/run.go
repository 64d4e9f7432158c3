package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsbench/internal/engine/controller"
	"github.com/GriffinCanCode/jsbench/internal/engine/sandbox"
	"github.com/GriffinCanCode/jsbench/internal/server"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
	"github.com/GriffinCanCode/jsbench/internal/shared/utils"
	"github.com/GriffinCanCode/jsbench/internal/suite"
)

// fileResult is the outcome of one suite file
type fileResult struct {
	Path    string             `json:"path"`
	Name    string             `json:"name"`
	Results []controller.Event `json:"results"`
}

func newRunCommand(a *app) *cobra.Command {
	var repl, typescript, parallel, asJSON bool

	cmd := &cobra.Command{
		Use:   "run <glob>...",
		Short: "Run suite files (YAML, TOML or JSON); globs may use **",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := suite.LoadAll(args...)
			if err != nil {
				return err
			}
			for _, f := range files {
				if err := utils.ValidateSuite(f.Suite); err != nil {
					return fmt.Errorf("%s: %w", f.Path, err)
				}
			}

			engine, err := server.NewEngine(a.cfg, nil, a.logger.Logger)
			if err != nil {
				return err
			}
			defer engine.Close()

			mode := types.ModeBenchmark
			if repl {
				mode = types.ModeRepl
			}
			ts := typescript || a.cfg.Preferences.TypeScript

			results := make([]fileResult, 0, len(files))
			for _, f := range files {
				s := f.Suite
				if parallel {
					s.Config.Parallel = true
				}
				a.logger.Info("Running suite file", zap.String("path", f.Path), zap.Int("cases", len(s.Cases)))

				events, err := engine.Controller.RunSuite(cmd.Context(), s, mode, ts)
				if err != nil {
					return fmt.Errorf("%s: %w", f.Path, err)
				}
				results = append(results, fileResult{Path: f.Path, Name: s.Config.Name, Results: events})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := sonic.ConfigStd.MarshalIndent(results, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				if err != nil {
					return err
				}
			} else if err := report(out, results); err != nil {
				return err
			}
			return failures(results)
		},
	}
	cmd.Flags().BoolVar(&repl, "repl", false, "run each case once with console and marker capture")
	cmd.Flags().BoolVar(&typescript, "typescript", false, "compile case code as TypeScript")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "run the cases of each suite concurrently")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

// report prints one table per suite file
func report(w io.Writer, results []fileResult) error {
	for i, fr := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		title := fr.Path
		if fr.Name != "" {
			title = fr.Name + " (" + fr.Path + ")"
		}
		fmt.Fprintln(w, title)

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		top := fastest(fr.Results)
		for _, ev := range fr.Results {
			if ev.Mode == types.ModeRepl {
				writeRepl(tw, ev)
			} else {
				writeBenchmark(tw, ev, top)
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// fastest returns the highest ops/sec among successful benchmarks
func fastest(events []controller.Event) float64 {
	top := 0.0
	for _, ev := range events {
		if ev.Benchmark != nil && ev.Benchmark.Result != nil && ev.Benchmark.Result.OpsPerSecond > top {
			top = ev.Benchmark.Result.OpsPerSecond
		}
	}
	return top
}

// relative labels ops against the fastest case of its suite
func relative(ops, top float64) string {
	if top <= 0 || ops >= top {
		return "fastest"
	}
	return fmt.Sprintf("%.1f%% slower", (1-ops/top)*100)
}

func writeBenchmark(w io.Writer, ev controller.Event, top float64) {
	if re := ev.Err(); re != nil {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", ev.ID, re.Kind, re.Message)
		return
	}
	if ev.Benchmark == nil || ev.Benchmark.Result == nil {
		fmt.Fprintf(w, "  %s\t%s\n", ev.ID, ev.Status())
		return
	}
	r := ev.Benchmark.Result
	fmt.Fprintf(w, "  %s\t%.2f ops/sec\t±%.2f%%\t%s/op\t%d samples\t%s\n",
		ev.ID, r.OpsPerSecond, r.RelativeMargin, r.AverageTimeFormatted, r.Samples, relative(r.OpsPerSecond, top))
}

func writeRepl(w io.Writer, ev controller.Event) {
	if re := ev.Err(); re != nil {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", ev.ID, re.Kind, re.Message)
		return
	}
	if ev.Repl == nil || ev.Repl.Result == nil {
		fmt.Fprintf(w, "  %s\t%s\n", ev.ID, ev.Status())
		return
	}
	r := ev.Repl.Result
	fmt.Fprintf(w, "  %s\t%s\n", ev.ID, sandbox.FormatTime(r.Duration))
	for _, m := range r.Markers {
		fmt.Fprintf(w, "    mark %s\t%s\t%.1f%%\n", m.Name, sandbox.FormatTime(m.Duration), m.DurationPercentage)
	}
	for _, l := range r.Logs {
		fmt.Fprintf(w, "    %s\t%s\n", l.Level, strings.ReplaceAll(l.Value, "\n", " "))
	}
}

// failures returns an error naming how many cases did not succeed
func failures(results []fileResult) error {
	failed, total := 0, 0
	for _, fr := range results {
		for _, ev := range fr.Results {
			total++
			if ev.Status() != types.StatusSuccess {
				failed++
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d cases failed", failed, total)
	}
	return nil
}
