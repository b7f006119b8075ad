package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/hoarder/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // rewrite golden traces
	Filter string // glob over scenario names
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name          string   `json:"name"`
	File          string   `json:"file"`
	Pass          bool     `json:"pass"`
	GoldenUpdated bool     `json:"golden_updated,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// TestResult is the output of the test command.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run store scenarios",
		Long: `Run scenario files against fresh stores.

Each scenario runs on its own temporary database. Step expectations and
assertions are checked, and the trace is compared with
<scenarios-dir>/golden/<name>.golden when that file exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing directory, bad filter)

Examples:
  hoarder test ./scenarios
  hoarder test ./scenarios --filter "scan*"
  hoarder test ./scenarios --update
  hoarder test ./scenarios --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden traces from this run")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose name matches this glob")

	return cmd
}

func runTests(cmd *cobra.Command, opts *TestOptions, dir string) error {
	f := opts.formatter(cmd)

	if _, err := os.Stat(dir); err != nil {
		msg := fmt.Sprintf("scenarios directory not found: %s", dir)
		_ = f.Error(ErrCodeNotFound, msg, nil)
		return WrapExitError(ExitCommandError, msg, err)
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		_ = f.Error(ErrCodeScanError, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		opts.logger().Debug("running scenario", "file", file)
		sr := checkScenario(cmd.Context(), file, opts.Update)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, sr)
		if opts.Format != "json" {
			printScenario(cmd.OutOrStdout(), sr)
		}
	}

	if opts.Format == "json" {
		if err := writeTestJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else {
		printSummary(cmd.OutOrStdout(), result)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// checkScenario loads and runs one scenario file, then checks or rewrites
// its golden trace. A scenario passes when it has no errors of any kind.
func checkScenario(ctx context.Context, file string, update bool) ScenarioResult {
	name, _ := scenarioName(file)
	sr := ScenarioResult{Name: name, File: file}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("load error: %v", err)}
		return sr
	}
	sr.Name = scenario.Name

	result, err := harness.RunContext(ctx, scenario)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution error: %v", err)}
		return sr
	}
	sr.Errors = append(sr.Errors, result.Errors...)

	trace, err := harness.MarshalTrace(scenario.Name, result)
	if err != nil {
		sr.Errors = append(sr.Errors, fmt.Sprintf("trace: %v", err))
		return sr
	}

	golden := goldenFilePath(file)
	switch match, err := harness.CompareGolden(golden, trace, update); {
	case err != nil:
		sr.Errors = append(sr.Errors, fmt.Sprintf("golden %s: %v", golden, err))
	case update:
		sr.GoldenUpdated = true
	case !match && fileExists(golden):
		sr.Errors = append(sr.Errors, "golden file mismatch (run with --update to regenerate)")
	}

	sr.Pass = len(sr.Errors) == 0
	return sr
}

// findScenarioFiles lists the .yaml and .yml files under dir, skipping
// golden directories. A non-empty filter is matched against the file name
// without its extension.
func findScenarioFiles(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}

		name, ok := scenarioName(path)
		if !ok {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

// scenarioName strips the directory and extension from a scenario path.
func scenarioName(path string) (string, bool) {
	ext := filepath.Ext(path)
	if ext != ".yaml" && ext != ".yml" {
		return "", false
	}
	return strings.TrimSuffix(filepath.Base(path), ext), true
}

// goldenFilePath returns <dir>/golden/<name>.golden for a scenario file.
func goldenFilePath(file string) string {
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	return harness.GoldenPath(filepath.Dir(file), name)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func printScenario(w io.Writer, sr ScenarioResult) {
	switch {
	case sr.Pass && sr.GoldenUpdated:
		fmt.Fprintf(w, "✓ %s (golden updated)\n", sr.Name)
	case sr.Pass:
		fmt.Fprintf(w, "✓ %s\n", sr.Name)
	default:
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
}

func printSummary(w io.Writer, result TestResult) {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}

// writeTestJSON writes one indented CLIResponse. Failed scenarios are
// reported under ErrCodeScenarioFailed.
func writeTestJSON(w io.Writer, result TestResult) error {
	resp := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    ErrCodeScenarioFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
