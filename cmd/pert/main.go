// Package main provides the pert CLI entrypoint. Four verbs:
//
//	pert validate <plan.json> --tools <dir>
//	pert run <plan.json> --tools <dir>
//	pert schema
//	pert version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/pert/pkg/critic"
	"github.com/ormasoftchile/pert/pkg/engine"
	"github.com/ormasoftchile/pert/pkg/logging"
	"github.com/ormasoftchile/pert/pkg/plan"
	"github.com/ormasoftchile/pert/pkg/session"
	"github.com/ormasoftchile/pert/pkg/tool"
	"github.com/ormasoftchile/pert/pkg/trace"
	"github.com/ormasoftchile/pert/pkg/validate"
)

var (
	version = "dev"
	commit  = "unknown"
)

var debug bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pert",
	Short: "Plan Execution & Revision Tool: validate and execute task plans",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(debug)
	},
}

// --- validate ---

var validateTools string

var validateCmd = &cobra.Command{
	Use:   "validate [plan.json]",
	Short: "Validate a task plan (structural, reference, field, type phases)",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	if errs := validate.ValidateDocument(data); len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n\n", len(errs))
		for i, e := range errs {
			fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Rule, e.Message)
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
			}
		}
		return fmt.Errorf("validation failed with %d error(s)", len(errs))
	}

	p, err := plan.Decode(data)
	if err != nil {
		return err
	}

	if validateTools != "" {
		cat, err := tool.LoadCatalog(validateTools)
		if err != nil {
			return err
		}
		if _, cerr := validate.Gate(p, cat); cerr != nil {
			fmt.Fprintf(os.Stderr, "  [capability] %s\n", cerr)
			return fmt.Errorf("plan is impossible with the available tools")
		}
		if verr := validate.Validate(p, cat); verr != nil {
			fmt.Fprintf(os.Stderr, "  [%s] %s\n", verr.Rule, verr.Message)
			if verr.Path != "" {
				fmt.Fprintf(os.Stderr, "    at: %s\n", verr.Path)
			}
			return fmt.Errorf("validation failed")
		}
	}

	fmt.Printf("✓ plan is valid (%d steps)\n", len(p.Steps))
	return nil
}

// --- run ---

var (
	runTools     string
	runMode      string
	runWorkers   int
	runRetries   int
	runTrace     string
	runSession   string
	runSessionID string
	runCritic    string
	runRounds    int
)

var runCmd = &cobra.Command{
	Use:   "run [plan.json]",
	Short: "Execute a task plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	p, err := plan.LoadFile(filePath)
	if err != nil {
		return err
	}
	cat, err := tool.LoadCatalog(runTools)
	if err != nil {
		return err
	}

	if _, cerr := validate.Gate(p, cat); cerr != nil {
		fmt.Fprintf(os.Stderr, "  [capability] %s\n", cerr)
		return fmt.Errorf("plan is impossible with the available tools")
	}
	if verr := validate.Validate(p, cat); verr != nil {
		fmt.Fprintf(os.Stderr, "  [%s] %s\n", verr.Rule, verr.Message)
		return fmt.Errorf("validation failed")
	}

	if runMode == "dry-run" {
		levels, err := engine.Levels(p)
		if err != nil {
			return err
		}
		fmt.Printf("Goal: %s\n", p.Goal)
		for i, wave := range levels {
			ids := make([]string, len(wave))
			for j, id := range wave {
				ids[j] = fmt.Sprintf("%d (%s)", id, p.Step(id).Action)
			}
			fmt.Printf("  wave %d: %s\n", i+1, strings.Join(ids, ", "))
		}
		return nil
	}

	var tw *trace.Writer
	if runTrace != "" {
		tw, err = trace.NewFileWriter(runTrace, "run-1")
		if err != nil {
			return fmt.Errorf("trace: %w", err)
		}
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg := engine.Config{
		Workers:    runWorkers,
		MaxRetries: runRetries,
		Trace:      tw,
		Logger:     &logger,
	}
	if runSession != "" {
		store, err := session.OpenSQLite(runSession)
		if err != nil {
			return fmt.Errorf("session store: %w", err)
		}
		defer store.Close()
		cfg.Store = store
		cfg.SessionID = runSessionID
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(cat, cfg)

	var run *plan.ExecutionRun
	if runCritic != "" {
		rules, err := critic.LoadRulesFile(runCritic)
		if err != nil {
			return err
		}
		run, err = eng.RunWithCritic(ctx, p, rules, runRounds)
		if err != nil {
			return err
		}
	} else {
		run, err = eng.Run(ctx, p)
		if err != nil {
			return err
		}
	}

	printRun(run)
	if run.Status == plan.RunAborted {
		return fmt.Errorf("run aborted")
	}
	return nil
}

func printRun(run *plan.ExecutionRun) {
	ids := make([]int, 0, len(run.Results))
	for id := range run.Results {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fmt.Printf("\nRun %s: %s\n", run.RunID, run.Status)
	for _, id := range ids {
		res := run.Results[id]
		icon := "✓"
		switch res.Status {
		case plan.StatusFailed:
			icon = "✗"
		case plan.StatusSkipped:
			icon = "○"
		}
		fmt.Printf("  %s step %d: %s", icon, id, res.Status)
		if res.Retries > 0 {
			fmt.Printf(" (%d retries)", res.Retries)
		}
		if res.Error != nil {
			fmt.Printf(" (%s)", res.Error)
		}
		fmt.Println()
	}
	succeeded, failed, skipped := run.Counts()
	fmt.Printf("\n  %d succeeded, %d failed, %d skipped\n", succeeded, failed, skipped)
	if run.Verdict != nil {
		fmt.Printf("  critic: %s (%s)\n", run.Verdict.Decision, run.Verdict.Rationale)
	}
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Export the plan JSON Schema to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := plan.GenerateJSONSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pert %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	validateCmd.Flags().StringVar(&validateTools, "tools", "", "Directory of *.tool.yaml specs to validate against")

	runCmd.Flags().StringVar(&runTools, "tools", "", "Directory of *.tool.yaml specs")
	runCmd.Flags().StringVar(&runMode, "mode", "real", "Execution mode: real or dry-run")
	runCmd.Flags().IntVar(&runWorkers, "workers", engine.DefaultWorkers, "Concurrent step bound")
	runCmd.Flags().IntVar(&runRetries, "retries", 0, "Max retries per step for retryable failures")
	runCmd.Flags().StringVar(&runTrace, "trace", "", "Write trace to JSONL file")
	runCmd.Flags().StringVar(&runSession, "session", "", "SQLite session database path")
	runCmd.Flags().StringVar(&runSessionID, "session-id", "default", "Session to load and save context under")
	runCmd.Flags().StringVar(&runCritic, "critic", "", "YAML rules file enabling the critic loop")
	runCmd.Flags().IntVar(&runRounds, "rounds", engine.DefaultCriticRounds, "Max critic retry rounds")
	runCmd.MarkFlagRequired("tools")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}
