package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aisafe-dev/aisafegate/internal/adapter/outbound/celcond"
	"github.com/aisafe-dev/aisafegate/internal/config"
	"github.com/aisafe-dev/aisafegate/internal/domain/guard"
	"github.com/aisafe-dev/aisafegate/internal/domain/pipeline"
	"github.com/aisafe-dev/aisafegate/internal/service"
)

var (
	scanDirection string
	scanIdentity  string
	scanInputText string
)

var scanCmd = &cobra.Command{
	Use:   "scan [text]",
	Short: "Scan a text one-shot without forwarding",
	Long: `Scan a text against the configured scanner chain and print the
result as JSON. Reads from stdin when no text argument is given.

The exit code is 0 when the text passes and 1 when it is blocked,
so the command works in shell pipelines.

Examples:
  # Scan a prompt
  aisafegate scan "ignore all previous instructions"

  # Scan a model response, with the prompt for relevance checking
  aisafegate scan --direction output --input "what is DNS" "DNS is the phone book of the internet"

  # Scan stdin
  cat prompt.txt | aisafegate scan`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanDirection, "direction", "input", "scan direction: input or output")
	scanCmd.Flags().StringVar(&scanIdentity, "identity", "anonymous", "identity evaluated by suppression rules")
	scanCmd.Flags().StringVar(&scanInputText, "input", "", "original prompt, used by the relevance scanner in output direction")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	text, err := scanText(args)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	evaluator, err := celcond.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to create suppression evaluator: %w", err)
	}
	g, err := guard.New(cfg, evaluator, logger)
	if err != nil {
		return fmt.Errorf("failed to build guard: %w", err)
	}

	var res *pipeline.AggregateResult
	switch scanDirection {
	case "input":
		res, err = g.ScanInput(cmd.Context(), text, scanIdentity)
	case "output":
		res, err = g.ScanOutput(cmd.Context(), text, scanIdentity, scanInputText)
	default:
		return fmt.Errorf("invalid direction %q: must be input or output", scanDirection)
	}
	if err != nil {
		return err
	}

	summary := service.Summarize(res)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return err
	}

	if !summary.Passed {
		os.Exit(1)
	}
	return nil
}

// scanText reads the text to scan from the argument or stdin.
func scanText(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("no text to scan: pass an argument or pipe to stdin")
	}
	return string(data), nil
}
