package cmd

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/lockstep/internal/driver"
	"github.com/Iron-Ham/lockstep/internal/scenario"
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List or run the built-in contention scenarios",
}

var scenariosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available scenarios",
	Args:  cobra.NoArgs,
	RunE:  runScenariosList,
}

var scenariosRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run scenarios against freshly spawned workers",
	Long: `Run scenarios one after another. Each scenario spawns its own workers
from this binary, and everything is cleaned up before the next one starts.

Examples:
  # Run everything
  lockstep scenarios run

  # Only the lock-release scenarios, with a YAML report
  lockstep scenarios run --filter 'unlock-on-*' --report report.yaml`,
	Args: cobra.NoArgs,
	RunE: runScenariosRun,
}

var (
	scenariosFilter  string
	scenariosReport  string
	scenariosTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(scenariosCmd)
	scenariosCmd.AddCommand(scenariosListCmd)
	scenariosCmd.AddCommand(scenariosRunCmd)

	scenariosCmd.PersistentFlags().StringVarP(&scenariosFilter, "filter", "f", "", "only scenarios whose name matches this glob")
	scenariosRunCmd.Flags().StringVar(&scenariosReport, "report", "", "write a YAML report to this file")
	scenariosRunCmd.Flags().DurationVar(&scenariosTimeout, "timeout", scenario.DefaultTimeout, "bound for each scenario")
}

func runScenariosList(cmd *cobra.Command, args []string) error {
	selected, err := scenario.Filter(scenariosFilter)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderCatalogue(selected, terminalWidth()))
	return nil
}

func runScenariosRun(cmd *cobra.Command, args []string) error {
	selected, err := scenario.Filter(scenariosFilter)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return fmt.Errorf("no scenario matches %q", scenariosFilter)
	}

	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve executable: %w", err)
	}
	m, err := driver.NewManager(cfg, driver.WithLogger(logger), driver.WithCommand(self, workerCmd.Name()))
	if err != nil {
		return err
	}
	if err := m.Start(); err != nil {
		return err
	}
	defer func() {
		_ = m.Cleanup()
		_ = m.Stop()
	}()

	ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := scenario.NewRunner(m, logger)
	runner.SetTimeout(scenariosTimeout)

	started := time.Now()
	results := runner.Run(ctx, selected)
	rep := scenario.NewReport(m.RunID(), started, results)

	fmt.Fprint(cmd.OutOrStdout(), renderResults(rep, terminalWidth()))

	if scenariosReport != "" {
		if err := scenario.WriteReport(scenariosReport, rep); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("report written to "+scenariosReport))
	}

	if ctx.Err() == context.Canceled {
		return fmt.Errorf("interrupted after %d of %d scenarios", len(results), len(selected))
	}
	if rep.Failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", rep.Failed, len(results))
	}
	return nil
}

func renderCatalogue(list []scenario.Scenario, width int) string {
	nameWidth := 0
	for _, s := range list {
		nameWidth = max(nameWidth, lipgloss.Width(s.Name))
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Scenarios"))
	sb.WriteString("\n")
	for _, s := range list {
		name := nameStyle.Width(nameWidth + 2).Render(s.Name)
		desc := truncate(s.Description, width-nameWidth-2)
		sb.WriteString(name + mutedStyle.Render(desc) + "\n")
	}
	return sb.String()
}

func renderResults(rep scenario.Report, width int) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Results"))
	sb.WriteString("\n")

	for _, res := range rep.Results {
		status := passStyle.Render("PASS")
		if !res.Passed {
			status = failStyle.Render("FAIL")
		}
		line := fmt.Sprintf("%s  %s %s", status, nameStyle.Render(res.Name),
			mutedStyle.Render("("+res.Duration.Round(time.Millisecond).String()+")"))
		sb.WriteString(line + "\n")
		if res.Error != "" {
			sb.WriteString(errorStyle.Render(truncate(res.Error, width-4)) + "\n")
		}
	}

	summary := fmt.Sprintf("\n%d passed, %d failed", rep.Passed, rep.Failed)
	if rep.Failed > 0 {
		sb.WriteString(failStyle.Render(summary))
	} else {
		sb.WriteString(passStyle.Render(summary))
	}
	sb.WriteString("\n")
	return sb.String()
}

// truncate shortens s to at most width cells, marking the cut with "...".
func truncate(s string, width int) string {
	if width <= 3 || lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+3 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
