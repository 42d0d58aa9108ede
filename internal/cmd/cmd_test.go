package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/lockstep/internal/scenario"
	"github.com/spf13/cobra"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "lockstep" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "lockstep")
	}

	expectedCmds := []string{"worker", "broker", "scenarios"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}

	if brokerCmd.Flags().Lookup("addr") == nil {
		t.Error("broker command has no --addr flag")
	}
	if scenariosRunCmd.Flags().Lookup("report") == nil {
		t.Error("scenarios run has no --report flag")
	}
}

func TestScenariosList(t *testing.T) {
	t.Cleanup(func() { scenariosFilter = "" })

	output, err := executeCommand(rootCmd, "scenarios", "list")
	if err != nil {
		t.Fatalf("scenarios list failed: %v", err)
	}
	for _, s := range scenario.All() {
		if !strings.Contains(output, s.Name) {
			t.Errorf("output missing scenario %q:\n%s", s.Name, output)
		}
	}

	output, err = executeCommand(rootCmd, "scenarios", "list", "--filter", "try-lock-*")
	if err != nil {
		t.Fatalf("scenarios list --filter failed: %v", err)
	}
	if !strings.Contains(output, "try-lock-failure") || strings.Contains(output, "step-control") {
		t.Errorf("filtered output = %q", output)
	}
}

func TestRenderResults(t *testing.T) {
	rep := scenario.NewReport("run", time.Now(), []scenario.Result{
		{Name: "step-control", Passed: true, Duration: 12 * time.Millisecond},
		{Name: "lock-timeout", Passed: false, Duration: time.Second, Error: "worker 4 exited SUCCESS, want WORKER_LOCK_TIMEOUT"},
	})

	out := renderResults(rep, 80)
	for _, want := range []string{"PASS", "FAIL", "step-control", "lock-timeout", "WORKER_LOCK_TIMEOUT", "1 passed, 1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("renderResults() missing %q:\n%s", want, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"tiny", 2, "tiny"},
	}

	for _, tt := range tests {
		if got := truncate(tt.input, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.width, got, tt.want)
		}
	}
}
