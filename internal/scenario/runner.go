package scenario

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/lockstep/internal/driver"
	"github.com/Iron-Ham/lockstep/internal/event"
	"github.com/Iron-Ham/lockstep/internal/logging"
)

// DefaultTimeout bounds a single scenario.
const DefaultTimeout = 30 * time.Second

// Result is the outcome of one scenario run.
type Result struct {
	Name     string        `yaml:"name"`
	Passed   bool          `yaml:"passed"`
	Duration time.Duration `yaml:"duration"`
	Error    string        `yaml:"error,omitempty"`
}

// Report is the YAML document written by WriteReport.
type Report struct {
	RunID   string    `yaml:"run_id"`
	Started time.Time `yaml:"started"`
	Passed  int       `yaml:"passed"`
	Failed  int       `yaml:"failed"`
	Results []Result  `yaml:"results"`
}

// Runner executes scenarios one after another on a started Manager.
type Runner struct {
	m       *driver.Manager
	timeout time.Duration
	logger  *logging.Logger
}

// NewRunner creates a Runner. A nil logger discards output.
func NewRunner(m *driver.Manager, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Runner{
		m:       m,
		timeout: DefaultTimeout,
		logger:  logger.WithComponent("scenario"),
	}
}

// SetTimeout changes the per-scenario bound.
func (r *Runner) SetTimeout(d time.Duration) {
	r.timeout = d
}

// Run executes each scenario and returns one Result per scenario. The
// manager is cleaned up after every scenario, so a failing scenario cannot
// leave workers or files behind for the next. Run stops early when ctx is
// done.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) []Result {
	results := make([]Result, 0, len(scenarios))
	for _, s := range scenarios {
		if ctx.Err() != nil {
			break
		}
		results = append(results, r.runOne(ctx, s))
	}
	return results
}

func (r *Runner) runOne(ctx context.Context, s Scenario) Result {
	log := r.logger.With("scenario", s.Name)
	log.Info("scenario started")

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := s.Run(ctx, r.m)
	duration := time.Since(start)

	if cerr := r.m.Cleanup(); cerr != nil {
		log.Warn("cleanup after scenario failed", "error", cerr)
	}

	res := Result{Name: s.Name, Passed: err == nil, Duration: duration}
	if err != nil {
		res.Error = err.Error()
		log.Error("scenario failed", "error", err, "duration", duration.String())
	} else {
		log.Info("scenario passed", "duration", duration.String())
	}
	r.m.Bus().Publish(event.NewScenarioFinishedEvent(s.Name, duration, err))
	return res
}

// NewReport summarizes results of the run runID.
func NewReport(runID string, started time.Time, results []Result) Report {
	rep := Report{RunID: runID, Started: started, Results: results}
	for _, res := range results {
		if res.Passed {
			rep.Passed++
		} else {
			rep.Failed++
		}
	}
	return rep
}

// WriteReport writes rep as YAML to path.
func WriteReport(path string, rep Report) error {
	data, err := yaml.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to read report: %w", err)
	}
	var rep Report
	if err := yaml.Unmarshal(data, &rep); err != nil {
		return Report{}, fmt.Errorf("failed to parse report: %w", err)
	}
	return rep, nil
}
