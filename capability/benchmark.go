package capability

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentpool/internal/pool"
)

// defaultBenchmarkTimeout bounds a single benchmark test when the test
// declares none.
const defaultBenchmarkTimeout = 30 * time.Second

// BenchmarkTest is one probe in a benchmark suite. Requirements, when set,
// are checked against the probed type's capability set before Run is
// invoked; a type that cannot satisfy them fails the test without running.
type BenchmarkTest struct {
	Name         string
	Requirements Requirements
	Timeout      time.Duration
	Run          func(ctx context.Context) error
}

// BenchmarkSuite is a named set of benchmark tests run against one agent
// type. Concurrency bounds parallel test execution; zero means the worker
// pool default.
type BenchmarkSuite struct {
	Name        string
	Concurrency int
	Tests       []BenchmarkTest
}

// BenchmarkTestResult records one test's outcome.
type BenchmarkTestResult struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// BenchmarkReport summarizes a suite run.
type BenchmarkReport struct {
	AgentType     string                `json:"agent_type"`
	Suite         string                `json:"suite"`
	StartedAt     time.Time             `json:"started_at"`
	TotalDuration time.Duration         `json:"total_duration"`
	Results       []BenchmarkTestResult `json:"results"`
	Passed        int                   `json:"passed"`
	Failed        int                   `json:"failed"`
	PassRate      float64               `json:"pass_rate"`
}

// RunBenchmark runs the suite against a transient agent of the given type.
// The agent never joins the pool and never receives scheduled work, so a
// benchmark cannot skew live selection. An unknown type fails before any
// test runs.
func (m *Manager) RunBenchmark(ctx context.Context, typeName string, suite BenchmarkSuite) (*BenchmarkReport, error) {
	def, err := m.registry.Definition(typeName)
	if err != nil {
		return nil, err
	}
	if len(suite.Tests) == 0 {
		return nil, fmt.Errorf("benchmark suite %q has no tests", suite.Name)
	}

	probe := newAgent(
		fmt.Sprintf("bench-%s", typeName),
		def, nil, m.cfg.Scheduler().MaxQueueDepth, zap.NewNop(),
	)

	workers := pool.New(pool.Config{MaxWorkers: suite.Concurrency})
	defer workers.Close()

	report := &BenchmarkReport{
		AgentType: typeName,
		Suite:     suite.Name,
		StartedAt: time.Now(),
		Results:   make([]BenchmarkTestResult, len(suite.Tests)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, test := range suite.Tests {
		i, test := i, test
		g.Go(func() error {
			result := m.runBenchmarkTest(gctx, probe, workers, test)
			report.Results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.TotalDuration = time.Since(report.StartedAt)
	for _, r := range report.Results {
		if r.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
	}
	report.PassRate = float64(report.Passed) / float64(len(report.Results))

	m.logger.Info("benchmark finished",
		zap.String("agent_type", typeName),
		zap.String("suite", suite.Name),
		zap.Int("passed", report.Passed),
		zap.Int("failed", report.Failed),
		zap.Duration("total_duration", report.TotalDuration))
	return report, nil
}

// runBenchmarkTest runs one test on the worker pool and times it.
func (m *Manager) runBenchmarkTest(ctx context.Context, probe *Agent, workers *pool.WorkerPool, test BenchmarkTest) BenchmarkTestResult {
	result := BenchmarkTestResult{Name: test.Name}

	for _, c := range test.Requirements.RequiredCapabilities {
		if !probe.def.HasCapability(c) {
			result.Error = fmt.Sprintf("type %s lacks capability %q", probe.TypeName(), c)
			return result
		}
	}
	if test.Run == nil {
		result.Error = "test has no run function"
		return result
	}

	timeout := test.Timeout
	if timeout <= 0 {
		timeout = defaultBenchmarkTimeout
	}

	start := time.Now()
	err := workers.SubmitWait(ctx, func(jobCtx context.Context) error {
		runCtx, cancel := context.WithTimeout(jobCtx, timeout)
		defer cancel()
		return test.Run(runCtx)
	})
	result.Duration = time.Since(start)

	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Passed = true
	return result
}
