package eval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medrag/internal/config"
	"github.com/fyrsmithlabs/medrag/internal/logging"
	"github.com/fyrsmithlabs/medrag/internal/pipeline"
)

// Pipeline executes pipeline runs.
type Pipeline interface {
	Clinical(ctx context.Context, req pipeline.ClinicalRequest) (*pipeline.Result, error)
	Literature(ctx context.Context, req pipeline.LiteratureRequest) (*pipeline.Result, error)
}

// Runner executes suites.
type Runner struct {
	pipeline Pipeline
	defaults config.PipelineConfig
	logger   *logging.Logger
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Pipeline Pipeline
	// Defaults fill parameters neither the case nor the suite sets.
	Defaults config.PipelineConfig
	Logger   *logging.Logger
}

// NewRunner creates a suite runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Runner{
		pipeline: cfg.Pipeline,
		defaults: cfg.Defaults,
		logger:   logger,
	}, nil
}

// Run executes every case in order. A failing case does not stop the
// suite; only context cancellation does.
func (r *Runner) Run(ctx context.Context, suite *Suite) (*Report, error) {
	start := time.Now()
	report := &Report{Suite: suite.Name}

	for _, c := range suite.Cases {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res := r.RunCase(ctx, suite, c)
		report.Results = append(report.Results, res)
		if res.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
	}

	report.Duration = time.Since(start)
	r.logger.Info(ctx, "suite finished",
		zap.String("suite", suite.Name),
		zap.Int("passed", report.Passed),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// RunCase executes a single case and checks its expectations.
func (r *Runner) RunCase(ctx context.Context, suite *Suite, c Case) CaseResult {
	start := time.Now()
	r.logger.Debug(ctx, "running case", zap.String("case", c.Name), zap.String("mode", string(c.Mode)))

	var (
		res *pipeline.Result
		err error
	)
	switch c.Mode {
	case ModeClinical:
		req := suite.clinicalRequest(c)
		req.ApplyDefaults(r.defaults)
		res, err = r.pipeline.Clinical(ctx, req)
	case ModeLiterature:
		req := suite.literatureRequest(c)
		req.ApplyDefaults(r.defaults)
		res, err = r.pipeline.Literature(ctx, req)
	}

	out := CaseResult{Case: c.Name, Duration: time.Since(start)}
	if err != nil {
		out.Error = fmt.Sprintf("%s: %v", pipeline.Classify(err), err)
		out.Passed = c.ExpectError != "" && string(pipeline.Classify(err)) == c.ExpectError
		if !out.Passed && c.ExpectError != "" {
			out.Message = fmt.Sprintf("expected %s failure", c.ExpectError)
		}
		r.logCase(ctx, out)
		return out
	}

	out.Answer = res.Answer
	if c.ExpectError != "" {
		out.Message = fmt.Sprintf("expected %s failure, run succeeded", c.ExpectError)
		r.logCase(ctx, out)
		return out
	}

	out.MissingKeywords = missing(c.ExpectKeywords, []string{res.Answer})
	out.MissingContexts = missing(c.ExpectContexts, res.Contexts())
	out.Passed = len(out.MissingKeywords) == 0 && len(out.MissingContexts) == 0
	if c.ExpectEmpty && !res.Empty {
		out.Passed = false
		out.Message = "expected empty result"
	}

	r.logCase(ctx, out)
	return out
}

func (r *Runner) logCase(ctx context.Context, res CaseResult) {
	r.logger.Info(ctx, "case finished",
		zap.String("case", res.Case),
		zap.Bool("passed", res.Passed),
		zap.Duration("duration", res.Duration),
	)
}

// missing returns the expected terms that appear in none of texts,
// compared case-insensitively.
func missing(expected, texts []string) []string {
	lowered := make([]string, len(texts))
	for i, t := range texts {
		lowered[i] = strings.ToLower(t)
	}

	var out []string
	for _, want := range expected {
		w := strings.ToLower(want)
		found := false
		for _, t := range lowered {
			if strings.Contains(t, w) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, want)
		}
	}
	return out
}
