package hmmer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"PfamSurvey/internal/config"
	"PfamSurvey/internal/domain"
	"PfamSurvey/internal/ports"
)

// Runner writes the search script into a work directory and executes it.
type Runner struct {
	dir    string
	cfg    config.SearchConfig
	logger *slog.Logger
}

var _ ports.SearchRunner = (*Runner)(nil)

// NewRunner binds the search settings to a work directory.
func NewRunner(dir string, cfg config.SearchConfig, log *slog.Logger) *Runner {
	return &Runner{dir: dir, cfg: cfg, logger: log}
}

// Run blocks until every pair has been attempted. Pairs come back with Done set
// when their output file exists. A failed script run is reported in RunReport.Err;
// the returned error is reserved for failures to prepare or start the run.
func (r *Runner) Run(ctx context.Context, pairs []domain.SearchPair) (ports.RunReport, error) {
	script, err := RenderScript(r.cfg, pairs)
	if err != nil {
		return ports.RunReport{}, err
	}

	scriptPath := r.path(r.cfg.ScriptPath)
	if err := os.WriteFile(scriptPath, script, 0o755); err != nil {
		return ports.RunReport{}, fmt.Errorf("write script: %w", err)
	}
	if err := os.Chmod(scriptPath, 0o755); err != nil {
		return ports.RunReport{}, fmt.Errorf("chmod script: %w", err)
	}

	for _, p := range pairs {
		if err := os.Remove(p.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return ports.RunReport{}, fmt.Errorf("clear stale output: %w", err)
		}
	}

	logFile, err := os.Create(r.path(r.cfg.LogPath))
	if err != nil {
		return ports.RunReport{}, fmt.Errorf("create search log: %w", err)
	}
	defer logFile.Close()

	shell := r.cfg.Shell
	if shell == "" {
		shell = "/bin/bash"
	}

	r.debug("run search script", "script", scriptPath, "pairs", len(pairs))
	cmd := exec.CommandContext(ctx, shell, scriptPath)
	cmd.Dir = r.dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	report := ports.RunReport{ScriptPath: scriptPath}
	if runErr := cmd.Run(); runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return ports.RunReport{}, &domain.ToolError{Tool: shell, Args: []string{scriptPath}, Err: runErr}
		}
		report.Err = &domain.ToolError{Tool: shell, Args: []string{scriptPath}, Err: runErr, Output: "see " + logFile.Name()}
	}

	report.Pairs = make([]domain.SearchPair, len(pairs))
	for i, p := range pairs {
		_, statErr := os.Stat(p.OutputPath)
		p.Done = statErr == nil
		report.Pairs[i] = p
	}
	return report, nil
}

func (r *Runner) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(r.dir, name)
}

func (r *Runner) debug(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
