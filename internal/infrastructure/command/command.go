package command

import (
	"bytes"
	"context"
	"os/exec"

	"PfamSurvey/internal/domain"
)

// Run executes an external tool in dir and waits for it to exit.
// Combined output is returned; failures come back as *domain.ToolError.
func Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return out.String(), &domain.ToolError{Tool: name, Args: args, Output: out.String(), Err: err}
	}
	return out.String(), nil
}
