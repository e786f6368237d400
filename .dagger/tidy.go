package main

import (
	"context"
	"errors"
	"fmt"

	"dagger/chatstream/internal/dagger"
)

// CheckGoModTidy fails when go.mod or go.sum would change under "go mod tidy".
//
// +check
func (c *Chatstream) CheckGoModTidy(ctx context.Context) (string, error) {
	_, err := c.goContainer().
		WithExec([]string{"go", "mod", "tidy", "-diff"}).
		Stdout(ctx)

	var execErr *dagger.ExecError
	switch {
	case errors.As(err, &execErr):
		return "", fmt.Errorf("run 'go mod tidy' and commit the result:\n\n%s", execErr.Stdout)
	case err != nil:
		return "", fmt.Errorf("go mod tidy: %w", err)
	}
	return "go.mod and go.sum are tidy", nil
}
