package main

import (
	"context"

	"dagger/chatstream/internal/dagger"
)

const golangciLintVersion = "v2.8.0"

// linter runs golangci-lint in the CGO build container so go-sqlite3 type
// checks against its headers.
func (c *Chatstream) linter() *dagger.Golangcilint {
	base := c.goContainer().
		WithExec([]string{
			"go", "install",
			"github.com/golangci/golangci-lint/v2/cmd/golangci-lint@" + golangciLintVersion,
		})

	return dag.Golangcilint(c.Source, dagger.GolangcilintOpts{
		BaseCtr: base,
		Config:  c.Source.File(".golangci.yml"),
	})
}

// CheckLint reports lint findings.
//
// +check
func (c *Chatstream) CheckLint(ctx context.Context) (string, error) {
	return c.linter().Check(ctx)
}

// FixLint applies golangci-lint --fix and returns the rewritten source.
func (c *Chatstream) FixLint() *dagger.Directory {
	return c.linter().Lint()
}
