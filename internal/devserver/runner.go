package devserver

import (
	"context"
	"fmt"
	"time"

	"github.com/Harris-py/codecollab-go/pkg/protocol"
)

// Runner executes a snippet of code and reports its output. The default
// implementation only simulates execution; a real deployment would swap in
// a sandboxed runner.
type Runner interface {
	Run(ctx context.Context, code, language, input string) (protocol.RunOutput, error)
}

// stubRunner acknowledges every run without executing anything.
type stubRunner struct{}

func (stubRunner) Run(ctx context.Context, code, language, input string) (protocol.RunOutput, error) {
	select {
	case <-ctx.Done():
		return protocol.RunOutput{}, ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	if code == "" {
		return protocol.RunOutput{}, fmt.Errorf("nothing to execute")
	}
	return protocol.RunOutput{
		Output:     fmt.Sprintf("[%s] execution is not enabled on this server\n", language),
		ExitCode:   0,
		DurationMs: 10,
	}, nil
}
