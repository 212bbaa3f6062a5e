package backend

import (
	"context"
	"os/exec"
)

// CommandExecutor runs one prepared command.
type CommandExecutor interface {
	// Run executes the command and returns the combined output (stdout+stderr).
	Run() ([]byte, error)
}

// CommandBuilder prepares commands. Tests substitute MockCommandBuilder.
type CommandBuilder interface {
	BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor
}

// ExecCommandExecutor wraps exec.Cmd.
type ExecCommandExecutor struct {
	cmd *exec.Cmd
}

// Run executes the command and returns combined output.
func (e *ExecCommandExecutor) Run() ([]byte, error) {
	return e.cmd.CombinedOutput()
}

// ExecCommandBuilder builds commands with exec.CommandContext, so cancelling
// ctx kills the backend process.
type ExecCommandBuilder struct{}

// BuildCommand implements CommandBuilder.
func (ExecCommandBuilder) BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor {
	return &ExecCommandExecutor{cmd: exec.CommandContext(ctx, name, args...)}
}

// MockCommandExecutor implements CommandExecutor for testing.
type MockCommandExecutor struct {
	Output []byte
	Err    error
	// OnRun, when set, is called before returning so tests can create the
	// result file a real backend would write.
	OnRun     func()
	RunCalled bool
}

// Run returns the configured output and error.
func (m *MockCommandExecutor) Run() ([]byte, error) {
	m.RunCalled = true
	if m.OnRun != nil {
		m.OnRun()
	}
	return m.Output, m.Err
}

// MockBuiltCommand records one built command.
type MockBuiltCommand struct {
	Name string
	Args []string
}

// MockCommandBuilder records commands and hands out executors from
// ExecutorFactory, or empty successful ones.
type MockCommandBuilder struct {
	Commands        []MockBuiltCommand
	ExecutorFactory func(name string, args []string) *MockCommandExecutor
}

// NewMockCommandBuilder creates a new MockCommandBuilder.
func NewMockCommandBuilder() *MockCommandBuilder {
	return &MockCommandBuilder{}
}

// BuildCommand implements CommandBuilder.
func (b *MockCommandBuilder) BuildCommand(_ context.Context, name string, args ...string) CommandExecutor {
	b.Commands = append(b.Commands, MockBuiltCommand{Name: name, Args: args})
	if b.ExecutorFactory != nil {
		return b.ExecutorFactory(name, args)
	}
	return &MockCommandExecutor{}
}

// LastCommand returns the most recently built command, or nil if none.
func (b *MockCommandBuilder) LastCommand() *MockBuiltCommand {
	if len(b.Commands) == 0 {
		return nil
	}
	return &b.Commands[len(b.Commands)-1]
}
