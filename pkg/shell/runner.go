package shell

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	kexec "k8s.io/utils/exec"
)

// Runner executes privileged host commands on behalf of the provisioning
// layer. It is the only place the layer touches the kernel; everything above
// it can be tested against a fake.
//
// Run executes an argument vector directly (args[0] is the binary). RunShell
// hands the string to `sh -c` and exists only for the few commands that need
// shell conditionals or pipes.
type Runner interface {
	Run(args ...string) (string, error)
	RunShell(command string) (string, error)
}

// CommandError reports a command that could not be launched or exited
// non-zero. Stderr carries whatever the command printed; ExitCode is -1 when
// the process never ran.
type CommandError struct {
	Cmd      string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed (exit code %d): %v: %s",
		e.Cmd, e.ExitCode, e.Err, strings.TrimSpace(e.Stderr))
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecRunner is the real Runner. It delegates to an injected
// kexec.Interface so tests can script command outcomes.
type ExecRunner struct {
	exec kexec.Interface
}

// NewRunner creates an ExecRunner backed by the host.
func NewRunner() *ExecRunner {
	return &ExecRunner{exec: kexec.New()}
}

// NewRunnerWithExec creates an ExecRunner with a custom executor.
func NewRunnerWithExec(exec kexec.Interface) *ExecRunner {
	return &ExecRunner{exec: exec}
}

// Run executes args as a single process and returns its stdout with the
// trailing newline stripped. The call blocks until the process exits; any
// deadline or cancellation policy belongs to the caller.
func (r *ExecRunner) Run(args ...string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("no command given")
	}
	return r.run(args[0], args[1:]...)
}

// RunShell executes command through `sh -c`, preserving conditional and
// pipe semantics.
func (r *ExecRunner) RunShell(command string) (string, error) {
	return r.run("sh", "-c", command)
}

func (r *ExecRunner) run(name string, args ...string) (string, error) {
	cmdLine := name
	if len(args) > 0 {
		cmdLine += " " + strings.Join(args, " ")
	}

	var stdout, stderr bytes.Buffer
	cmd := r.exec.Command(name, args...)
	cmd.SetStdout(&stdout)
	cmd.SetStderr(&stderr)

	log.Debug().Str("cmd", cmdLine).Msg("running command")

	if err := cmd.Run(); err != nil {
		cmdErr := &CommandError{
			Cmd:      cmdLine,
			ExitCode: -1,
			Stderr:   stderr.String(),
			Err:      err,
		}
		var exitErr kexec.ExitError
		if errors.As(err, &exitErr) {
			cmdErr.ExitCode = exitErr.ExitStatus()
		}
		log.Debug().
			Str("cmd", cmdLine).
			Int("exit_code", cmdErr.ExitCode).
			Str("stderr", strings.TrimSpace(cmdErr.Stderr)).
			Msg("command failed")
		return "", cmdErr
	}

	return strings.TrimSuffix(stdout.String(), "\n"), nil
}
