package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
)

// DefaultExecProgram is the helper binary used to reach the management
// service from inside a managed machine, where the service socket is not
// directly reachable.
const DefaultExecProgram = "qrexec-client-vm"

// Exec reaches the management service by spawning a helper program per
// call. The helper receives the destination and the service name
// ("method" or "method+arg") as arguments and the payload on stdin; its
// stdout is the raw response.
type Exec struct {
	program string
}

// NewExec returns an Exec transport. If program is empty, defaults to
// DefaultExecProgram (resolved via PATH).
func NewExec(program string) *Exec {
	if program == "" {
		program = DefaultExecProgram
	}
	return &Exec{program: program}
}

// Program returns the helper binary this transport spawns.
func (e *Exec) Program() string {
	return e.program
}

// serviceName joins method and argument the way the helper expects.
func serviceName(method, arg string) string {
	if arg == "" {
		return method
	}
	return method + "+" + arg
}

// Call performs one complete exchange through the helper program.
func (e *Exec) Call(ctx context.Context, dest, method, arg string, payload []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.program, dest, serviceName(method, arg))
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return nil, fmt.Errorf("%w: %s: %v: %s", ErrUnavailable, e.program, err, msg)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, e.program, err)
	}
	return stdout.Bytes(), nil
}

// Open starts a long-lived call through the helper program. Closing the
// returned stream kills the helper and reaps it.
func (e *Exec) Open(ctx context.Context, dest, method, arg string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, e.program, dest, serviceName(method, arg))
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, e.program, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, e.program, err)
	}
	return &execStream{ReadCloser: stdout, cmd: cmd}, nil
}

// execStream ties the helper's lifetime to the response stream.
type execStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (s *execStream) Close() error {
	_ = s.ReadCloser.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	// Wait returns an error after Kill; the stream is closed either way.
	_ = s.cmd.Wait()
	return nil
}
