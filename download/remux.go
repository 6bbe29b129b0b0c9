package download

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
)

var ErrRemuxerMissing = errors.New("remuxer executable not found")

// A Remuxer runs the external media tool with the given arguments.
type Remuxer interface {
	Run(ctx context.Context, args ...string) error
}

// RemuxError is a fatal remuxer failure. It is deliberately not a DownloadError: a broken toolchain is not a
// per-item network problem.
type RemuxError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *RemuxError) Error() string {
	if errors.Is(e.Err, ErrRemuxerMissing) {
		return e.Err.Error()
	}
	return fmt.Sprintf("remux failed (exit code %d): %s", e.ExitCode, e.Stderr)
}

func (e *RemuxError) Unwrap() error {
	return e.Err
}

// ExecRemuxer runs an ffmpeg-compatible executable, capturing stderr for error reports.
type ExecRemuxer struct {
	Path string
}

func (r *ExecRemuxer) Run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, r.Path, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &RemuxError{ExitCode: exitErr.ExitCode(), Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	var pathErr *fs.PathError
	if errors.Is(err, exec.ErrNotFound) || errors.As(err, &pathErr) {
		return &RemuxError{ExitCode: -1, Err: fmt.Errorf("%w: %s", ErrRemuxerMissing, r.Path)}
	}
	return &RemuxError{ExitCode: -1, Err: err}
}

// Available reports whether the executable can be found.
func (r *ExecRemuxer) Available() bool {
	_, err := exec.LookPath(r.Path)
	return err == nil
}

func copyArgs(video, audio, output string) []string {
	return []string{"-y", "-i", video, "-i", audio, "-c", "copy", "-map", "0:v:0", "-map", "1:a:0", output}
}

func h264MergeArgs(video, audio, output string) []string {
	return []string{
		"-y", "-i", video, "-i", audio,
		"-c:v", "libx264", "-preset", "medium", "-crf", "23",
		"-c:a", "aac", "-b:a", "128k",
		"-map", "0:v:0", "-map", "1:a:0",
		output,
	}
}

func h264EncodeArgs(input, output string) []string {
	return []string{
		"-y", "-i", input,
		"-c:v", "libx264", "-preset", "medium", "-crf", "23",
		"-c:a", "aac", "-b:a", "128k",
		output,
	}
}
