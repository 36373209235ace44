// Package native は外部コマンド（pdftoppm, tesseract, ghostscript）の呼び出しをまとめます。
package native

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Runner は外部コマンドを実行します。テストではスタブに差し替えます。
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner は os/exec でコマンドを実行する Runner です。
type ExecRunner struct {
	Logger logrus.FieldLogger
}

// Run はコマンドを実行し、標準出力と標準エラーを返します。
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	logger := r.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	start := time.Now()
	logger.WithField("cmd_line", strings.Join(append([]string{name}, args...), " ")).Debug("running command")

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	entry := logger.WithFields(logrus.Fields{
		"cmd":         name,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).WithField("stderr", truncate(errb.String(), 8<<10)).Error("exec failed")
	} else {
		entry.WithField("stdout_bytes", out.Len()).Debug("exec ok")
	}
	return out.Bytes(), errb.Bytes(), err
}

// CommandError は外部コマンドの失敗を表します。
// Error() は標準エラーの内容（空なら実行エラー）をそのまま返します。
type CommandError struct {
	Name   string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Name + " failed"
}

func (e *CommandError) Unwrap() error { return e.Err }

func run(ctx context.Context, r Runner, name string, args ...string) ([]byte, error) {
	stdout, stderr, err := r.Run(ctx, name, args...)
	if err != nil {
		return nil, &CommandError{Name: name, Stderr: string(stderr), Err: err}
	}
	return stdout, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
