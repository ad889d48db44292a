// Package extract runs the yt-dlp command-line tool to fetch media.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"time"

	"clipbot/internal/domain"
)

const (
	defaultBinary   = "yt-dlp"
	stderrTailBytes = 4096
)

// ErrToolNotFound is returned when the yt-dlp binary cannot be resolved.
var ErrToolNotFound = errors.New("yt-dlp binary not found")

// ToolError describes a failed yt-dlp run. Stderr is kept for logs only.
type ToolError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("yt-dlp exited with code %d: %v", e.ExitCode, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// YtDlpConfig configures the yt-dlp runner.
type YtDlpConfig struct {
	BinaryPath string        // default "yt-dlp" on PATH
	Timeout    time.Duration // 0 = no limit
}

// YtDlp implements domain.Extractor by running the yt-dlp binary once per
// URL and parsing the info JSON it prints after downloading.
type YtDlp struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

var _ domain.Extractor = (*YtDlp)(nil)

func NewYtDlp(cfg YtDlpConfig, logger *slog.Logger) *YtDlp {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = defaultBinary
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &YtDlp{binary: cfg.BinaryPath, timeout: cfg.Timeout, logger: logger}
}

// Resolve returns the absolute path of the configured binary.
func (y *YtDlp) Resolve() (string, error) {
	path, err := exec.LookPath(y.binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, y.binary)
	}
	return path, nil
}

// Version runs "yt-dlp --version".
func (y *YtDlp) Version(ctx context.Context) (string, error) {
	bin, err := y.Resolve()
	if err != nil {
		return "", err
	}
	out, err := exec.CommandContext(ctx, bin, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("yt-dlp --version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Extract downloads url according to opts and returns the parsed info dict.
func (y *YtDlp) Extract(ctx context.Context, url string, opts domain.ExtractionOptions) (*domain.ExtractResult, error) {
	bin, err := y.Resolve()
	if err != nil {
		return nil, err
	}

	if y.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}

	args := buildArgs(url, opts)
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	y.logger.Debug("yt-dlp start", "url", url, "args", redactArgs(args))

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (after %s)", ctx.Err(), time.Since(start).Round(time.Second))
		}
		return nil, &ToolError{ExitCode: exitCode, Stderr: tail(stderr.String(), stderrTailBytes), Err: err}
	}

	res, err := parseResult(stdout.Bytes())
	if err != nil {
		return nil, &ToolError{Stderr: tail(stderr.String(), stderrTailBytes), Err: err}
	}

	y.logger.Debug("yt-dlp done", "url", url, "id", res.ID, "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// buildArgs maps ExtractionOptions to command-line flags. The URL is
// always last and preceded by "--" so it is never read as a flag.
func buildArgs(url string, opts domain.ExtractionOptions) []string {
	args := []string{
		"--dump-single-json",
		"--no-simulate",
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
	}
	if opts.OutputTemplate != "" {
		args = append(args, "-o", opts.OutputTemplate)
	}
	if opts.Format != "" {
		args = append(args, "-f", opts.Format)
	}
	if opts.CookiesFile != "" {
		args = append(args, "--cookies", opts.CookiesFile)
	}
	if opts.Proxy != "" {
		args = append(args, "--proxy", opts.Proxy)
	}
	for _, ea := range extractorArgs(opts.ExtractorArgs) {
		args = append(args, "--extractor-args", ea)
	}
	if opts.Impersonate != "" {
		args = append(args, "--impersonate", opts.Impersonate)
	}
	return append(args, "--", url)
}

// extractorArgs renders "extractor:key=v1,v2;key2=v" strings sorted by
// extractor and key.
func extractorArgs(m map[string]map[string][]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		params := m[name]
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strings.Join(params[k], ","))
		}
		out = append(out, name+":"+strings.Join(pairs, ";"))
	}
	return out
}

func parseResult(data []byte) (*domain.ExtractResult, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("yt-dlp printed no info JSON")
	}
	var res domain.ExtractResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parse yt-dlp info JSON: %w", err)
	}
	return &res, nil
}

// redactArgs hides the proxy value, which may carry credentials.
func redactArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "--proxy" {
			out[i+1] = "***"
		}
	}
	return out
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
