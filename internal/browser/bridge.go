// Package browser drives a local Chrome profile to capture site cookies
// for authenticated extraction.
package browser

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Bridge manages Chrome instances bound to one persistent profile.
type Bridge struct {
	profileDir string
	headless   bool
	logger     *slog.Logger
}

// BridgeConfig holds configuration for the browser bridge.
type BridgeConfig struct {
	ProfileDir string // Chrome user data directory (persists cookies/sessions)
	Headless   bool   // Run headless (true) or with visible UI (false)
	Logger     *slog.Logger
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.ProfileDir == "" {
		home, _ := os.UserHomeDir()
		cfg.ProfileDir = filepath.Join(home, ".clipbot", "chrome-profile")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{
		profileDir: cfg.ProfileDir,
		headless:   cfg.Headless,
		logger:     cfg.Logger,
	}
}

// ProfileDir returns the Chrome user data directory.
func (b *Bridge) ProfileDir() string { return b.profileDir }

// NewContext creates a chromedp context on the bridge's profile.
// The caller MUST call cancel() when done.
func (b *Bridge) NewContext(parentCtx context.Context, headless bool) (context.Context, context.CancelFunc) {
	if err := os.MkdirAll(b.profileDir, 0o755); err != nil {
		b.logger.Error("failed to create profile dir", "dir", b.profileDir, "err", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(b.profileDir),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.UserAgent(userAgent),
	)
	if headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	return taskCtx, func() {
		taskCancel()
		allocCancel()
	}
}

// Login opens a visible browser at url and returns the profile's cookies
// once done is closed. The operator signs in while the browser is open.
func (b *Bridge) Login(ctx context.Context, url string, done <-chan struct{}) ([]*network.Cookie, error) {
	b.logger.Info("opening browser for login", "url", url)

	taskCtx, cancel := b.NewContext(ctx, false)
	defer cancel()

	if err := chromedp.Run(taskCtx, chromedp.Navigate(url)); err != nil {
		return nil, fmt.Errorf("navigate to login page: %w", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	cookies, err := allCookies(taskCtx)
	if err != nil {
		return nil, err
	}
	b.logger.Info("login session captured", "profile", b.profileDir, "cookies", len(cookies))
	return cookies, nil
}

// Cookies reads the cookies stored in the profile without showing a window.
func (b *Bridge) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	taskCtx, cancel := b.NewContext(ctx, b.headless)
	defer cancel()
	return allCookies(taskCtx)
}

func allCookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return cookies, nil
}

// WaitForEnter returns a channel closed when a line is read from r.
func WaitForEnter(r io.Reader) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		bufio.NewReader(r).ReadString('\n')
		close(done)
	}()
	return done
}

// FilterCookies keeps cookies whose domain is one of domains or a
// subdomain of one. An empty list keeps everything.
func FilterCookies(cookies []*network.Cookie, domains []string) []*network.Cookie {
	if len(domains) == 0 {
		return cookies
	}
	var out []*network.Cookie
	for _, c := range cookies {
		host := strings.TrimPrefix(strings.ToLower(c.Domain), ".")
		for _, d := range domains {
			d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
			if host == d || strings.HasSuffix(host, "."+d) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// WriteNetscape writes cookies in the Netscape cookies.txt format read by
// yt-dlp's --cookies flag. Output is sorted by domain, path and name.
func WriteNetscape(w io.Writer, cookies []*network.Cookie) error {
	sorted := append([]*network.Cookie(nil), cookies...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Name < b.Name
	})

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# Netscape HTTP Cookie File")
	fmt.Fprintln(bw, "# Exported by clipbot. Do not share.")
	fmt.Fprintln(bw)
	for _, c := range sorted {
		domain := c.Domain
		if c.HTTPOnly {
			domain = "#HttpOnly_" + domain
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		var expires int64
		if !c.Session && c.Expires > 0 {
			expires = int64(c.Expires)
		}
		fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			domain,
			boolField(strings.HasPrefix(c.Domain, ".")),
			path,
			boolField(c.Secure),
			strconv.FormatInt(expires, 10),
			c.Name,
			c.Value,
		)
	}
	return bw.Flush()
}

// SaveNetscape writes cookies to path with owner-only permissions,
// replacing any existing file.
func SaveNetscape(path string, cookies []*network.Cookie) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create cookies dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cookies-*.txt")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := WriteNetscape(tmp, cookies); err != nil {
		tmp.Close()
		return fmt.Errorf("write cookies: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func boolField(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
