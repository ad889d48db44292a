package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"clipbot/internal/browser"

	"github.com/chromedp/cdproto/network"
	"github.com/spf13/cobra"
)

func cookiesCmd() *cobra.Command {
	var (
		login   bool
		url     string
		domains string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "cookies",
		Short: "Export site cookies from a local Chrome profile for yt-dlp",
		Long: `Reads the cookies of the clipbot Chrome profile and writes them in
Netscape format to COOKIES_FILE. With --login a visible browser opens first
so you can sign in; press Enter in the terminal when done.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if url == "" {
				url = cfg.Browser.LoginURL
			}
			if out == "" {
				out = cfg.Download.CookiesFile
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b := browser.NewBridge(browser.BridgeConfig{
				ProfileDir: cfg.Browser.ProfileDir,
				Headless:   true,
				Logger:     logger,
			})

			var cookies []*network.Cookie
			if login {
				fmt.Fprintf(cmd.OutOrStdout(), "Sign in at %s in the browser window, then press Enter here.\n", url)
				cookies, err = b.Login(ctx, url, browser.WaitForEnter(cmd.InOrStdin()))
			} else {
				cookies, err = b.Cookies(ctx)
			}
			if err != nil {
				return err
			}

			kept := browser.FilterCookies(cookies, splitList(domains))
			if len(kept) == 0 {
				return fmt.Errorf("no cookies for %s in profile %s; try --login", domains, b.ProfileDir())
			}
			if err := browser.SaveNetscape(out, kept); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d cookies to %s\n", len(kept), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&login, "login", false, "open a visible browser to sign in first")
	cmd.Flags().StringVar(&url, "url", "", "page to open with --login (default COOKIES_LOGIN_URL)")
	cmd.Flags().StringVar(&domains, "domains", "youtube.com,tiktok.com", "comma-separated cookie domains to keep")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default COOKIES_FILE)")
	return cmd
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
