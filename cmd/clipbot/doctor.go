package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"clipbot/internal/bus"
	"clipbot/internal/config"
	"clipbot/internal/extract"
	"clipbot/internal/store"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your clipbot installation",
		Long: `Verifies that clipbot's configuration, yt-dlp, cookies, download
directory, database and queue are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("clipbot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config loads and validates
			cfg, err := loadConfig()
			if err != nil {
				printFail("Config", err.Error())
				fmt.Printf("\n%d passed, 1 failed\n", passed)
				return err
			}
			if configPath != "" {
				printPass("Config", config.ExpandPath(configPath))
			} else {
				printPass("Config", "valid (environment only)")
			}
			passed++

			// 2. Bot token
			if err := config.ValidateServe(cfg, cfg.Telegram.Mode); err != nil {
				printWarn("Telegram", err.Error()+" (serve will refuse to start)")
				warned++
			} else {
				printPass("Telegram", cfg.Telegram.Mode+" mode")
				passed++
			}

			// 3. yt-dlp
			ytdlp := extract.NewYtDlp(extract.YtDlpConfig{BinaryPath: cfg.Download.YtDlpPath}, logger)
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if v, err := ytdlp.Version(ctx); err != nil {
				printFail("yt-dlp", err.Error())
				failed++
			} else {
				printPass("yt-dlp", v)
				passed++
			}

			// 4. ffmpeg merges separate audio and video streams
			if path, err := exec.LookPath("ffmpeg"); err != nil {
				printWarn("ffmpeg", "not found (merged formats will fail)")
				warned++
			} else {
				printPass("ffmpeg", path)
				passed++
			}

			// 5. Cookies file
			if info, err := os.Stat(cfg.Download.CookiesFile); err != nil {
				printWarn("Cookies", fmt.Sprintf("%s missing (run 'clipbot cookies --login')", cfg.Download.CookiesFile))
				warned++
			} else {
				printPass("Cookies", fmt.Sprintf("%s, %s, updated %s",
					cfg.Download.CookiesFile, humanize.Bytes(uint64(info.Size())), humanize.Time(info.ModTime())))
				passed++
			}

			// 6. Download directory writable
			if err := checkWritable(cfg.Download.Dir); err != nil {
				printFail("Download dir", err.Error())
				failed++
			} else {
				printPass("Download dir", cfg.Download.Dir)
				passed++
			}

			// 7. Database
			if cfg.Store.DBPath == "" {
				printWarn("Database", "DB_PATH empty (history and /stats disabled)")
				warned++
			} else if err := checkDatabase(ctx, cfg.Store.DBPath); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", cfg.Store.DBPath)
				passed++
			}

			// 8. Redis queue
			if cfg.Queue.RedisURL != "" {
				q, err := bus.NewRedisQueue(ctx, cfg.Queue.RedisURL, cfg.Queue.RedisKey, logger)
				if err != nil {
					printFail("Redis", err.Error())
					failed++
				} else {
					n, _ := q.Len(ctx)
					q.Close()
					printPass("Redis", fmt.Sprintf("%s (%d queued)", cfg.Queue.RedisKey, n))
					passed++
				}
			}

			// 9. HTTP port
			if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
				printWarn("HTTP port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
				warned++
			} else {
				printPass("HTTP port", fmt.Sprintf(":%d available", cfg.Server.Port))
				passed++
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running clipbot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nclipbot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! clipbot is ready to run.\n")
			}
			return nil
		},
	}
}

// checkDatabase opens the store, which also applies pending migrations.
func checkDatabase(ctx context.Context, dbPath string) error {
	s, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := s.CountUsers(ctx); err != nil {
		return fmt.Errorf("cannot read: %w", err)
	}
	return nil
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create: %w", err)
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name))
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(strings.TrimSpace(host), fmt.Sprint(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-14s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-14s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-14s %s\n", check, detail)
}
