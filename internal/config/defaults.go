package config

import "time"

func Defaults() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Mode: "webhook",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ShutdownTimeout: 30 * time.Second,
		},
		Download: DownloadConfig{
			Dir:         "downloads",
			YtDlpPath:   "yt-dlp",
			Format:      DefaultFormat,
			Impersonate: "chrome",
			CookiesFile: "cookies.txt",
			MaxWorkers:  4,
		},
		Dispatch: DispatchConfig{
			MaxConcurrent:      16,
			RateLimitPerMinute: 0, // per-sender limiting is opt-in
			RateLimitBurst:     3,
		},
		Queue: QueueConfig{
			Size:     100,
			RedisKey: "clipbot:queue:updates",
		},
		Store: StoreConfig{
			DBPath: "data/clipbot.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Browser: BrowserConfig{
			ProfileDir: "~/.clipbot/chrome-profile",
			LoginURL:   "https://www.youtube.com",
		},
	}
}

// DefaultFormat prefers a single file carrying both audio and video so
// no merge step (and no ffmpeg) is needed.
const DefaultFormat = "best[ext=mp4]/best"
