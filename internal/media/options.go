package media

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"

	"clipbot/internal/domain"
)

// DefaultFormat picks one file that already has audio and video muxed.
const DefaultFormat = "best[ext=mp4]/best"

// TikTok mobile-API identity sent as extractor arguments. The app values
// must match a released build or the API rejects the device.
const (
	tiktokAPIHostname        = "api16-normal-c-useast1a.tiktokv.com"
	tiktokAppName            = "trill"
	tiktokAppVersion         = "34.1.2"
	tiktokManifestAppVersion = "2023401020"
	tiktokAID                = "1180"

	minDeviceIDLen = 15
)

// OptionsConfig holds the operator settings the builder reads.
type OptionsConfig struct {
	DownloadDir string
	Format      string // empty = DefaultFormat
	CookiesFile string // attached only when the file exists
	Proxy       string
	DeviceID    string // fixed TikTok device id; random per call when unusable
	Impersonate string // browser target for short-form sources
}

// OptionsBuilder produces ExtractionOptions for a URL. It holds no mutable
// state and is safe for concurrent use.
type OptionsBuilder struct {
	cfg         OptionsConfig
	logger      *slog.Logger
	newDeviceID func() string
}

func NewOptionsBuilder(cfg OptionsConfig, logger *slog.Logger) *OptionsBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}
	return &OptionsBuilder{
		cfg:         cfg,
		logger:      logger,
		newDeviceID: RandomDeviceID,
	}
}

// Build returns fresh options for one request. It never fails; settings
// that cannot be used are left out.
func (b *OptionsBuilder) Build(url string, cat domain.SourceCategory) domain.ExtractionOptions {
	opts := domain.ExtractionOptions{
		OutputTemplate: filepath.Join(b.cfg.DownloadDir, "%(title)s.%(ext)s"),
		Format:         b.cfg.Format,
	}

	if b.cfg.CookiesFile != "" {
		if info, err := os.Stat(b.cfg.CookiesFile); err == nil && !info.IsDir() {
			opts.CookiesFile = b.cfg.CookiesFile
		}
	}
	if b.cfg.Proxy != "" {
		opts.Proxy = b.cfg.Proxy
	}

	switch cat {
	case domain.CategoryLongForm:
		opts.ExtractorArgs = map[string]map[string][]string{
			// Mobile client first; web is the fallback.
			"youtube": {"player_client": {"android", "web"}},
		}
	case domain.CategoryShortForm:
		opts.ExtractorArgs = map[string]map[string][]string{
			"tiktok": {
				"api_hostname":         {tiktokAPIHostname},
				"app_name":             {tiktokAppName},
				"app_version":          {tiktokAppVersion},
				"manifest_app_version": {tiktokManifestAppVersion},
				"aid":                  {tiktokAID},
				"device_id":            {b.deviceID()},
			},
		}
		if b.cfg.Impersonate != "" {
			target, err := ParseImpersonateTarget(b.cfg.Impersonate)
			if err != nil {
				b.logger.Warn("impersonation disabled", "target", b.cfg.Impersonate, "err", err)
			} else {
				opts.Impersonate = target.String()
			}
		}
	}

	return opts
}

func (b *OptionsBuilder) deviceID() string {
	if ValidDeviceID(b.cfg.DeviceID) {
		return b.cfg.DeviceID
	}
	return b.newDeviceID()
}

// ValidDeviceID reports whether id is all digits and long enough to be
// accepted as a TikTok device id.
func ValidDeviceID(id string) bool {
	if len(id) < minDeviceIDLen {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// RandomDeviceID returns a 19-digit id in the range TikTok issues.
func RandomDeviceID() string {
	return fmt.Sprintf("7%018d", rand.Int64N(1_000_000_000_000_000_000))
}
