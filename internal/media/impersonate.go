package media

import (
	"fmt"
	"regexp"
	"strings"
)

// ImpersonateTarget is a browser fingerprint the extractor should mimic.
// Its text form is "client[-version][:os[-os_version]]", e.g. "chrome",
// "chrome-124" or "safari-17.0:macos-14".
type ImpersonateTarget struct {
	Client    string
	Version   string
	OS        string
	OSVersion string
}

var impersonatePattern = regexp.MustCompile(`^([a-z0-9_]+)(?:-([a-z0-9_.]+))?(?::([a-z0-9_]+)(?:-([a-z0-9_.]+))?)?$`)

// ParseImpersonateTarget parses the text form of a target.
func ParseImpersonateTarget(s string) (ImpersonateTarget, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	m := impersonatePattern.FindStringSubmatch(s)
	if m == nil {
		return ImpersonateTarget{}, fmt.Errorf("invalid impersonate target %q", s)
	}
	return ImpersonateTarget{Client: m[1], Version: m[2], OS: m[3], OSVersion: m[4]}, nil
}

func (t ImpersonateTarget) String() string {
	var b strings.Builder
	b.WriteString(t.Client)
	if t.Version != "" {
		b.WriteString("-" + t.Version)
	}
	if t.OS != "" {
		b.WriteString(":" + t.OS)
		if t.OSVersion != "" {
			b.WriteString("-" + t.OSVersion)
		}
	}
	return b.String()
}
