package browser

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chromedp/cdproto/network"
)

func sampleCookies() []*network.Cookie {
	return []*network.Cookie{
		{Name: "SID", Value: "abc", Domain: ".youtube.com", Path: "/", Secure: true, HTTPOnly: true, Expires: 1900000000},
		{Name: "sessionid", Value: "tt", Domain: "www.tiktok.com", Path: "", Session: true, Expires: -1},
		{Name: "other", Value: "x", Domain: "example.org", Path: "/"},
	}
}

func TestWriteNetscape(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteNetscape(&buf, sampleCookies()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "# Netscape HTTP Cookie File\n") {
		t.Errorf("expected Netscape header, got %q", out)
	}
	for _, want := range []string{
		"#HttpOnly_.youtube.com\tTRUE\t/\tTRUE\t1900000000\tSID\tabc\n",
		"www.tiktok.com\tFALSE\t/\tFALSE\t0\tsessionid\ttt\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected line %q in:\n%s", want, out)
		}
	}
	// Sorted by domain: ".youtube.com" < "example.org" < "www.tiktok.com".
	if strings.Index(out, "SID") > strings.Index(out, "other") || strings.Index(out, "other") > strings.Index(out, "sessionid") {
		t.Errorf("expected sorted output, got:\n%s", out)
	}
}

func TestFilterCookies(t *testing.T) {
	got := FilterCookies(sampleCookies(), []string{"youtube.com", ".TikTok.com"})
	if len(got) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(got))
	}
	if got[0].Name != "SID" || got[1].Name != "sessionid" {
		t.Errorf("unexpected cookies %s, %s", got[0].Name, got[1].Name)
	}

	if all := FilterCookies(sampleCookies(), nil); len(all) != 3 {
		t.Errorf("expected all cookies without filter, got %d", len(all))
	}
	if none := FilterCookies(sampleCookies(), []string{"tube.com"}); len(none) != 0 {
		t.Errorf("expected suffix match on label boundary only, got %d", len(none))
	}
}

func TestSaveNetscape_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets", "cookies.txt")
	if err := SaveNetscape(path, sampleCookies()); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected 0600, got %o", info.Mode().Perm())
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected temp file cleaned up, got %d entries", len(entries))
	}
}

func TestNewBridge_DefaultProfile(t *testing.T) {
	b := NewBridge(BridgeConfig{})
	if !strings.HasSuffix(b.ProfileDir(), filepath.Join(".clipbot", "chrome-profile")) {
		t.Errorf("unexpected default profile %q", b.ProfileDir())
	}
}
