package extract

import (
	"os"
	"path/filepath"
	"testing"

	"clipbot/internal/domain"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLocateArtifact_PrefersFilepath(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "a.mp4")
	fn := filepath.Join(dir, "b.mp4")
	touch(t, fp)
	touch(t, fn)

	res := &domain.ExtractResult{
		RequestedDownloads: []domain.RequestedDownload{{Filepath: fp, Filename: fn}},
	}
	got, ok := LocateArtifact(res)
	if !ok || got != fp {
		t.Errorf("expected %q, got %q (ok=%v)", fp, got, ok)
	}
}

func TestLocateArtifact_FallsBackToFilename(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "b.mp4")
	touch(t, fn)

	res := &domain.ExtractResult{
		RequestedDownloads: []domain.RequestedDownload{{Filepath: filepath.Join(dir, "missing.mp4"), Filename: fn}},
	}
	got, ok := LocateArtifact(res)
	if !ok || got != fn {
		t.Errorf("expected %q, got %q (ok=%v)", fn, got, ok)
	}
}

func TestLocateArtifact_FirstExistingEntryWins(t *testing.T) {
	dir := t.TempDir()
	second := filepath.Join(dir, "second.mp4")
	touch(t, second)

	res := &domain.ExtractResult{
		RequestedDownloads: []domain.RequestedDownload{
			{Filepath: filepath.Join(dir, "first.mp4")},
			{Filepath: second},
		},
		Filename: filepath.Join(dir, "catchall.mp4"),
	}
	got, ok := LocateArtifact(res)
	if !ok || got != second {
		t.Errorf("expected %q, got %q (ok=%v)", second, got, ok)
	}
}

func TestLocateArtifact_CatchAll(t *testing.T) {
	dir := t.TempDir()
	catchAll := filepath.Join(dir, "c.mp4")
	touch(t, catchAll)

	res := &domain.ExtractResult{
		RequestedDownloads: []domain.RequestedDownload{{Filepath: filepath.Join(dir, "gone.mp4")}},
		Filename:           catchAll,
	}
	got, ok := LocateArtifact(res)
	if !ok || got != catchAll {
		t.Errorf("expected %q, got %q (ok=%v)", catchAll, got, ok)
	}
}

func TestLocateArtifact_NothingResolves(t *testing.T) {
	dir := t.TempDir()
	res := &domain.ExtractResult{
		RequestedDownloads: []domain.RequestedDownload{{Filepath: filepath.Join(dir, "x.mp4")}},
		Filename:           filepath.Join(dir, "y.mp4"),
	}
	if got, ok := LocateArtifact(res); ok {
		t.Errorf("expected no artifact, got %q", got)
	}
	if _, ok := LocateArtifact(&domain.ExtractResult{}); ok {
		t.Error("expected no artifact for empty result")
	}
	if _, ok := LocateArtifact(nil); ok {
		t.Error("expected no artifact for nil result")
	}
}

func TestLocateArtifact_IgnoresDirectories(t *testing.T) {
	dir := t.TempDir()
	res := &domain.ExtractResult{Filename: dir}
	if _, ok := LocateArtifact(res); ok {
		t.Error("a directory is not an artifact")
	}
}

func TestReportedSize(t *testing.T) {
	res := &domain.ExtractResult{FilesizeApprox: 900.7}
	if got := ReportedSize(res); got != 900 {
		t.Errorf("expected 900, got %d", got)
	}
	res.Filesize = 1000
	if got := ReportedSize(res); got != 1000 {
		t.Errorf("expected 1000, got %d", got)
	}
	res.RequestedDownloads = []domain.RequestedDownload{{Filesize: 1200}}
	if got := ReportedSize(res); got != 1200 {
		t.Errorf("expected 1200, got %d", got)
	}
}
