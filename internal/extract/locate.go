package extract

import (
	"os"

	"clipbot/internal/domain"
)

// LocateArtifact finds the downloaded file described by res. Each
// requested download is tried by filepath then filename, and _filename is
// the last resort. The first candidate that exists as a regular file wins.
func LocateArtifact(res *domain.ExtractResult) (string, bool) {
	if res == nil {
		return "", false
	}
	for _, cand := range Candidates(res) {
		if info, err := os.Stat(cand); err == nil && info.Mode().IsRegular() {
			return cand, true
		}
	}
	return "", false
}

// Candidates lists the paths LocateArtifact checks, in order.
func Candidates(res *domain.ExtractResult) []string {
	var out []string
	for _, rd := range res.RequestedDownloads {
		if rd.Filepath != "" {
			out = append(out, rd.Filepath)
		}
		if rd.Filename != "" {
			out = append(out, rd.Filename)
		}
	}
	if res.Filename != "" {
		out = append(out, res.Filename)
	}
	return out
}

// ReportedSize is the best size estimate from the info dict, used when the
// file itself cannot be stat'ed.
func ReportedSize(res *domain.ExtractResult) int64 {
	for _, rd := range res.RequestedDownloads {
		if rd.Filesize > 0 {
			return rd.Filesize
		}
	}
	if res.Filesize > 0 {
		return res.Filesize
	}
	return int64(res.FilesizeApprox)
}
