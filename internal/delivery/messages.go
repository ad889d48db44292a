package delivery

import (
	"fmt"
	"strings"

	"clipbot/internal/domain"
)

// CallbackSendLink is the callback data of the welcome message button.
const CallbackSendLink = "send_link"

const (
	DefaultWelcomeText = "👋 Welcome to the video downloader bot!\n\n" +
		"You can download clips from YouTube, TikTok and other sites.\n" +
		"Just send the link directly or tap the button below 👇"
	SendLinkButtonText = "🔗 Send a video link"
	SendLinkPrompt     = "📥 Send me the video link now:"

	msgAck          = "⏳ Downloading the video, please wait..."
	msgNoFile       = "⚠️ The video was downloaded but the file could not be found. Please try again."
	msgSendFailed   = "❌ Could not send the file. Try a shorter or lower-quality video."
	msgRateLimited  = "🐢 Too many requests. Please wait a minute and try again."
	msgUnauthorized = "⛔ You are not allowed to use this bot."
)

func sendingText(size string) string {
	if size == "" {
		return "📤 Sending the video..."
	}
	return fmt.Sprintf("📤 Sending the video (%s)...", size)
}

func successText(title string) string {
	return fmt.Sprintf("✅ Done: %s", title)
}

// fetchFailedText is the user-facing failure for each source category.
// It never includes the underlying error.
func fetchFailedText(cat domain.SourceCategory) string {
	switch cat {
	case domain.CategoryLongForm:
		return "❌ Could not download this YouTube video. It may be private, age-restricted or unavailable in the server's region."
	case domain.CategoryShortForm:
		return "❌ Could not download this TikTok video. It may be private or removed. Please try again later."
	default:
		return "❌ An error occurred while downloading the video. Check the link and try again."
	}
}

func statsText(c domain.OutcomeCounts) string {
	failed := c[domain.OutcomeFetchFailed] + c[domain.OutcomeNoFile] + c[domain.OutcomeSendFailed]
	var sb strings.Builder
	sb.WriteString("📊 Your downloads\n\n")
	fmt.Fprintf(&sb, "Delivered: %d\n", c[domain.OutcomeDelivered])
	fmt.Fprintf(&sb, "Failed: %d", failed)
	if n := c[domain.OutcomeRateLimited]; n > 0 {
		fmt.Fprintf(&sb, "\nRate limited: %d", n)
	}
	return sb.String()
}
