package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"clipbot/internal/delivery"
	"clipbot/internal/domain"
	"clipbot/internal/media"
)

// Console chat identity. The console has one user in one chat.
const (
	ConsoleChatID   int64 = 1
	ConsoleSenderID int64 = 1
)

// Console is a terminal chat: it reads lines from In as messages and
// prints replies to Out. Documents are copied to OutDir.
type Console struct {
	bus    domain.MessageBus
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	outDir string

	mu        sync.Mutex // guards out, nextID and the spinner
	nextID    int
	spinning  bool
	spinStop  chan struct{}
	spinFrame int
}

var (
	_ domain.Channel   = (*Console)(nil)
	_ domain.Messenger = (*Console)(nil)
)

type ConsoleConfig struct {
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
	OutDir string // default "."
}

func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "."
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Console{
		logger: cfg.Logger,
		in:     cfg.In,
		out:    cfg.Out,
		outDir: cfg.OutDir,
	}
}

func (c *Console) Name() string { return "cli" }

// Start reads lines until EOF, /quit or ctx cancellation.
func (c *Console) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus

	c.print("clipbot console. Paste a video link and press Enter. Type /quit to exit.\nYou> ")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.print("You> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}

		msg := ParseConsoleLine(line)
		if media.IsFetchable(line) {
			c.startSpinner()
		}
		if err := c.bus.Publish(msg); err != nil {
			c.stopSpinner()
			c.logger.Error("enqueue failed", "err", err)
		}
	}
}

// Stop is a no-op; the console exits when Start returns.
func (c *Console) Stop() error { return nil }

// ParseConsoleLine builds the message for one typed line. "/cmd args" is
// a command and "!cb data" simulates pressing an inline button.
func ParseConsoleLine(line string) domain.InboundMessage {
	msg := domain.InboundMessage{
		Channel:   "cli",
		ChatID:    ConsoleChatID,
		SenderID:  ConsoleSenderID,
		Username:  "console",
		Text:      line,
		Timestamp: time.Now(),
	}
	switch {
	case strings.HasPrefix(line, "/"):
		name, args, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
		msg.Command = strings.ToLower(name)
		msg.CommandArgs = strings.TrimSpace(args)
	case strings.HasPrefix(line, "!cb "):
		msg.CallbackID = "console"
		msg.CallbackData = strings.TrimSpace(strings.TrimPrefix(line, "!cb "))
		msg.Text = ""
	}
	return msg
}

// --- domain.Messenger ---

func (c *Console) SendText(_ context.Context, _ int64, text string) (int, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()
	c.reply(text)
	return id, nil
}

func (c *Console) EditText(_ context.Context, _ int64, messageID int, text string) error {
	c.reply(fmt.Sprintf("[#%d] %s", messageID, text))
	return nil
}

// SendDocument copies the file into the output directory.
func (c *Console) SendDocument(_ context.Context, _ int64, doc domain.Document) error {
	dst := filepath.Join(c.outDir, doc.Filename)
	if err := copyFile(doc.Path, dst); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	c.reply("📎 saved " + dst)
	return nil
}

func (c *Console) SendWelcome(ctx context.Context, chatID int64, text string) error {
	_, err := c.SendText(ctx, chatID, fmt.Sprintf("%s\n[%s] type: !cb %s", text, delivery.SendLinkButtonText, delivery.CallbackSendLink))
	return err
}

func (c *Console) AnswerCallback(ctx context.Context, _ string, chatID int64, messageID int, text string) error {
	if text == "" {
		return nil
	}
	return c.EditText(ctx, chatID, messageID, text)
}

func (c *Console) reply(text string) {
	c.stopSpinner()
	c.print("\r\033[K--- clipbot ---\n" + text + "\n----------------\nYou> ")
}

func (c *Console) print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprint(c.out, s)
}

func (c *Console) startSpinner() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spinning {
		return
	}
	c.spinning = true
	c.spinStop = make(chan struct{})
	stop := c.spinStop
	go func() {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.spinning {
					fmt.Fprintf(c.out, "\r%s Working...", frames[c.spinFrame%len(frames)])
					c.spinFrame++
				}
				c.mu.Unlock()
			}
		}
	}()
}

func (c *Console) stopSpinner() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.spinning {
		return
	}
	c.spinning = false
	close(c.spinStop)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
