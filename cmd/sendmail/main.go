// Command sendmail composes a message from flags and delivers it to the
// configured relay.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/smtp-mailer/internal/config"
	"github.com/OliverSchlueter/smtp-mailer/internal/message"
	"github.com/OliverSchlueter/smtp-mailer/internal/smtp"
	"github.com/docker/go-units"
)

var errAttachmentTooLarge = errors.New("attachment exceeds max_attachment_size")

func main() {
	var attachments []string

	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	to := flag.String("to", "", "comma separated recipients")
	subject := flag.String("subject", "", "message subject")
	from := flag.String("from", "", "sender address (defaults to sender.from)")
	fromName := flag.String("from-name", "", "sender display name (defaults to sender.from_name)")
	text := flag.String("text", "", "plain text body")
	html := flag.String("html", "", "HTML body")
	debug := flag.Bool("debug", false, "log the SMTP conversation")
	flag.Func("attach", "file to attach (repeatable)", func(path string) error {
		attachments = append(attachments, path)
		return nil
	})
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", sloki.WrapError(err))
		os.Exit(1)
	}

	level := cfg.LogLevel()
	if *debug {
		level = slog.LevelDebug
	}
	lokiService := sloki.NewService(sloki.Configuration{
		URL:          cfg.Logging.LokiURL,
		Service:      "sendmail",
		ConsoleLevel: level,
		LokiLevel:    slog.LevelInfo,
		EnableLoki:   cfg.Logging.LokiURL != "",
	})
	slog.SetDefault(slog.New(lokiService))

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", sloki.WrapError(err))
		os.Exit(1)
	}

	m := message.New().SetText(*text).SetHTML(*html)
	if err := attachFiles(m, attachments, cfg); err != nil {
		slog.Error("Failed to attach file", sloki.WrapError(err))
		os.Exit(1)
	}

	sc, err := cfg.SMTP()
	if err != nil {
		slog.Error("Failed to build SMTP configuration", sloki.WrapError(err))
		os.Exit(1)
	}
	if *debug {
		sc.Tracer = smtp.SlogTracer{}
	}

	session := smtp.NewSession(sc)
	queueID, sendErr := session.Send(m, *to, *subject, *from, *fromName)
	if err := session.Disconnect(); err != nil {
		slog.Warn("Failed to close connection", sloki.WrapError(err))
	}
	if sendErr != nil {
		slog.Error("Failed to send email", slog.String("kind", smtp.KindOf(sendErr).String()), sloki.WrapError(sendErr))
		os.Exit(1)
	}

	fmt.Println(queueID)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func attachFiles(m *message.Message, paths []string, cfg *config.Config) error {
	limit, err := cfg.MaxAttachmentBytes()
	if err != nil {
		return err
	}

	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("could not read %s: %w", path, err)
		}
		if int64(len(content)) > limit {
			return fmt.Errorf("%s is %s: %w", path, units.BytesSize(float64(len(content))), errAttachmentTooLarge)
		}

		name := filepath.Base(path)
		mimeType := mime.TypeByExtension(filepath.Ext(name))
		if i := strings.IndexByte(mimeType, ';'); i >= 0 {
			mimeType = mimeType[:i]
		}

		m.AddAttachment(content, name, mimeType, "")
	}

	return nil
}
