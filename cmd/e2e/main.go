package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/smtp-mailer/internal/mails"
	fake2 "github.com/OliverSchlueter/smtp-mailer/internal/mails/database/fake"
	"github.com/OliverSchlueter/smtp-mailer/internal/mailhandler"
	"github.com/OliverSchlueter/smtp-mailer/internal/message"
	"github.com/OliverSchlueter/smtp-mailer/internal/relay"
	"github.com/OliverSchlueter/smtp-mailer/internal/smtp"
	"github.com/OliverSchlueter/smtp-mailer/internal/users"
	"github.com/OliverSchlueter/smtp-mailer/internal/users/database/fake"
)

const hostname = "mail.example.com"

func main() {
	lokiService := sloki.NewService(sloki.Configuration{
		URL:          "http://localhost:3100/loki/api/v1/push",
		Service:      "smtp-mailer-e2e",
		ConsoleLevel: slog.LevelDebug,
		LokiLevel:    slog.LevelInfo,
		EnableLoki:   false,
	})
	slog.SetDefault(slog.New(lokiService))

	// users
	us := users.NewStore(users.Configuration{
		DB: fake.NewDB(),
	})

	// add test users
	oliver, err := us.Create(users.User{
		Name: "oliver",
		Emails: []string{
			"oliver@" + hostname,
		},
	})
	if err != nil {
		slog.Error("Failed to create user", sloki.WrapError(err))
		os.Exit(1)
	}

	// mails
	ms := mails.NewStore(mails.Configuration{
		DB: fake2.NewDB(),
	})

	// relay
	relayServer := relay.NewServer(relay.Configuration{
		Hostname: hostname,
		Addr:     "127.0.0.1:0",
		Users:    us,
		Mails:    ms,
	})
	if err := relayServer.Listen(); err != nil {
		slog.Error("Failed to start relay", sloki.WrapError(err))
		os.Exit(1)
	}
	go relayServer.Serve()
	defer relayServer.Close()
	slog.Info("Started relay", "addr", relayServer.Addr())

	// client
	host, port, _ := net.SplitHostPort(relayServer.Addr())
	session := smtp.NewSession(smtp.Configuration{
		Host:      host,
		Port:      port,
		LocalName: "client.example.com",
		Tracer:    smtp.SlogTracer{},
	})

	m := message.New().
		SetText("Hello from the e2e run.").
		SetHTML("<p>Hello from the <b>e2e</b> run.</p>").
		AddAttachment([]byte("id,status\n1,ok\n"), "status.csv", "text/csv", "")

	queueID, err := session.Send(m, "Oliver <oliver@"+hostname+">", "E2E check", "e2e@example.com", "E2E")
	if err != nil {
		slog.Error("Failed to send email", sloki.WrapError(err))
		os.Exit(1)
	}

	inbox, err := ms.GetMails(oliver.ID, mails.DefaultMailboxName)
	if err != nil {
		slog.Error("Failed to read inbox", sloki.WrapError(err))
		os.Exit(1)
	}
	for _, stored := range inbox {
		slog.Info("Stored mail", "id", stored.ID, "queue_id", stored.QueueID, "size", stored.Size, "from", stored.From)
	}
	if len(inbox) != 1 || inbox[0].QueueID != queueID {
		slog.Error("Relay did not store the message", "queue_id", queueID, "inbox", len(inbox))
		os.Exit(1)
	}

	// http api, sending over the same session
	mux := http.NewServeMux()
	mailhandler.New(ms, us, session).Register("/api/v1", mux)

	apiListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		slog.Error("Failed to start api", sloki.WrapError(err))
		os.Exit(1)
	}
	go http.Serve(apiListener, mux)
	apiURL := "http://" + apiListener.Addr().String() + "/api/v1"
	slog.Info("Started api", "url", apiURL)

	body, _ := json.Marshal(mailhandler.CreateMailReq{
		To:       []string{"oliver@" + hostname},
		Subject:  "Note to self",
		Text:     "Sent through the api.",
		FromName: "Oliver",
	})
	resp, err := http.Post(apiURL+"/mailboxes/"+oliver.ID+"/"+mails.DefaultMailboxName+"/mails", "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Error("Failed to call api", sloki.WrapError(err))
		os.Exit(1)
	}
	var created mailhandler.CreateMailResp
	err = json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	if err != nil || resp.StatusCode != http.StatusCreated {
		slog.Error("Api send failed", "status", resp.StatusCode, "error", err)
		os.Exit(1)
	}

	resp, err = http.Get(apiURL + "/queue/" + created.QueueID)
	if err != nil {
		slog.Error("Failed to call api", sloki.WrapError(err))
		os.Exit(1)
	}
	var queued []mails.Mail
	err = json.NewDecoder(resp.Body).Decode(&queued)
	resp.Body.Close()
	if err != nil || len(queued) != 2 {
		// one delivery by the relay plus the sender's copy
		slog.Error("Unexpected queue contents", "queue_id", created.QueueID, "count", len(queued), "error", err)
		os.Exit(1)
	}

	if err := session.Disconnect(); err != nil {
		slog.Warn("Failed to disconnect", sloki.WrapError(err))
	}

	slog.Info("E2E run succeeded", "queue_id", queueID, "api_queue_id", created.QueueID)
}
