// Package mailhandler exposes the relay's mailboxes over HTTP and lets local
// users send mail through the outbound session.
package mailhandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/OliverSchlueter/goutils/problems"
	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/smtp-mailer/internal/mails"
	"github.com/OliverSchlueter/smtp-mailer/internal/message"
	"github.com/OliverSchlueter/smtp-mailer/internal/smtp"
	"github.com/OliverSchlueter/smtp-mailer/internal/users"
)

// Sender delivers composed messages. *smtp.Session implements it.
type Sender interface {
	Send(m *message.Message, to, subject, from, fromName string) (string, error)
	Render(m *message.Message, to, subject, from, fromName string) ([]byte, error)
	Reset() error
	Disconnect() error
}

type Handler struct {
	mailStore *mails.Store
	userStore *users.Store

	// a Sender holds one connection and must not be shared between requests
	sendMu sync.Mutex
	sender Sender
}

func New(mailStore *mails.Store, userStore *users.Store, sender Sender) *Handler {
	return &Handler{
		mailStore: mailStore,
		userStore: userStore,
		sender:    sender,
	}
}

func (h *Handler) Register(prefix string, mux *http.ServeMux) {
	mux.HandleFunc(prefix+"/mailboxes/{user_id}/", h.handleMailboxes)
	mux.HandleFunc(prefix+"/mailboxes/{user_id}/{mailbox}", h.handleMailbox)
	mux.HandleFunc(prefix+"/mailboxes/{user_id}/{mailbox}/mails", h.handleMails)
	mux.HandleFunc(prefix+"/queue/{queue_id}", h.handleQueue)
}

func (h *Handler) handleMailboxes(w http.ResponseWriter, r *http.Request) {
	userId := r.PathValue("user_id")

	switch r.Method {
	case http.MethodGet:
		h.getMailboxes(w, r, userId)
	default:
		problems.MethodNotAllowed(r.Method, []string{http.MethodGet}).WriteToHTTP(w)
	}
}

func (h *Handler) getMailboxes(w http.ResponseWriter, r *http.Request, userId string) {
	mailboxes, err := h.mailStore.GetMailboxes(userId)
	if err != nil {
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}
	if mailboxes == nil {
		mailboxes = []mails.Mailbox{}
	}

	writeJSON(w, http.StatusOK, mailboxes, "Error marshalling mailboxes")
}

func (h *Handler) handleMailbox(w http.ResponseWriter, r *http.Request) {
	userId := r.PathValue("user_id")
	mailboxName := r.PathValue("mailbox")

	switch r.Method {
	case http.MethodGet:
		h.getMailbox(w, r, userId, mailboxName)
	default:
		problems.MethodNotAllowed(r.Method, []string{http.MethodGet}).WriteToHTTP(w)
	}
}

func (h *Handler) getMailbox(w http.ResponseWriter, r *http.Request, userId string, mailboxName string) {
	mailbox, err := h.mailStore.GetMailboxByName(userId, mailboxName)
	if err != nil {
		if errors.Is(err, mails.ErrMailboxNotFound) {
			problems.ValidationError("Mailbox", "Mailbox does not exist").WriteToHTTP(w)
			return
		}
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}

	writeJSON(w, http.StatusOK, mailbox, "Error marshalling mailbox")
}

func (h *Handler) handleMails(w http.ResponseWriter, r *http.Request) {
	userId := r.PathValue("user_id")
	mailboxName := r.PathValue("mailbox")

	switch r.Method {
	case http.MethodGet:
		h.getMails(w, r, userId, mailboxName)
	case http.MethodPost:
		h.createMail(w, r, userId, mailboxName)
	default:
		problems.MethodNotAllowed(r.Method, []string{http.MethodGet, http.MethodPost}).WriteToHTTP(w)
	}
}

func (h *Handler) getMails(w http.ResponseWriter, r *http.Request, userId string, mailboxName string) {
	mailbox, err := h.mailStore.GetMailboxByName(userId, mailboxName)
	if err != nil {
		if errors.Is(err, mails.ErrMailboxNotFound) {
			problems.ValidationError("Mailbox", "Mailbox does not exist").WriteToHTTP(w)
			return
		}
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}

	m, err := h.mailStore.GetMails(userId, mailbox.Name)
	if err != nil {
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}
	if m == nil {
		m = []mails.Mail{}
	}

	writeJSON(w, http.StatusOK, m, "Error marshalling mails")
}

// createMail sends a message on behalf of the user and files a copy in the
// given mailbox.
func (h *Handler) createMail(w http.ResponseWriter, r *http.Request, userId string, mailboxName string) {
	var req CreateMailReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problems.CouldNotDecodeBody().WriteToHTTP(w)
		return
	}

	if len(req.To) == 0 {
		problems.ValidationError("To", "At least one recipient is required").WriteToHTTP(w)
		return
	}

	user, err := h.userStore.GetByID(userId)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			problems.ValidationError("User", "User does not exist").WriteToHTTP(w)
			return
		}
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}
	if len(user.Emails) == 0 {
		problems.ValidationError("User", "User has no email address").WriteToHTTP(w)
		return
	}
	from := user.Emails[0]

	msg := message.New().SetText(req.Text).SetHTML(req.HTML)
	to := strings.Join(req.To, ",")

	data, err := h.render(msg, to, req.Subject, from, req.FromName)
	if err != nil {
		problems.ValidationError("To", err.Error()).WriteToHTTP(w)
		return
	}

	queueID, err := h.send(msg, to, req.Subject, from, req.FromName)
	if err != nil {
		problems.InternalServerError("Failed to send mail: " + err.Error()).WriteToHTTP(w)
		return
	}

	stored, err := h.mailStore.CreateMail(mails.Mail{
		QueueID: queueID,
		UserID:  user.ID,
		Mailbox: mailboxName,
		From:    from,
		To:      req.To,
		Data:    string(data),
	})
	if err != nil {
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}

	writeJSON(w, http.StatusCreated, CreateMailResp{QueueID: queueID, MailID: stored.ID}, "Error marshalling response")
}

func (h *Handler) render(msg *message.Message, to, subject, from, fromName string) ([]byte, error) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	return h.sender.Render(msg, to, subject, from, fromName)
}

func (h *Handler) send(msg *message.Message, to, subject, from, fromName string) (string, error) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	queueID, err := h.sender.Send(msg, to, subject, from, fromName)
	if err != nil {
		h.recoverSender(err)
		return "", err
	}

	return queueID, nil
}

// recoverSender leaves the sender ready for the next request. A broken
// stream is dropped so the next send connects again.
func (h *Handler) recoverSender(sendErr error) {
	switch smtp.KindOf(sendErr) {
	case smtp.KindConnection, smtp.KindSocketRead:
		h.disconnect()
		return
	}

	if err := h.sender.Reset(); err != nil {
		slog.Warn("Failed to reset session after failed send", sloki.WrapError(err))
		h.disconnect()
	}
}

func (h *Handler) disconnect() {
	if err := h.sender.Disconnect(); err != nil {
		slog.Warn("Failed to disconnect session", sloki.WrapError(err))
	}
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	queueID := r.PathValue("queue_id")

	switch r.Method {
	case http.MethodGet:
		h.getQueued(w, r, queueID)
	default:
		problems.MethodNotAllowed(r.Method, []string{http.MethodGet}).WriteToHTTP(w)
	}
}

func (h *Handler) getQueued(w http.ResponseWriter, r *http.Request, queueID string) {
	m, err := h.mailStore.GetByQueueID(queueID)
	if err != nil {
		if errors.Is(err, mails.ErrMailNotFound) {
			problems.ValidationError("Queue ID", "No mail with this queue id").WriteToHTTP(w)
			return
		}
		problems.InternalServerError(err.Error()).WriteToHTTP(w)
		return
	}

	writeJSON(w, http.StatusOK, m, "Error marshalling mails")
}

func writeJSON(w http.ResponseWriter, status int, v any, failure string) {
	data, err := json.Marshal(v)
	if err != nil {
		problems.InternalServerError(failure).WriteToHTTP(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
