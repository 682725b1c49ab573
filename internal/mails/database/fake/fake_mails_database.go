package fake

import (
	"sync"

	"github.com/OliverSchlueter/smtp-mailer/internal/mails"
)

type DB struct {
	Mailboxes []mails.Mailbox
	Mails     []mails.Mail
	mu        sync.Mutex
}

func NewDB() *DB {
	return &DB{
		Mailboxes: []mails.Mailbox{},
		Mails:     []mails.Mail{},
		mu:        sync.Mutex{},
	}
}

func (db *DB) GetMailboxes(userID string) ([]mails.Mailbox, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var userMailboxes []mails.Mailbox
	for _, mailbox := range db.Mailboxes {
		if mailbox.UserID == userID {
			userMailboxes = append(userMailboxes, mailbox)
		}
	}
	return userMailboxes, nil
}

func (db *DB) GetMailboxByName(userID string, name string) (*mails.Mailbox, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.mailboxByName(userID, name)
}

func (db *DB) InsertMailbox(mailbox mails.Mailbox) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.mailboxByName(mailbox.UserID, mailbox.Name); err == nil {
		return mails.ErrMailboxAlreadyExists
	}

	db.Mailboxes = append(db.Mailboxes, mailbox)
	return nil
}

func (db *DB) GetMails(userID string, mailbox string) ([]mails.Mail, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.mailboxByName(userID, mailbox); err != nil {
		return nil, err
	}

	var userMails []mails.Mail
	for _, mail := range db.Mails {
		if mail.UserID == userID && mail.Mailbox == mailbox {
			userMails = append(userMails, mail)
		}
	}
	return userMails, nil
}

func (db *DB) GetMailsByQueueID(queueID string) ([]mails.Mail, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var queued []mails.Mail
	for _, mail := range db.Mails {
		if mail.QueueID == queueID {
			queued = append(queued, mail)
		}
	}
	return queued, nil
}

func (db *DB) InsertMail(mail mails.Mail) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.mailboxByName(mail.UserID, mail.Mailbox); err != nil {
		return err
	}

	for _, existing := range db.Mails {
		if existing.ID == mail.ID {
			return mails.ErrMailAlreadyExists
		}
	}

	db.Mails = append(db.Mails, mail)
	return nil
}

// mailboxByName expects db.mu to be held.
func (db *DB) mailboxByName(userID string, name string) (*mails.Mailbox, error) {
	for _, mailbox := range db.Mailboxes {
		if mailbox.UserID == userID && mailbox.Name == name {
			return &mailbox, nil
		}
	}
	return nil, mails.ErrMailboxNotFound
}
