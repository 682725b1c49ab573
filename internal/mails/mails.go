package mails

import (
	"errors"
	"fmt"
	"time"

	"github.com/OliverSchlueter/goutils/idgen"
)

type DB interface {
	GetMailboxes(userID string) ([]Mailbox, error)
	GetMailboxByName(userID string, name string) (*Mailbox, error)
	InsertMailbox(mailbox Mailbox) error

	GetMails(userID string, mailbox string) ([]Mail, error)
	GetMailsByQueueID(queueID string) ([]Mail, error)
	InsertMail(mail Mail) error
}

type Store struct {
	db DB
}

type Configuration struct {
	DB DB
}

func NewStore(cfg Configuration) *Store {
	return &Store{
		db: cfg.DB,
	}
}

func (s *Store) GetMailboxes(userID string) ([]Mailbox, error) {
	return s.db.GetMailboxes(userID)
}

// GetMailboxByName returns the named mailbox. The default mailbox is created
// on first access.
func (s *Store) GetMailboxByName(userID string, name string) (*Mailbox, error) {
	mb, err := s.db.GetMailboxByName(userID, name)
	if err != nil {
		if errors.Is(err, ErrMailboxNotFound) && name == DefaultMailboxName {
			mb = &Mailbox{
				UserID: userID,
				Name:   DefaultMailboxName,
				Flags:  []string{},
			}
			if err := s.db.InsertMailbox(*mb); err != nil {
				if !errors.Is(err, ErrMailboxAlreadyExists) {
					return nil, err
				}
				// created by a concurrent delivery
				return s.db.GetMailboxByName(userID, name)
			}
		} else {
			return nil, err
		}
	}

	return mb, nil
}

func (s *Store) CreateMailbox(mailbox Mailbox) error {
	return s.db.InsertMailbox(mailbox)
}

func (s *Store) GetMails(userID string, mailbox string) ([]Mail, error) {
	return s.db.GetMails(userID, mailbox)
}

// GetByQueueID returns every delivery made for one accepted message.
func (s *Store) GetByQueueID(queueID string) ([]Mail, error) {
	ms, err := s.db.GetMailsByQueueID(queueID)
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, ErrMailNotFound
	}
	return ms, nil
}

// CreateMail stores m in its mailbox, defaulting to the inbox. ID, Date and
// Size are filled in when unset.
func (s *Store) CreateMail(m Mail) (*Mail, error) {
	if m.Mailbox == "" {
		m.Mailbox = DefaultMailboxName
	}

	if _, err := s.GetMailboxByName(m.UserID, m.Mailbox); err != nil {
		return nil, fmt.Errorf("could not open mailbox %s: %w", m.Mailbox, err)
	}

	if m.ID == "" {
		m.ID = idgen.GenerateID(20)
	}
	if m.Date.IsZero() {
		m.Date = time.Now()
	}
	if m.Size == 0 {
		m.Size = int64(len(m.Data))
	}

	if err := s.db.InsertMail(m); err != nil {
		return nil, err
	}

	return &m, nil
}
