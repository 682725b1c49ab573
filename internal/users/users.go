package users

import (
	"errors"

	"github.com/google/uuid"
)

type DB interface {
	GetByID(id string) (*User, error)
	GetByName(name string) (*User, error)
	GetByEmail(email string) (*User, error)
	Insert(user User) error
}

type Store struct {
	db DB
}

type Configuration struct {
	DB DB
}

func NewStore(config Configuration) *Store {
	return &Store{
		db: config.DB,
	}
}

func (s *Store) GetByID(id string) (*User, error) {
	return s.db.GetByID(id)
}

func (s *Store) GetByName(name string) (*User, error) {
	return s.db.GetByName(name)
}

// GetByEmail returns the user owning the mailbox address email.
func (s *Store) GetByEmail(email string) (*User, error) {
	return s.db.GetByEmail(email)
}

// Exists reports whether any user owns email.
func (s *Store) Exists(email string) (bool, error) {
	_, err := s.db.GetByEmail(email)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	return false, err
}

// Create assigns a fresh ID and inserts u.
func (s *Store) Create(u User) (*User, error) {
	if len(u.Emails) == 0 {
		return nil, ErrNoEmails
	}

	u.ID = GenerateID()
	if err := s.db.Insert(u); err != nil {
		return nil, err
	}

	return &u, nil
}

func GenerateID() string {
	return uuid.New().String()
}
