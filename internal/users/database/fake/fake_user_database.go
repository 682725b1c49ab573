package fake

import (
	"sync"

	"github.com/OliverSchlueter/smtp-mailer/internal/users"
)

type DB struct {
	Items map[string]users.User
	mu    sync.Mutex
}

func NewDB() *DB {
	return &DB{
		Items: make(map[string]users.User),
		mu:    sync.Mutex{},
	}
}

func (db *DB) GetByID(id string) (*users.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, user := range db.Items {
		if user.ID == id {
			return &user, nil
		}
	}

	return nil, users.ErrUserNotFound
}

func (db *DB) GetByName(name string) (*users.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	user, exists := db.Items[name]
	if !exists {
		return nil, users.ErrUserNotFound
	}
	return &user, nil
}

func (db *DB) GetByEmail(email string) (*users.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, user := range db.Items {
		if user.HasEmail(email) {
			return &user, nil
		}
	}

	return nil, users.ErrUserNotFound
}

func (db *DB) Insert(user users.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.Items[user.Name]; exists {
		return users.ErrUserAlreadyExists
	}

	for _, existing := range db.Items {
		for _, email := range user.Emails {
			if existing.HasEmail(email) {
				return users.ErrUserAlreadyExists
			}
		}
	}

	db.Items[user.Name] = user
	return nil
}
