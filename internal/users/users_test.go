package users_test

import (
	"errors"
	"testing"

	"github.com/OliverSchlueter/smtp-mailer/internal/users"
	"github.com/OliverSchlueter/smtp-mailer/internal/users/database/fake"
)

func TestStoreCreate(t *testing.T) {
	store := users.NewStore(users.Configuration{DB: fake.NewDB()})

	u, err := store.Create(users.User{Name: "alice", Emails: []string{"alice@example.com"}})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if u.ID == "" {
		t.Error("Expected an ID to be assigned")
	}

	got, err := store.GetByEmail("ALICE@example.com")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("Expected ID %s, got %s", u.ID, got.ID)
	}

	got, err = store.GetByID(u.ID)
	if err != nil || got.Name != "alice" {
		t.Errorf("Expected user alice, got %v (%v)", got, err)
	}

	got, err = store.GetByName("alice")
	if err != nil || got.Name != "alice" {
		t.Errorf("Expected user alice, got %v (%v)", got, err)
	}
}

func TestStoreCreateDuplicate(t *testing.T) {
	store := users.NewStore(users.Configuration{DB: fake.NewDB()})

	if _, err := store.Create(users.User{Name: "alice", Emails: []string{"alice@example.com"}}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	_, err := store.Create(users.User{Name: "alice2", Emails: []string{"alice@example.com"}})
	if !errors.Is(err, users.ErrUserAlreadyExists) {
		t.Errorf("Expected ErrUserAlreadyExists, got %v", err)
	}

	_, err = store.Create(users.User{Name: "alice", Emails: []string{"other@example.com"}})
	if !errors.Is(err, users.ErrUserAlreadyExists) {
		t.Errorf("Expected ErrUserAlreadyExists, got %v", err)
	}
}

func TestStoreCreateWithoutEmails(t *testing.T) {
	store := users.NewStore(users.Configuration{DB: fake.NewDB()})

	_, err := store.Create(users.User{Name: "bob"})
	if !errors.Is(err, users.ErrNoEmails) {
		t.Errorf("Expected ErrNoEmails, got %v", err)
	}
}

func TestStoreExists(t *testing.T) {
	store := users.NewStore(users.Configuration{DB: fake.NewDB()})
	if _, err := store.Create(users.User{Name: "alice", Emails: []string{"alice@example.com", "a@example.org"}}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	for email, expected := range map[string]bool{
		"alice@example.com":   true,
		"a@example.org":       true,
		"nobody@example.com":  false,
		"alice@example.com.x": false,
	} {
		exists, err := store.Exists(email)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if exists != expected {
			t.Errorf("Expected Exists(%s)=%v, got %v", email, expected, exists)
		}
	}

	_, err := store.GetByEmail("nobody@example.com")
	if !errors.Is(err, users.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}
