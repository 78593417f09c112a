package user

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/example/bookshop/internal/auth"
	"github.com/example/bookshop/internal/infrastructure/store"
	"github.com/example/bookshop/internal/normalize"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Service handles user domain operations
type Service struct {
	docs       store.DocumentStore
	eventStore store.EventStoreInterface
	now        func() time.Time
}

// NewService creates a new user service
func NewService(docs store.DocumentStore, es store.EventStoreInterface) *Service {
	return &Service{
		docs:       docs,
		eventStore: es,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) emit(ctx context.Context, userID, eventType string, data any) {
	if s.eventStore == nil {
		return
	}
	if _, err := s.eventStore.Append(ctx, userID, AggregateType, eventType, data); err != nil {
		log.Printf("[User] failed to append %s for %s: %v", eventType, userID, err)
	}
}

func decode(doc []byte) (*User, error) {
	var u User
	if err := json.Unmarshal(doc, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	u.normalize()
	return &u, nil
}

func (s *Service) findOne(ctx context.Context, field, key string) (*User, error) {
	docs, err := s.docs.Find(ctx, Collection, store.Query{
		Where: []store.Condition{{Field: field, Op: store.OpEq, Value: key}},
		Limit: 1,
	})
	if err != nil {
		log.Printf("[User] lookup by %s failed: %v", field, err)
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrUserNotFound
	}
	return decode(docs[0])
}

// Register stores a new account with a fresh salt. A taken username or
// email is reported before any other problem with the form.
func (s *Service) Register(ctx context.Context, r Registration) (*User, error) {
	u := &User{
		ID:        uuid.New().String(),
		FullName:  strings.TrimSpace(r.FullName),
		Email:     strings.TrimSpace(r.Email),
		Username:  strings.TrimSpace(r.Username),
		CreatedAt: s.now(),
	}
	u.normalize()

	if err := s.checkAvailable(ctx, u.UsernameKey, u.EmailKey); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	salt, hash, err := auth.NewCredentials(r.Password)
	if err != nil {
		return nil, err
	}
	u.Salt = salt
	u.PasswordHash = hash

	doc, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	// The unique indexes settle a race between two registrations that both
	// passed the checks above: the first insert wins.
	if err := s.docs.Insert(ctx, Collection, u.ID, doc); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			if taken := s.checkAvailable(ctx, u.UsernameKey, u.EmailKey); taken != nil {
				return nil, taken
			}
			return nil, ErrUsernameTaken
		}
		log.Printf("[User] failed to store %s: %v", u.Username, err)
		return nil, err
	}

	log.Printf("[User] registered %s (%s)", u.Username, u.ID)
	s.emit(ctx, u.ID, EventUserRegistered, UserRegistered{Profile: u.Profile(), RegisteredAt: u.CreatedAt})
	return u, nil
}

func (s *Service) checkAvailable(ctx context.Context, usernameKey, emailKey string) error {
	if usernameKey != "" {
		if _, err := s.findOne(ctx, "username_key", usernameKey); err == nil {
			return ErrUsernameTaken
		} else if !errors.Is(err, ErrUserNotFound) {
			return err
		}
	}
	if emailKey != "" {
		if _, err := s.findOne(ctx, "email_key", emailKey); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, ErrUserNotFound) {
			return err
		}
	}
	return nil
}

// Authenticate returns the user when password matches. An unknown username
// and a wrong password give the same error.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.findOne(ctx, "username_key", normalize.Fold(username))
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.Salt, password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// ValidateLogin reports whether password is the password of username.
func (s *Service) ValidateLogin(ctx context.Context, username, password string) (bool, error) {
	_, err := s.Authenticate(ctx, username, password)
	if errors.Is(err, ErrInvalidCredentials) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) modify(ctx context.Context, id string, fn func(u *User) error) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidUserID
	}
	var result *User
	err := s.docs.Update(ctx, Collection, id, func(current []byte) ([]byte, error) {
		u, err := decode(current)
		if err != nil {
			return nil, err
		}
		if err := fn(u); err != nil {
			return nil, err
		}
		u.ID = id
		u.normalize()
		result = u
		return json.Marshal(u)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ChangePassword replaces salt and hash after checking the current password.
func (s *Service) ChangePassword(ctx context.Context, username, current, newPassword string) error {
	u, err := s.Authenticate(ctx, username, current)
	if err != nil {
		return err
	}
	salt, hash, err := auth.NewCredentials(newPassword)
	if err != nil {
		return err
	}

	if _, err := s.modify(ctx, u.ID, func(u *User) error {
		u.Salt = salt
		u.PasswordHash = hash
		return nil
	}); err != nil {
		return err
	}

	log.Printf("[User] password changed for %s", u.Username)
	s.emit(ctx, u.ID, EventUserPasswordChanged, UserPasswordChanged{UserID: u.ID, ChangedAt: s.now()})
	return nil
}

// UpdateProfile updates user profile information
func (s *Service) UpdateProfile(ctx context.Context, userID string, p ProfileUpdate) (*User, error) {
	u, err := s.modify(ctx, userID, p.apply)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, userID, EventUserProfileUpdated, UserProfileUpdated{Profile: u.Profile(), UpdatedAt: s.now()})
	return u, nil
}

func (s *Service) record(ctx context.Context, userID, list, bookID string) error {
	u, err := s.modify(ctx, userID, func(u *User) error {
		switch list {
		case HistoryUploaded:
			u.Uploaded = appendOnce(u.Uploaded, bookID)
		case HistoryBorrowed:
			u.Borrowed = appendOnce(u.Borrowed, bookID)
		case HistoryReviewed:
			u.Reviewed = appendOnce(u.Reviewed, bookID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, userID, EventUserHistoryRecorded, UserHistoryRecorded{
		Profile:    u.Profile(),
		List:       list,
		BookID:     bookID,
		RecordedAt: s.now(),
	})
	return nil
}

// RecordUpload adds bookID to the books the user listed.
func (s *Service) RecordUpload(ctx context.Context, userID, bookID string) error {
	return s.record(ctx, userID, HistoryUploaded, bookID)
}

// RecordBorrow adds bookID to the books the user borrowed.
func (s *Service) RecordBorrow(ctx context.Context, userID, bookID string) error {
	return s.record(ctx, userID, HistoryBorrowed, bookID)
}

// RecordReview adds bookID to the books the user reviewed.
func (s *Service) RecordReview(ctx context.Context, userID, bookID string) error {
	return s.record(ctx, userID, HistoryReviewed, bookID)
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidUserID
	}
	doc, err := s.docs.Get(ctx, Collection, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(doc)
}

// GetByUsername looks a user up ignoring case.
func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.findOne(ctx, "username_key", normalize.Fold(username))
}
