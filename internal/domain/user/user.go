package user

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/bookshop/internal/auth"
	"github.com/example/bookshop/internal/domain"
	"github.com/example/bookshop/internal/normalize"
)

const AggregateType = "User"

// Collection is the document collection holding users.
const Collection = "users"

const maxEmailLength = 254

var (
	ErrUserNotFound       = fmt.Errorf("%w: user not found", domain.ErrNotFound)
	ErrUsernameTaken      = fmt.Errorf("%w: username already registered", domain.ErrConflict)
	ErrEmailTaken         = fmt.Errorf("%w: email already registered", domain.ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", domain.ErrInvalidArgument)
	ErrInvalidUserID      = fmt.Errorf("%w: malformed user id", domain.ErrInvalidArgument)
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
	emailPattern    = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?(?:\.[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?)*\.[A-Za-z]{2,}$`)
)

func isValidEmail(email string) bool {
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

func isValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// User is the stored account. Salt and hash never leave the service.
type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	EmailKey     string    `json:"email_key"`
	Username     string    `json:"username"`
	UsernameKey  string    `json:"username_key"`
	Salt         string    `json:"salt"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
	Location     string    `json:"location,omitempty"`
	ImagePath    string    `json:"image_path,omitempty"`
	Rating       float64   `json:"rating"`
	Uploaded     []string  `json:"uploaded_books"`
	Borrowed     []string  `json:"borrowed_books"`
	Reviewed     []string  `json:"reviewed_books"`
}

// Profile is the public view of a user.
type Profile struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	Location  string    `json:"location,omitempty"`
	ImagePath string    `json:"image_path,omitempty"`
	Rating    float64   `json:"rating"`
	Uploaded  []string  `json:"uploaded_books"`
	Borrowed  []string  `json:"borrowed_books"`
	Reviewed  []string  `json:"reviewed_books"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		FullName:  u.FullName,
		Email:     u.Email,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
		Location:  u.Location,
		ImagePath: u.ImagePath,
		Rating:    u.Rating,
		Uploaded:  append([]string{}, u.Uploaded...),
		Borrowed:  append([]string{}, u.Borrowed...),
		Reviewed:  append([]string{}, u.Reviewed...),
	}
}

func (u *User) normalize() {
	if u.Uploaded == nil {
		u.Uploaded = []string{}
	}
	if u.Borrowed == nil {
		u.Borrowed = []string{}
	}
	if u.Reviewed == nil {
		u.Reviewed = []string{}
	}
	u.UsernameKey = normalize.Fold(u.Username)
	u.EmailKey = normalize.Fold(u.Email)
}

// Registration is the sign up form.
type Registration struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate reports every invalid field at once.
func (r Registration) Validate() error {
	verr := domain.NewValidationError()
	if strings.TrimSpace(r.FullName) == "" {
		verr.Add("full_name", "full name is required")
	}
	if !isValidEmail(strings.TrimSpace(r.Email)) {
		verr.Add("email", "email address is not valid")
	}
	if !isValidUsername(strings.TrimSpace(r.Username)) {
		verr.Add("username", "username must be 3 to 20 letters, digits or underscores")
	}
	if utf8.RuneCountInString(r.Password) < auth.MinPasswordLength {
		verr.Add("password", auth.ErrPasswordTooShort.Error())
	}
	return verr.OrNil()
}

// ProfileUpdate holds the editable profile fields. Nil fields are kept.
type ProfileUpdate struct {
	FullName  *string  `json:"full_name,omitempty"`
	Location  *string  `json:"location,omitempty"`
	ImagePath *string  `json:"image_path,omitempty"`
	Rating    *float64 `json:"rating,omitempty"`
}

func (p ProfileUpdate) apply(u *User) error {
	verr := domain.NewValidationError()
	if p.FullName != nil {
		if strings.TrimSpace(*p.FullName) == "" {
			verr.Add("full_name", "full name is required")
		} else {
			u.FullName = strings.TrimSpace(*p.FullName)
		}
	}
	if p.Location != nil {
		u.Location = strings.TrimSpace(*p.Location)
	}
	if p.ImagePath != nil {
		u.ImagePath = strings.TrimSpace(*p.ImagePath)
	}
	if p.Rating != nil {
		if *p.Rating < 0 || *p.Rating > 5 {
			verr.Add("rating", "rating must be between 0 and 5")
		} else {
			u.Rating = *p.Rating
		}
	}
	return verr.OrNil()
}

func appendOnce(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}
