package user

import "time"

const (
	EventUserRegistered      = "UserRegistered"
	EventUserPasswordChanged = "UserPasswordChanged"
	EventUserProfileUpdated  = "UserProfileUpdated"
	EventUserHistoryRecorded = "UserHistoryRecorded"
)

// History lists a user keeps.
const (
	HistoryUploaded = "uploaded"
	HistoryBorrowed = "borrowed"
	HistoryReviewed = "reviewed"
)

// UserRegistered is emitted when a new user is registered
type UserRegistered struct {
	Profile      Profile   `json:"profile"`
	RegisteredAt time.Time `json:"registered_at"`
}

// UserPasswordChanged is emitted when user changes password. It carries no
// credential material.
type UserPasswordChanged struct {
	UserID    string    `json:"user_id"`
	ChangedAt time.Time `json:"changed_at"`
}

// UserProfileUpdated is emitted when user profile is updated
type UserProfileUpdated struct {
	Profile   Profile   `json:"profile"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserHistoryRecorded is emitted when a book is added to one of the user's
// history lists
type UserHistoryRecorded struct {
	Profile    Profile   `json:"profile"`
	List       string    `json:"list"`
	BookID     string    `json:"book_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Snapshot extracts the post-change profile from any event payload but
// UserPasswordChanged.
type Snapshot struct {
	Profile *Profile `json:"profile"`
}
