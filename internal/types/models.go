package types

import "time"

// Status is the externally visible processing state of a conversation.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further pipeline writes may change s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type Conversation struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Status      Status `json:"status"`
	InnerStatus string `json:"inner_status"`

	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	MimeType string `json:"mime_type"`

	Points float64 `json:"points"`

	AvailableDuration string `json:"available_duration,omitempty"`
	Language          string `json:"language,omitempty"`
	Situation         string `json:"situation,omitempty"`
	Place             string `json:"place,omitempty"`
	Time              string `json:"time,omitempty"`
	Location          string `json:"location,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Caption is one transcript line. Timecode is a "start-end" range.
type Caption struct {
	Timecode string `json:"timecode"`
	Speaker  string `json:"speaker"`
	Caption  string `json:"caption"`
}

type Transcript struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Captions  []Caption `json:"captions"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClipCaption is a caption with explicit start and end timecodes.
type ClipCaption struct {
	TimecodeStart string `json:"timecode_start"`
	TimecodeEnd   string `json:"timecode_end"`
	Speaker       string `json:"speaker"`
	Caption       string `json:"caption"`
}

// Candidate is a tentative clip before it is materialised and persisted.
type Candidate struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Comment     string        `json:"comment"`
	Captions    []ClipCaption `json:"captions"`
	Audio       []byte        `json:"-"`
}

type Clip struct {
	ID             string `json:"id"`
	OwnerID        string `json:"owner_id"`
	ConversationID string `json:"conversation_id"`

	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	MimeType string `json:"mime_type"`

	CommentFileName string `json:"comment_file_name"`
	CommentFilePath string `json:"comment_file_path"`
	CommentMimeType string `json:"comment_mime_type"`

	Title       string        `json:"title"`
	Description string        `json:"description"`
	Comment     string        `json:"comment"`
	Captions    []ClipCaption `json:"captions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PointTransaction is an append-only ledger entry. Amount may be negative.
type PointTransaction struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Amount         float64   `json:"amount"`
	ConversationID string    `json:"conversation_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// PointBalance is the running total for one owner.
type PointBalance struct {
	OwnerID   string    `json:"owner_id"`
	Points    float64   `json:"points"`
	UpdatedAt time.Time `json:"updated_at"`
}

type User struct {
	ID              string    `json:"id"`
	Name            string    `json:"name,omitempty"`
	Age             int       `json:"age,omitempty"`
	Nationality     string    `json:"nationality,omitempty"`
	FirstLanguage   string    `json:"first_language,omitempty"`
	SecondLanguages string    `json:"second_languages,omitempty"`
	Interests       string    `json:"interests,omitempty"`
	PreferredTopics string    `json:"preferred_topics,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Profile returns the editable part of u.
func (u *User) Profile() ProfileUpdate {
	return ProfileUpdate{
		Name:            u.Name,
		Age:             u.Age,
		Nationality:     u.Nationality,
		FirstLanguage:   u.FirstLanguage,
		SecondLanguages: u.SecondLanguages,
		Interests:       u.Interests,
		PreferredTopics: u.PreferredTopics,
	}
}

// ProfileUpdate carries the fields the profile stage may rewrite.
type ProfileUpdate struct {
	Name            string `json:"name"`
	Age             int    `json:"age"`
	Nationality     string `json:"nationality"`
	FirstLanguage   string `json:"first_language"`
	SecondLanguages string `json:"second_languages"`
	Interests       string `json:"interests"`
	PreferredTopics string `json:"preferred_topics"`
}

// StatusEvent is emitted whenever a conversation's status or inner status changes.
type StatusEvent struct {
	ConversationID string    `json:"conversation_id"`
	OwnerID        string    `json:"owner_id"`
	Status         Status    `json:"status"`
	InnerStatus    string    `json:"inner_status"`
	At             time.Time `json:"at"`
}
