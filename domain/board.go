package domain

import (
	"crypto/rand"
	"strings"
)

// BoardType names the retrospective template a board was created from.
type BoardType string

const (
	BoardTypeStartStopContinue BoardType = "start-stop-continue"
	BoardTypeMadSadGlad        BoardType = "mad-sad-glad"
	BoardTypeWentWellImprove   BoardType = "went-well-improve"
	BoardTypeFourLs            BoardType = "four-ls"
	BoardTypeCustom            BoardType = "custom"
)

var boardTypes = map[BoardType]struct{}{
	BoardTypeStartStopContinue: {},
	BoardTypeMadSadGlad:        {},
	BoardTypeWentWellImprove:   {},
	BoardTypeFourLs:            {},
	BoardTypeCustom:            {},
}

// Settings holds the admin-mutable board configuration.
type Settings struct {
	VotingEnabled         bool `json:"votingEnabled"`
	VotesPerParticipant   int  `json:"votesPerParticipant"`
	HideCardsFromOthers   bool `json:"hideCardsFromOthers"`
	AddingCardsDisabled   bool `json:"addingCardsDisabled"`
	ShowOnlyHighlighted   bool `json:"showOnlyHighlighted"`
	ActionCreationEnabled bool `json:"actionCreationEnabled"`
}

// DefaultSettings returns the settings every new board starts with.
func DefaultSettings() Settings {
	return Settings{
		VotingEnabled:       false,
		VotesPerParticipant: 3,
		HideCardsFromOthers: true,
	}
}

// SettingsUpdate is a partial settings change. Nil fields are left
// untouched; all listed fields apply together or not at all.
type SettingsUpdate struct {
	VotingEnabled         *bool `json:"votingEnabled,omitempty"`
	VotesPerParticipant   *int  `json:"votesPerParticipant,omitempty"`
	HideCardsFromOthers   *bool `json:"hideCardsFromOthers,omitempty"`
	AddingCardsDisabled   *bool `json:"addingCardsDisabled,omitempty"`
	ShowOnlyHighlighted   *bool `json:"showOnlyHighlighted,omitempty"`
	ActionCreationEnabled *bool `json:"actionCreationEnabled,omitempty"`
}

// Empty reports whether the update names no fields at all.
func (u SettingsUpdate) Empty() bool {
	return u.VotingEnabled == nil && u.VotesPerParticipant == nil &&
		u.HideCardsFromOthers == nil && u.AddingCardsDisabled == nil &&
		u.ShowOnlyHighlighted == nil && u.ActionCreationEnabled == nil
}

// Validate checks the update's ranges before any store interaction.
func (u SettingsUpdate) Validate() error {
	if v := u.VotesPerParticipant; v != nil && (*v < 1 || *v > 20) {
		return ValidationError{Field: "votesPerParticipant", Reason: "must be between 1 and 20"}
	}
	return nil
}

// Board is one retrospective session's aggregate root.
type Board struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         BoardType `json:"type"`
	Columns      []string  `json:"columns"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    int64     `json:"createdAt"`
	IsActive     bool      `json:"isActive"`
	Settings     Settings  `json:"settings"`
	Participants []string  `json:"participants"`
}

// IsAdmin reports whether the given display name is the board's admin.
// The creator is the admin for the board's whole lifetime; there is no
// re-assignment and no cryptographic proof behind it.
func (b *Board) IsAdmin(username string) bool {
	return username != "" && username == b.CreatedBy
}

// HasColumn reports whether the board declares the given column title.
func (b *Board) HasColumn(column string) bool {
	for _, c := range b.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// ValidateNewBoard checks creation arguments before any write.
func ValidateNewBoard(name, username string, boardType BoardType, columns []string) error {
	if strings.TrimSpace(name) == "" {
		return ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if strings.TrimSpace(username) == "" {
		return ValidationError{Field: "username", Reason: "must not be empty"}
	}
	if _, ok := boardTypes[boardType]; !ok {
		return ValidationError{Field: "type", Reason: "unknown board type"}
	}
	if len(columns) == 0 {
		return ValidationError{Field: "columns", Reason: "at least one column required"}
	}
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if strings.TrimSpace(c) == "" {
			return ValidationError{Field: "columns", Reason: "column titles must not be empty"}
		}
		if _, dup := seen[c]; dup {
			return ValidationError{Field: "columns", Reason: "duplicate column title: " + c}
		}
		seen[c] = struct{}{}
	}
	return nil
}

const boardIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// BoardIDLength is the length of generated board identifiers.
const BoardIDLength = 6

// NewBoardID returns a fresh 6-character identifier from [A-Z0-9].
// Uniqueness is probabilistic; creation re-checks for collisions before
// committing.
func NewBoardID() string {
	buf := make([]byte, BoardIDLength)
	if _, err := rand.Read(buf); err != nil {
		panic("domain: reading random bytes: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = boardIDAlphabet[int(b)%len(boardIDAlphabet)]
	}
	return string(buf)
}

// ValidBoardID reports whether the given id has the generated shape.
func ValidBoardID(id string) bool {
	if len(id) != BoardIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !strings.ContainsRune(boardIDAlphabet, rune(id[i])) {
			return false
		}
	}
	return true
}
