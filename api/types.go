package api

import (
	"context"

	"retro-api/domain"
	"retro-api/storage"
)

// Storage abstracts the board document store for handlers.
type Storage interface {
	CreateBoard(ctx context.Context, name, username string, boardType domain.BoardType, columns []string) (string, error)
	GetBoard(ctx context.Context, boardID string) (*domain.Board, error)
	AddParticipant(ctx context.Context, boardID, username string) error
	UpdateSettings(ctx context.Context, boardID string, update domain.SettingsUpdate) error
	CloseBoard(ctx context.Context, boardID string) error

	CreateNote(ctx context.Context, boardID, content, column, username string) (*domain.Note, error)
	GetNote(ctx context.Context, boardID, noteID string) (*domain.Note, error)
	FetchNotes(ctx context.Context, boardID string) ([]domain.Note, error)
	DeleteNote(ctx context.Context, boardID, noteID string) error
	ToggleVote(ctx context.Context, boardID, noteID, username string) (bool, error)
	SetHighlight(ctx context.Context, boardID, noteID string, highlighted bool) error
	ResetAllVotes(ctx context.Context, boardID string) error
	ResetAllHighlights(ctx context.Context, boardID string) error

	CreateAction(ctx context.Context, boardID string, params storage.NewActionParams) (*domain.Action, error)
	GetAction(ctx context.Context, boardID, actionID string) (*domain.Action, error)
	FetchActions(ctx context.Context, boardID string) ([]domain.Action, error)
	ApproveAction(ctx context.Context, boardID, actionID, approvedBy string) error
	RejectAction(ctx context.Context, boardID, actionID string) error
	UpdateAction(ctx context.Context, boardID, actionID string, update domain.ActionUpdate) error
	DeleteAction(ctx context.Context, boardID, actionID string) error

	FetchSnapshot(ctx context.Context, boardID string) (*storage.Snapshot, error)
}

// Deduper prevents re-processing of replayed creation requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, boardID, key string) (bool, error)
	// Remove deletes a previously added key, used when the write fails.
	Remove(ctx context.Context, boardID, key string) error
}
