package storage

import (
	"context"
	"fmt"

	"retro-api/domain"
)

// Snapshot is a full authoritative view of one board: the document, every
// card and every action. Consumers replace their state with it wholesale;
// it is never merged by arrival order.
type Snapshot struct {
	Board   *domain.Board   `json:"board"`
	Notes   []domain.Note   `json:"notes"`
	Actions []domain.Action `json:"actions"`
}

// FetchSnapshot reads the board and both sub-collections. The three reads
// are not one isolated transaction; each collection read is internally
// consistent and the next change event triggers a fresh snapshot anyway.
func (s *Storage) FetchSnapshot(ctx context.Context, boardID string) (*Snapshot, error) {
	board, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if board == nil {
		return nil, fmt.Errorf("storage: snapshot of board %s: %w", boardID, domain.ErrNotFound)
	}
	notes, err := s.FetchNotes(ctx, boardID)
	if err != nil {
		return nil, err
	}
	actions, err := s.FetchActions(ctx, boardID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Board: board, Notes: notes, Actions: actions}, nil
}
