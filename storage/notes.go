package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"retro-api/domain"
)

const (
	fieldContent     = "content"
	fieldColumn      = "column"
	fieldVoteCount   = "voteCount"
	fieldHighlighted = "highlighted"
)

// CreateNote writes a new card under the board and returns it. Column
// membership and board-level gating are validated by the caller, which
// holds the board document already.
func (s *Storage) CreateNote(ctx context.Context, boardID, content, column, username string) (*domain.Note, error) {
	if strings.TrimSpace(content) == "" {
		return nil, domain.ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if strings.TrimSpace(username) == "" {
		return nil, domain.ValidationError{Field: "username", Reason: "must not be empty"}
	}
	note := &domain.Note{
		ID:        uuid.NewString(),
		Content:   content,
		Column:    column,
		CreatedBy: username,
		CreatedAt: nextTimestamp(),
		Voters:    []string{},
	}
	_, err := s.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, noteKey(boardID, note.ID),
			fieldContent, note.Content,
			fieldColumn, note.Column,
			fieldCreatedBy, note.CreatedBy,
			fieldCreatedAt, note.CreatedAt,
			fieldVoteCount, 0,
			fieldHighlighted, encodeBool(false),
		)
		pipe.SAdd(ctx, notesIndexKey(boardID), note.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create note: %w", err)
	}
	s.publish(ChangeEvent{BoardID: boardID, EntityType: EntityNote, EntityID: note.ID, Type: "note-created", Timestamp: note.CreatedAt})
	return note, nil
}

// GetNote performs a point read of a single card.
func (s *Storage) GetNote(ctx context.Context, boardID, noteID string) (*domain.Note, error) {
	fields, err := s.rc.HGetAll(ctx, noteKey(boardID, noteID)).Result()
	if err != nil {
		return nil, fmt.Errorf("storage: fetch note %s: %w", noteID, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("storage: fetch note %s: %w", noteID, domain.ErrNotFound)
	}
	voters, err := s.rc.SMembers(ctx, votersKey(boardID, noteID)).Result()
	if err != nil {
		return nil, fmt.Errorf("storage: fetch voters for note %s: %w", noteID, err)
	}
	return decodeNote(noteID, fields, voters)
}

func decodeNote(noteID string, fields map[string]string, voters []string) (*domain.Note, error) {
	createdAt, err := decodeInt64(fieldCreatedAt, fields[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("storage: decode note %s: %w", noteID, err)
	}
	voteCount, err := decodeInt(fieldVoteCount, fields[fieldVoteCount])
	if err != nil {
		return nil, fmt.Errorf("storage: decode note %s: %w", noteID, err)
	}
	sort.Strings(voters)
	return &domain.Note{
		ID:          noteID,
		Content:     fields[fieldContent],
		Column:      fields[fieldColumn],
		CreatedBy:   fields[fieldCreatedBy],
		CreatedAt:   createdAt,
		VoteCount:   voteCount,
		Voters:      voters,
		Highlighted: decodeBool(fields[fieldHighlighted]),
	}, nil
}

// FetchNotes returns every card on the board ordered by creation time.
func (s *Storage) FetchNotes(ctx context.Context, boardID string) ([]domain.Note, error) {
	ids, err := s.rc.SMembers(ctx, notesIndexKey(boardID)).Result()
	if err != nil {
		return nil, fmt.Errorf("storage: list notes for board %s: %w", boardID, err)
	}
	notes := make([]domain.Note, 0, len(ids))
	if len(ids) == 0 {
		return notes, nil
	}
	hashCmds := make([]*redis.MapStringStringCmd, len(ids))
	voterCmds := make([]*redis.StringSliceCmd, len(ids))
	_, err = s.rc.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			hashCmds[i] = pipe.HGetAll(ctx, noteKey(boardID, id))
			voterCmds[i] = pipe.SMembers(ctx, votersKey(boardID, id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: fetch notes for board %s: %w", boardID, err)
	}
	for i, id := range ids {
		fields, err := hashCmds[i].Result()
		if err != nil || len(fields) == 0 {
			// Deleted between index read and fetch.
			continue
		}
		voters, err := voterCmds[i].Result()
		if err != nil {
			voters = nil
		}
		note, err := decodeNote(id, fields, voters)
		if err != nil {
			return nil, err
		}
		notes = append(notes, *note)
	}
	sort.Slice(notes, func(i, j int) bool {
		if notes[i].CreatedAt != notes[j].CreatedAt {
			return notes[i].CreatedAt < notes[j].CreatedAt
		}
		return notes[i].ID < notes[j].ID
	})
	return notes, nil
}

// DeleteNote removes the card, its voters and its index entry in one
// commit. Author/admin permission is enforced by the caller.
func (s *Storage) DeleteNote(ctx context.Context, boardID, noteID string) error {
	err := s.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, noteKey(boardID, noteID)).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("storage: delete note %s: %w", noteID, domain.ErrNotFound)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, notesIndexKey(boardID), noteID)
			pipe.Del(ctx, noteKey(boardID, noteID))
			pipe.Del(ctx, votersKey(boardID, noteID))
			return nil
		})
		return err
	}, noteKey(boardID, noteID))
	if err != nil {
		return err
	}
	s.publish(ChangeEvent{BoardID: boardID, EntityType: EntityNote, EntityID: noteID, Type: "note-deleted", Timestamp: nextTimestamp()})
	return nil
}

// ToggleVote flips the user's vote on the note. The voter-set mutation
// and the counter adjustment commit in one MULTI/EXEC under WATCH, so
// voteCount == |voters| holds in every reachable state; two concurrent
// toggles conflict on the watched key and one of them re-reads before
// retrying. Vote-budget enforcement stays with the caller.
func (s *Storage) ToggleVote(ctx context.Context, boardID, noteID, username string) (voted bool, err error) {
	if username == "" {
		return false, domain.ValidationError{Field: "username", Reason: "must not be empty"}
	}
	nk := noteKey(boardID, noteID)
	vk := votersKey(boardID, noteID)
	err = s.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, nk).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("storage: toggle vote on note %s: %w", noteID, domain.ErrNotFound)
		}
		isVoter, err := tx.SIsMember(ctx, vk, username).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if isVoter {
				pipe.SRem(ctx, vk, username)
				pipe.HIncrBy(ctx, nk, fieldVoteCount, -1)
			} else {
				pipe.SAdd(ctx, vk, username)
				pipe.HIncrBy(ctx, nk, fieldVoteCount, 1)
			}
			return nil
		})
		if err != nil {
			return err
		}
		voted = !isVoter
		return nil
	}, vk, nk)
	if err != nil {
		return false, err
	}
	s.publish(ChangeEvent{BoardID: boardID, EntityType: EntityNote, EntityID: noteID, Type: "vote-toggled", Timestamp: nextTimestamp()})
	return voted, nil
}

// SetHighlight marks or unmarks the card for action conversion. Admin
// permission is enforced by the caller.
func (s *Storage) SetHighlight(ctx context.Context, boardID, noteID string, highlighted bool) error {
	err := s.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, noteKey(boardID, noteID)).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("storage: highlight note %s: %w", noteID, domain.ErrNotFound)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, noteKey(boardID, noteID), fieldHighlighted, encodeBool(highlighted))
			return nil
		})
		return err
	}, noteKey(boardID, noteID))
	if err != nil {
		return err
	}
	s.publish(ChangeEvent{BoardID: boardID, EntityType: EntityNote, EntityID: noteID, Type: "highlight-changed", Timestamp: nextTimestamp()})
	return nil
}

// ResetAllVotes clears voters and counters on every card of the board in
// a single all-or-nothing commit. A concurrent note creation or deletion
// moves the index and aborts the batch, which then retries against the
// fresh member list.
func (s *Storage) ResetAllVotes(ctx context.Context, boardID string) error {
	ik := notesIndexKey(boardID)
	err := s.watch(ctx, func(tx *redis.Tx) error {
		ids, err := tx.SMembers(ctx, ik).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range ids {
				pipe.HSet(ctx, noteKey(boardID, id), fieldVoteCount, 0)
				pipe.Del(ctx, votersKey(boardID, id))
			}
			return nil
		})
		return err
	}, ik)
	if err != nil {
		return err
	}
	s.publish(ChangeEvent{BoardID: boardID, EntityType: EntityNote, Type: "votes-reset", Timestamp: nextTimestamp()})
	return nil
}

// ResetAllHighlights clears the highlight marker on every card of the
// board with the same all-or-nothing contract as ResetAllVotes.
func (s *Storage) ResetAllHighlights(ctx context.Context, boardID string) error {
	ik := notesIndexKey(boardID)
	err := s.watch(ctx, func(tx *redis.Tx) error {
		ids, err := tx.SMembers(ctx, ik).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range ids {
				pipe.HSet(ctx, noteKey(boardID, id), fieldHighlighted, encodeBool(false))
			}
			return nil
		})
		return err
	}, ik)
	if err != nil {
		return err
	}
	s.publish(ChangeEvent{BoardID: boardID, EntityType: EntityNote, Type: "highlights-reset", Timestamp: nextTimestamp()})
	return nil
}
