package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"retro-api/domain"
)

const (
	fieldName                  = "name"
	fieldType                  = "type"
	fieldColumns               = "columns"
	fieldCreatedBy             = "createdBy"
	fieldCreatedAt             = "createdAt"
	fieldIsActive              = "isActive"
	fieldVotingEnabled         = "votingEnabled"
	fieldVotesPerParticipant   = "votesPerParticipant"
	fieldHideCardsFromOthers   = "hideCardsFromOthers"
	fieldAddingCardsDisabled   = "addingCardsDisabled"
	fieldShowOnlyHighlighted   = "showOnlyHighlighted"
	fieldActionCreationEnabled = "actionCreationEnabled"
)

const createIDAttempts = 5

// CreateBoard writes a new board with default settings and the creator as
// the only participant, returning the generated identifier. Generated ids
// are re-rolled on the rare collision before committing.
func (s *Storage) CreateBoard(ctx context.Context, name, username string, boardType domain.BoardType, columns []string) (string, error) {
	if err := domain.ValidateNewBoard(name, username, boardType, columns); err != nil {
		return "", err
	}
	columnsJSON, err := sonic.Marshal(columns)
	if err != nil {
		return "", fmt.Errorf("storage: marshal columns: %w", err)
	}

	var boardID string
	for attempt := 0; attempt < createIDAttempts; attempt++ {
		id := domain.NewBoardID()
		exists, err := s.rc.Exists(ctx, boardKey(id)).Result()
		if err != nil {
			return "", fmt.Errorf("storage: check board id: %w", err)
		}
		if exists == 0 {
			boardID = id
			break
		}
	}
	if boardID == "" {
		return "", fmt.Errorf("storage: could not allocate a free board id after %d attempts", createIDAttempts)
	}

	defaults := domain.DefaultSettings()
	createdAt := nextTimestamp()
	_, err = s.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, boardKey(boardID),
			fieldName, name,
			fieldType, string(boardType),
			fieldColumns, string(columnsJSON),
			fieldCreatedBy, username,
			fieldCreatedAt, createdAt,
			fieldIsActive, encodeBool(true),
			fieldVotingEnabled, encodeBool(defaults.VotingEnabled),
			fieldVotesPerParticipant, defaults.VotesPerParticipant,
			fieldHideCardsFromOthers, encodeBool(defaults.HideCardsFromOthers),
			fieldAddingCardsDisabled, encodeBool(defaults.AddingCardsDisabled),
			fieldShowOnlyHighlighted, encodeBool(defaults.ShowOnlyHighlighted),
			fieldActionCreationEnabled, encodeBool(defaults.ActionCreationEnabled),
		)
		pipe.SAdd(ctx, participantsKey(boardID), username)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("storage: create board: %w", err)
	}
	s.publish(ChangeEvent{BoardID: boardID, EntityType: EntityBoard, EntityID: boardID, Type: "board-created", Timestamp: createdAt})
	return boardID, nil
}

// GetBoard performs a point read. An unknown board returns (nil, nil) so
// callers can tell absence from a transport failure.
func (s *Storage) GetBoard(ctx context.Context, boardID string) (*domain.Board, error) {
	fields, err := s.rc.HGetAll(ctx, boardKey(boardID)).Result()
	if err != nil {
		return nil, fmt.Errorf("storage: fetch board %s: %w", boardID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	participants, err := s.rc.SMembers(ctx, participantsKey(boardID)).Result()
	if err != nil {
		return nil, fmt.Errorf("storage: fetch participants %s: %w", boardID, err)
	}
	return decodeBoard(boardID, fields, participants)
}

func decodeBoard(boardID string, fields map[string]string, participants []string) (*domain.Board, error) {
	var columns []string
	if raw := fields[fieldColumns]; raw != "" {
		if err := sonic.Unmarshal([]byte(raw), &columns); err != nil {
			return nil, fmt.Errorf("storage: decode columns for board %s: %w", boardID, err)
		}
	}
	createdAt, err := decodeInt64(fieldCreatedAt, fields[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("storage: decode board %s: %w", boardID, err)
	}
	votesPerParticipant, err := decodeInt(fieldVotesPerParticipant, fields[fieldVotesPerParticipant])
	if err != nil {
		return nil, fmt.Errorf("storage: decode board %s: %w", boardID, err)
	}
	sort.Strings(participants)
	return &domain.Board{
		ID:        boardID,
		Name:      fields[fieldName],
		Type:      domain.BoardType(fields[fieldType]),
		Columns:   columns,
		CreatedBy: fields[fieldCreatedBy],
		CreatedAt: createdAt,
		IsActive:  decodeBool(fields[fieldIsActive]),
		Settings: domain.Settings{
			VotingEnabled:         decodeBool(fields[fieldVotingEnabled]),
			VotesPerParticipant:   votesPerParticipant,
			HideCardsFromOthers:   decodeBool(fields[fieldHideCardsFromOthers]),
			AddingCardsDisabled:   decodeBool(fields[fieldAddingCardsDisabled]),
			ShowOnlyHighlighted:   decodeBool(fields[fieldShowOnlyHighlighted]),
			ActionCreationEnabled: decodeBool(fields[fieldActionCreationEnabled]),
		},
		Participants: participants,
	}, nil
}

// AddParticipant records the user on the board roster. Joining twice is a
// no-op: the check below can race with a concurrent join of the same
// name, but the set add is idempotent so the worst case is a wasted
// round trip, never a duplicate entry.
func (s *Storage) AddParticipant(ctx context.Context, boardID, username string) error {
	if username == "" {
		return domain.ValidationError{Field: "username", Reason: "must not be empty"}
	}
	board, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if board == nil {
		return fmt.Errorf("storage: join board %s: %w", boardID, domain.ErrNotFound)
	}
	if !board.IsActive {
		return domain.ErrBoardClosed
	}
	added, err := s.rc.SAdd(ctx, participantsKey(boardID), username).Result()
	if err != nil {
		return fmt.Errorf("storage: join board %s: %w", boardID, err)
	}
	if added > 0 {
		s.publish(ChangeEvent{BoardID: boardID, EntityType: EntityBoard, EntityID: boardID, Type: "participant-joined", Timestamp: nextTimestamp()})
	}
	return nil
}

// UpdateSettings applies a partial settings change in one atomic document
// update: every supplied field lands together or the call fails with
// nothing applied. Admin enforcement is the caller's responsibility.
func (s *Storage) UpdateSettings(ctx context.Context, boardID string, update domain.SettingsUpdate) error {
	if update.Empty() {
		return domain.ValidationError{Field: "settings", Reason: "no fields to update"}
	}
	if err := update.Validate(); err != nil {
		return err
	}
	pairs := make([]interface{}, 0, 12)
	if update.VotingEnabled != nil {
		pairs = append(pairs, fieldVotingEnabled, encodeBool(*update.VotingEnabled))
	}
	if update.VotesPerParticipant != nil {
		pairs = append(pairs, fieldVotesPerParticipant, *update.VotesPerParticipant)
	}
	if update.HideCardsFromOthers != nil {
		pairs = append(pairs, fieldHideCardsFromOthers, encodeBool(*update.HideCardsFromOthers))
	}
	if update.AddingCardsDisabled != nil {
		pairs = append(pairs, fieldAddingCardsDisabled, encodeBool(*update.AddingCardsDisabled))
	}
	if update.ShowOnlyHighlighted != nil {
		pairs = append(pairs, fieldShowOnlyHighlighted, encodeBool(*update.ShowOnlyHighlighted))
	}
	if update.ActionCreationEnabled != nil {
		pairs = append(pairs, fieldActionCreationEnabled, encodeBool(*update.ActionCreationEnabled))
	}

	err := s.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, boardKey(boardID)).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("storage: update settings for board %s: %w", boardID, domain.ErrNotFound)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, boardKey(boardID), pairs...)
			return nil
		})
		return err
	}, boardKey(boardID))
	if err != nil {
		return err
	}
	s.publish(ChangeEvent{BoardID: boardID, EntityType: EntityBoard, EntityID: boardID, Type: "settings-updated", Timestamp: nextTimestamp()})
	return nil
}

// CloseBoard clears the active flag. Closing is terminal and does not
// cascade to notes or actions; they stay in storage gated by the flag.
func (s *Storage) CloseBoard(ctx context.Context, boardID string) error {
	err := s.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, boardKey(boardID)).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("storage: close board %s: %w", boardID, domain.ErrNotFound)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, boardKey(boardID), fieldIsActive, encodeBool(false))
			return nil
		})
		return err
	}, boardKey(boardID))
	if err != nil {
		return err
	}
	s.publish(ChangeEvent{BoardID: boardID, EntityType: EntityBoard, EntityID: boardID, Type: "board-closed", Timestamp: nextTimestamp()})
	return nil
}
