package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"retro-api/domain"
)

const (
	fieldTitle             = "title"
	fieldDescription       = "description"
	fieldLinkedNoteID      = "linkedNoteId"
	fieldLinkedNoteContent = "linkedNoteContent"
	fieldLinkedNoteColumn  = "linkedNoteColumn"
	fieldAssignedTo        = "assignedTo"
	fieldStatus            = "status"
	fieldIsApproved        = "isApproved"
	fieldApprovedBy        = "approvedBy"
	fieldApprovedAt        = "approvedAt"
	fieldDueDate           = "dueDate"
	fieldPriority          = "priority"
)

// NewActionParams carries the creation arguments for a follow-up action.
// LinkedNoteContent is a snapshot taken at creation time; it is never
// re-read from the note afterwards.
type NewActionParams struct {
	Title             string
	Description       string
	CreatedBy         string
	LinkedNoteID      string
	LinkedNoteContent string
	LinkedNoteColumn  string
	AssignedTo        domain.Assignment
	DueDate           string
	Priority          domain.ActionPriority
}

// CreateAction writes a new action. Every action starts proposed and
// unapproved, whoever creates it; approval is always an explicit second
// call chained by the caller.
func (s *Storage) CreateAction(ctx context.Context, boardID string, params NewActionParams) (*domain.Action, error) {
	if strings.TrimSpace(params.Title) == "" {
		return nil, domain.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if strings.TrimSpace(params.CreatedBy) == "" {
		return nil, domain.ValidationError{Field: "createdBy", Reason: "must not be empty"}
	}
	if err := params.AssignedTo.Validate(); err != nil {
		return nil, err
	}
	priority := params.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !domain.ValidPriority(priority) {
		return nil, domain.ValidationError{Field: "priority", Reason: "unknown priority"}
	}
	assignedJSON, err := sonic.Marshal(params.AssignedTo)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal assignment: %w", err)
	}

	action := &domain.Action{
		ID:                uuid.NewString(),
		Title:             params.Title,
		Description:       params.Description,
		CreatedBy:         params.CreatedBy,
		CreatedAt:         nextTimestamp(),
		LinkedNoteID:      params.LinkedNoteID,
		LinkedNoteContent: params.LinkedNoteContent,
		LinkedNoteColumn:  params.LinkedNoteColumn,
		AssignedTo:        params.AssignedTo,
		Status:            domain.StatusProposed,
		Priority:          priority,
	}
	_, err = s.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, actionKey(boardID, action.ID),
			fieldTitle, action.Title,
			fieldDescription, action.Description,
			fieldCreatedBy, action.CreatedBy,
			fieldCreatedAt, action.CreatedAt,
			fieldLinkedNoteID, action.LinkedNoteID,
			fieldLinkedNoteContent, action.LinkedNoteContent,
			fieldLinkedNoteColumn, action.LinkedNoteColumn,
			fieldAssignedTo, string(assignedJSON),
			fieldStatus, string(action.Status),
			fieldIsApproved, encodeBool(false),
			fieldDueDate, action.DueDate,
			fieldPriority, string(action.Priority),
		)
		pipe.SAdd(ctx, actionsIndexKey(boardID), action.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create action: %w", err)
	}
	s.publish(ChangeEvent{BoardID: boardID, EntityType: EntityAction, EntityID: action.ID, Type: "action-created", Timestamp: action.CreatedAt})
	return action, nil
}

// GetAction performs a point read of a single action.
func (s *Storage) GetAction(ctx context.Context, boardID, actionID string) (*domain.Action, error) {
	fields, err := s.rc.HGetAll(ctx, actionKey(boardID, actionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("storage: fetch action %s: %w", actionID, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("storage: fetch action %s: %w", actionID, domain.ErrNotFound)
	}
	return decodeAction(actionID, fields)
}

func decodeAction(actionID string, fields map[string]string) (*domain.Action, error) {
	var assigned domain.Assignment
	if raw := fields[fieldAssignedTo]; raw != "" {
		if err := sonic.Unmarshal([]byte(raw), &assigned); err != nil {
			return nil, fmt.Errorf("storage: decode assignment for action %s: %w", actionID, err)
		}
	}
	createdAt, err := decodeInt64(fieldCreatedAt, fields[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("storage: decode action %s: %w", actionID, err)
	}
	approvedAt, err := decodeInt64(fieldApprovedAt, fields[fieldApprovedAt])
	if err != nil {
		return nil, fmt.Errorf("storage: decode action %s: %w", actionID, err)
	}
	return &domain.Action{
		ID:                actionID,
		Title:             fields[fieldTitle],
		Description:       fields[fieldDescription],
		CreatedBy:         fields[fieldCreatedBy],
		CreatedAt:         createdAt,
		LinkedNoteID:      fields[fieldLinkedNoteID],
		LinkedNoteContent: fields[fieldLinkedNoteContent],
		LinkedNoteColumn:  fields[fieldLinkedNoteColumn],
		AssignedTo:        assigned,
		Status:            domain.ActionStatus(fields[fieldStatus]),
		IsApproved:        decodeBool(fields[fieldIsApproved]),
		ApprovedBy:        fields[fieldApprovedBy],
		ApprovedAt:        approvedAt,
		DueDate:           fields[fieldDueDate],
		Priority:          domain.ActionPriority(fields[fieldPriority]),
	}, nil
}

// FetchActions returns every action on the board ordered by creation time.
func (s *Storage) FetchActions(ctx context.Context, boardID string) ([]domain.Action, error) {
	ids, err := s.rc.SMembers(ctx, actionsIndexKey(boardID)).Result()
	if err != nil {
		return nil, fmt.Errorf("storage: list actions for board %s: %w", boardID, err)
	}
	actions := make([]domain.Action, 0, len(ids))
	if len(ids) == 0 {
		return actions, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.rc.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, actionKey(boardID, id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: fetch actions for board %s: %w", boardID, err)
	}
	for i, id := range ids {
		fields, err := cmds[i].Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		action, err := decodeAction(id, fields)
		if err != nil {
			return nil, err
		}
		actions = append(actions, *action)
	}
	sort.Slice(actions, func(i, j int) bool {
		if actions[i].CreatedAt != actions[j].CreatedAt {
			return actions[i].CreatedAt < actions[j].CreatedAt
		}
		return actions[i].ID < actions[j].ID
	})
	return actions, nil
}

// ApproveAction moves a proposed action to todo. The approval flag, the
// approver, the approval time and the status land in one write; no
// concurrent reader can observe a subset of them.
func (s *Storage) ApproveAction(ctx context.Context, boardID, actionID, approvedBy string) error {
	if strings.TrimSpace(approvedBy) == "" {
		return domain.ValidationError{Field: "approvedBy", Reason: "must not be empty"}
	}
	ak := actionKey(boardID, actionID)
	err := s.watch(ctx, func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, ak).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return fmt.Errorf("storage: approve action %s: %w", actionID, domain.ErrNotFound)
		}
		if decodeBool(fields[fieldIsApproved]) {
			return fmt.Errorf("storage: approve action %s: %w", actionID, domain.ErrAlreadyApproved)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, ak,
				fieldIsApproved, encodeBool(true),
				fieldApprovedBy, approvedBy,
				fieldApprovedAt, nextTimestamp(),
				fieldStatus, string(domain.StatusTodo),
			)
			return nil
		})
		return err
	}, ak)
	if err != nil {
		return err
	}
	s.publish(ChangeEvent{BoardID: boardID, EntityType: EntityAction, EntityID: actionID, Type: "action-approved", Timestamp: nextTimestamp()})
	return nil
}

// RejectAction hard-deletes a proposed action. No record of the rejection
// is retained. Rejecting an already approved action is a lifecycle
// violation; approved actions leave the board through DeleteAction only.
func (s *Storage) RejectAction(ctx context.Context, boardID, actionID string) error {
	ak := actionKey(boardID, actionID)
	err := s.watch(ctx, func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, ak).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return fmt.Errorf("storage: reject action %s: %w", actionID, domain.ErrNotFound)
		}
		if decodeBool(fields[fieldIsApproved]) {
			return fmt.Errorf("storage: reject action %s: %w", actionID, domain.ErrInvalidTransition)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, actionsIndexKey(boardID), actionID)
			pipe.Del(ctx, ak)
			return nil
		})
		return err
	}, ak)
	if err != nil {
		return err
	}
	s.publish(ChangeEvent{BoardID: boardID, EntityType: EntityAction, EntityID: actionID, Type: "action-rejected", Timestamp: nextTimestamp()})
	return nil
}

// UpdateAction applies a partial merge to title, description, assignment,
// due date, priority and status. Status changes must be forward steps;
// proposed actions change status through approval only.
func (s *Storage) UpdateAction(ctx context.Context, boardID, actionID string, update domain.ActionUpdate) error {
	if update.Empty() {
		return domain.ValidationError{Field: "action", Reason: "no fields to update"}
	}
	if err := update.Validate(); err != nil {
		return err
	}
	ak := actionKey(boardID, actionID)
	err := s.watch(ctx, func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, ak).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return fmt.Errorf("storage: update action %s: %w", actionID, domain.ErrNotFound)
		}
		pairs := make([]interface{}, 0, 12)
		if update.Title != nil {
			pairs = append(pairs, fieldTitle, *update.Title)
		}
		if update.Description != nil {
			pairs = append(pairs, fieldDescription, *update.Description)
		}
		if update.AssignedTo != nil {
			assignedJSON, err := sonic.Marshal(*update.AssignedTo)
			if err != nil {
				return fmt.Errorf("storage: marshal assignment: %w", err)
			}
			pairs = append(pairs, fieldAssignedTo, string(assignedJSON))
		}
		if update.DueDate != nil {
			pairs = append(pairs, fieldDueDate, *update.DueDate)
		}
		if update.Priority != nil {
			pairs = append(pairs, fieldPriority, string(*update.Priority))
		}
		if update.Status != nil {
			current := domain.ActionStatus(fields[fieldStatus])
			if !domain.CanTransition(current, *update.Status) {
				return fmt.Errorf("storage: update action %s: %s -> %s: %w",
					actionID, current, *update.Status, domain.ErrInvalidTransition)
			}
			pairs = append(pairs, fieldStatus, string(*update.Status))
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, ak, pairs...)
			return nil
		})
		return err
	}, ak)
	if err != nil {
		return err
	}
	s.publish(ChangeEvent{BoardID: boardID, EntityType: EntityAction, EntityID: actionID, Type: "action-updated", Timestamp: nextTimestamp()})
	return nil
}

// DeleteAction removes the action and its index entry in one commit.
// Creator/admin permission is enforced by the caller.
func (s *Storage) DeleteAction(ctx context.Context, boardID, actionID string) error {
	ak := actionKey(boardID, actionID)
	err := s.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, ak).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("storage: delete action %s: %w", actionID, domain.ErrNotFound)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, actionsIndexKey(boardID), actionID)
			pipe.Del(ctx, ak)
			return nil
		})
		return err
	}, ak)
	if err != nil {
		return err
	}
	s.publish(ChangeEvent{BoardID: boardID, EntityType: EntityAction, EntityID: actionID, Type: "action-deleted", Timestamp: nextTimestamp()})
	return nil
}
