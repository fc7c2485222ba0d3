package api

import "retro-api/domain"

const requestBodyMaxSize = 64 * 1024 // 64 KiB

// IdempotencyKeyHeader lets clients replay note/action creation safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// POST /api/boards request body.
type createBoardRequest struct {
	Name     string           `json:"name"`
	Username string           `json:"username"`
	Type     domain.BoardType `json:"type"`
	Columns  []string         `json:"columns"`
}

// POST /api/boards response body.
type createBoardResponse struct {
	ID string `json:"id"`
}

// POST /api/boards/:boardId/notes request body.
type createNoteRequest struct {
	Content string `json:"content"`
	Column  string `json:"column"`
}

type createNoteResponse struct {
	Note      *domain.Note `json:"note,omitempty"`
	Duplicate bool         `json:"duplicate,omitempty"`
}

// POST /api/boards/:boardId/notes/:noteId/vote response body.
type toggleVoteResponse struct {
	Voted bool `json:"voted"`
}

// PUT /api/boards/:boardId/notes/:noteId/highlight request body.
type highlightRequest struct {
	Highlighted bool `json:"highlighted"`
}

// POST /api/boards/:boardId/actions request body.
type createActionRequest struct {
	Title             string                `json:"title"`
	Description       string                `json:"description,omitempty"`
	LinkedNoteID      string                `json:"linkedNoteId,omitempty"`
	AssignedTo        domain.Assignment     `json:"assignedTo"`
	DueDate           string                `json:"dueDate,omitempty"`
	Priority          domain.ActionPriority `json:"priority,omitempty"`
}

type createActionResponse struct {
	Action    *domain.Action `json:"action,omitempty"`
	Duplicate bool           `json:"duplicate,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
