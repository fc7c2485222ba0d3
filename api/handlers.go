package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"retro-api/domain"
	"retro-api/storage"
	"retro-api/subscription"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, deduper Deduper, broker *subscription.Broker, logger *log.Logger) {
	e.POST("/api/boards", createBoard(store))
	e.GET("/api/boards/:boardId", getBoardSnapshot(store, logger))
	e.POST("/api/boards/:boardId/join", joinBoard(store))
	e.PATCH("/api/boards/:boardId/settings", updateSettings(store))
	e.POST("/api/boards/:boardId/close", closeBoard(store))

	e.GET("/api/boards/:boardId/notes", getNotes(store))
	e.POST("/api/boards/:boardId/notes", createNote(store, deduper))
	e.DELETE("/api/boards/:boardId/notes/:noteId", deleteNote(store))
	e.POST("/api/boards/:boardId/notes/:noteId/vote", toggleVote(store))
	e.PUT("/api/boards/:boardId/notes/:noteId/highlight", setHighlight(store))
	e.POST("/api/boards/:boardId/notes/reset-votes", resetVotes(store))
	e.POST("/api/boards/:boardId/notes/reset-highlights", resetHighlights(store))

	e.GET("/api/boards/:boardId/actions", getActions(store))
	e.GET("/api/boards/:boardId/actions/stats", getActionStats(store))
	e.POST("/api/boards/:boardId/actions", createAction(store, deduper))
	e.PATCH("/api/boards/:boardId/actions/:actionId", updateAction(store))
	e.POST("/api/boards/:boardId/actions/:actionId/approve", approveAction(store))
	e.POST("/api/boards/:boardId/actions/:actionId/reject", rejectAction(store))
	e.DELETE("/api/boards/:boardId/actions/:actionId", deleteAction(store))

	e.GET("/api/boards/:boardId/stream", streamBoard(store, broker, logger))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// httpError maps domain errors onto status codes with a human-readable
// message. Every mutation failure surfaces here, single-attempt, no
// hidden retry.
func httpError(c echo.Context, err error) error {
	var verr domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: verr.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrBoardClosed),
		errors.Is(err, domain.ErrAlreadyApproved),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConcurrencyConflict):
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func decodeBody(c echo.Context, v interface{}) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// loadBoard fetches the board or terminates the request with 404.
func loadBoard(c echo.Context, store Storage) (*domain.Board, error) {
	board, err := store.GetBoard(c.Request().Context(), c.Param("boardId"))
	if err != nil {
		return nil, httpError(c, err)
	}
	if board == nil {
		return nil, c.JSON(http.StatusNotFound, errorResponse{Error: "board not found"})
	}
	return board, nil
}

func createBoard(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createBoardRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		boardID, err := store.CreateBoard(c.Request().Context(), req.Name, req.Username, req.Type, req.Columns)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusCreated, createBoardResponse{ID: boardID})
	}
}

func getBoardSnapshot(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newSnapshotRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		viewer, viewerErr := usernameFromRequest(c)
		if viewerErr != nil {
			metrics.SetErrorStage("identity")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: viewerErr.Error()})
			return err
		}

		fetchStart := time.Now()
		snapshot, fetchErr := store.FetchSnapshot(ctx, c.Param("boardId"))
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			err = httpError(c, fetchErr)
			return err
		}
		snapshot.Notes = visibleNotes(snapshot, viewer)
		metrics.SetNotesReturned(len(snapshot.Notes))
		metrics.SetActionsReturned(len(snapshot.Actions))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, snapshot)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

// visibleNotes applies the board's visibility settings for the viewer.
// The admin sees everything: curation (highlighting, resets, conversion
// to actions) needs the full picture, while hideCardsFromOthers governs
// what the admin's own cards look like to everyone else.
func visibleNotes(snapshot *storage.Snapshot, viewer string) []domain.Note {
	settings := snapshot.Board.Settings
	if snapshot.Board.IsAdmin(viewer) {
		settings.HideCardsFromOthers = false
	}
	return domain.FilterNotesForViewer(snapshot.Notes, viewer, settings)
}

func joinBoard(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		username, err := usernameFromRequest(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		if err := store.AddParticipant(c.Request().Context(), c.Param("boardId"), username); err != nil {
			return httpError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// requireAdmin loads the board and checks the acting user against the
// creator-is-admin convention. It writes the error response itself when
// the check fails.
func requireAdmin(c echo.Context, store Storage) (*domain.Board, string, error) {
	username, err := usernameFromRequest(c)
	if err != nil {
		return nil, "", c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	board, err := loadBoard(c, store)
	if board == nil {
		return nil, "", err
	}
	if !board.IsAdmin(username) {
		return nil, "", c.JSON(http.StatusForbidden, errorResponse{Error: "only the board creator can do this"})
	}
	return board, username, nil
}

func updateSettings(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		board, _, err := requireAdmin(c, store)
		if board == nil {
			return err
		}
		var update domain.SettingsUpdate
		if err := decodeBody(c, &update); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if err := store.UpdateSettings(c.Request().Context(), board.ID, update); err != nil {
			return httpError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func closeBoard(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		board, _, err := requireAdmin(c, store)
		if board == nil {
			return err
		}
		if err := store.CloseBoard(c.Request().Context(), board.ID); err != nil {
			return httpError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getNotes(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		viewer, err := usernameFromRequest(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		board, err := loadBoard(c, store)
		if board == nil {
			return err
		}
		notes, err := store.FetchNotes(c.Request().Context(), board.ID)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, visibleNotes(&storage.Snapshot{Board: board, Notes: notes}, viewer))
	}
}

func createNote(store Storage, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		username, err := usernameFromRequest(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		board, err := loadBoard(c, store)
		if board == nil {
			return err
		}
		if !board.IsActive {
			return httpError(c, domain.ErrBoardClosed)
		}
		if board.Settings.AddingCardsDisabled {
			return c.JSON(http.StatusConflict, errorResponse{Error: "adding cards is disabled"})
		}
		var req createNoteRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if !board.HasColumn(req.Column) {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown column: " + req.Column})
		}

		idemKey := c.Request().Header.Get(IdempotencyKeyHeader)
		if idemKey != "" && deduper != nil {
			added, err := deduper.Add(ctx, board.ID, idemKey)
			if err != nil {
				return httpError(c, err)
			}
			if !added {
				return c.JSON(http.StatusOK, createNoteResponse{Duplicate: true})
			}
		}
		note, err := store.CreateNote(ctx, board.ID, req.Content, req.Column, username)
		if err != nil {
			if idemKey != "" && deduper != nil {
				if rerr := deduper.Remove(ctx, board.ID, idemKey); rerr != nil {
					c.Logger().Errorf("dedupe rollback failed: %v", rerr)
				}
			}
			return httpError(c, err)
		}
		return c.JSON(http.StatusCreated, createNoteResponse{Note: note})
	}
}

func deleteNote(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		username, err := usernameFromRequest(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		board, err := loadBoard(c, store)
		if board == nil {
			return err
		}
		note, err := store.GetNote(ctx, board.ID, c.Param("noteId"))
		if err != nil {
			return httpError(c, err)
		}
		if note.CreatedBy != username && !board.IsAdmin(username) {
			return c.JSON(http.StatusForbidden, errorResponse{Error: "only the author or the board creator can delete a card"})
		}
		if err := store.DeleteNote(ctx, board.ID, note.ID); err != nil {
			return httpError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func toggleVote(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		username, err := usernameFromRequest(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		board, err := loadBoard(c, store)
		if board == nil {
			return err
		}
		// The budget check scans the live note collection; it is a
		// caller-side guard, the atomic set+counter commit below is
		// what keeps voteCount honest under races.
		notes, err := store.FetchNotes(ctx, board.ID)
		if err != nil {
			return httpError(c, err)
		}
		noteID := c.Param("noteId")
		var target *domain.Note
		for i := range notes {
			if notes[i].ID == noteID {
				target = &notes[i]
				break
			}
		}
		if target == nil {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "note not found"})
		}
		if !target.HasVoter(username) {
			if !domain.CanUserVote(notes, username, board.Settings.VotesPerParticipant) {
				return c.JSON(http.StatusConflict, errorResponse{Error: "vote budget exhausted"})
			}
		}
		voted, err := store.ToggleVote(ctx, board.ID, noteID, username)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, toggleVoteResponse{Voted: voted})
	}
}

func setHighlight(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		board, _, err := requireAdmin(c, store)
		if board == nil {
			return err
		}
		var req highlightRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if err := store.SetHighlight(c.Request().Context(), board.ID, c.Param("noteId"), req.Highlighted); err != nil {
			return httpError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func resetVotes(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		board, _, err := requireAdmin(c, store)
		if board == nil {
			return err
		}
		if err := store.ResetAllVotes(c.Request().Context(), board.ID); err != nil {
			return httpError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func resetHighlights(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		board, _, err := requireAdmin(c, store)
		if board == nil {
			return err
		}
		if err := store.ResetAllHighlights(c.Request().Context(), board.ID); err != nil {
			return httpError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getActions(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		board, err := loadBoard(c, store)
		if board == nil {
			return err
		}
		actions, err := store.FetchActions(c.Request().Context(), board.ID)
		if err != nil {
			return httpError(c, err)
		}
		if assignee := c.QueryParam("assignee"); assignee != "" {
			actions = domain.FilterActionsByUser(actions, assignee)
		}
		return c.JSON(http.StatusOK, actions)
	}
}

func getActionStats(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		board, err := loadBoard(c, store)
		if board == nil {
			return err
		}
		actions, err := store.FetchActions(c.Request().Context(), board.ID)
		if err != nil {
			return httpError(c, err)
		}
		return c.JSON(http.StatusOK, domain.ActionStatistics(actions))
	}
}

func createAction(store Storage, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		username, err := usernameFromRequest(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		board, err := loadBoard(c, store)
		if board == nil {
			return err
		}
		if !board.IsActive {
			return httpError(c, domain.ErrBoardClosed)
		}
		isAdmin := board.IsAdmin(username)
		if !board.Settings.ActionCreationEnabled && !isAdmin {
			return c.JSON(http.StatusForbidden, errorResponse{Error: "action creation is disabled"})
		}
		var req createActionRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		params := storage.NewActionParams{
			Title:       req.Title,
			Description: req.Description,
			CreatedBy:   username,
			AssignedTo:  req.AssignedTo,
			DueDate:     req.DueDate,
			Priority:    req.Priority,
		}
		if req.LinkedNoteID != "" {
			// Snapshot the note content now; the link is not live.
			note, err := store.GetNote(ctx, board.ID, req.LinkedNoteID)
			if err != nil {
				return httpError(c, err)
			}
			params.LinkedNoteID = note.ID
			params.LinkedNoteContent = note.Content
			params.LinkedNoteColumn = note.Column
		}

		idemKey := c.Request().Header.Get(IdempotencyKeyHeader)
		if idemKey != "" && deduper != nil {
			added, err := deduper.Add(ctx, board.ID, idemKey)
			if err != nil {
				return httpError(c, err)
			}
			if !added {
				return c.JSON(http.StatusOK, createActionResponse{Duplicate: true})
			}
		}
		action, err := store.CreateAction(ctx, board.ID, params)
		if err != nil {
			if idemKey != "" && deduper != nil {
				if rerr := deduper.Remove(ctx, board.ID, idemKey); rerr != nil {
					c.Logger().Errorf("dedupe rollback failed: %v", rerr)
				}
			}
			return httpError(c, err)
		}
		if isAdmin {
			// Admin proposals are approved immediately, as an explicit
			// second step; the repository has no admin special case.
			if err := store.ApproveAction(ctx, board.ID, action.ID, username); err != nil {
				return httpError(c, err)
			}
			action, err = store.GetAction(ctx, board.ID, action.ID)
			if err != nil {
				return httpError(c, err)
			}
		}
		return c.JSON(http.StatusCreated, createActionResponse{Action: action})
	}
}

func updateAction(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := usernameFromRequest(c); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		board, err := loadBoard(c, store)
		if board == nil {
			return err
		}
		var update domain.ActionUpdate
		if err := decodeBody(c, &update); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if err := store.UpdateAction(c.Request().Context(), board.ID, c.Param("actionId"), update); err != nil {
			return httpError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func approveAction(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		board, username, err := requireAdmin(c, store)
		if board == nil {
			return err
		}
		if err := store.ApproveAction(c.Request().Context(), board.ID, c.Param("actionId"), username); err != nil {
			return httpError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func rejectAction(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		board, _, err := requireAdmin(c, store)
		if board == nil {
			return err
		}
		if err := store.RejectAction(c.Request().Context(), board.ID, c.Param("actionId")); err != nil {
			return httpError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteAction(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		username, err := usernameFromRequest(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		board, err := loadBoard(c, store)
		if board == nil {
			return err
		}
		action, err := store.GetAction(ctx, board.ID, c.Param("actionId"))
		if err != nil {
			return httpError(c, err)
		}
		if action.CreatedBy != username && !board.IsAdmin(username) {
			return c.JSON(http.StatusForbidden, errorResponse{Error: "only the creator or the board creator can delete an action"})
		}
		if err := store.DeleteAction(ctx, board.ID, action.ID); err != nil {
			return httpError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
