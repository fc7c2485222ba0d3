package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"retro-api/domain"
	"retro-api/storage"
	"retro-api/subscription"
)

func newTestServer(t *testing.T) (*echo.Echo, *storage.Storage) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := log.New()
	logger.SetOutput(io.Discard)

	store := storage.New(client, nil)
	deduper := NewRedisDeduper(client, time.Hour)
	broker := subscription.NewBroker()

	e := echo.New()
	Register(e, store, deduper, broker, logger)
	return e, store
}

// doJSON fires one request at the server as the given user. A nil body
// sends no payload; extra headers ride along as-is.
func doJSON(t *testing.T, e *echo.Echo, method, path, username string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if username != "" {
		req.Header.Set(UsernameHeader, username)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := sonic.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func createTestBoard(t *testing.T, e *echo.Echo, name, username string, columns []string) string {
	t.Helper()
	rec := doJSON(t, e, http.MethodPost, "/api/boards", "", map[string]interface{}{
		"name":     name,
		"username": username,
		"type":     "custom",
		"columns":  columns,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create board: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	decodeJSON(t, rec, &resp)
	return resp.ID
}

func TestCreateBoardEndpoint(t *testing.T) {
	e, _ := newTestServer(t)

	boardID := createTestBoard(t, e, "Sprint 5", "alice", []string{"Good", "Bad"})
	if !domain.ValidBoardID(boardID) {
		t.Fatalf("unexpected board id: %q", boardID)
	}

	rec := doJSON(t, e, http.MethodPost, "/api/boards", "", map[string]interface{}{
		"name": "", "username": "alice", "type": "custom", "columns": []string{"Good"},
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank name: status %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/boards", bytes.NewReader([]byte("{not json")))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	malformed := httptest.NewRecorder()
	e.ServeHTTP(malformed, req)
	if malformed.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d, want 400", malformed.Code)
	}
}

func TestSnapshotVisibility(t *testing.T) {
	e, store := newTestServer(t)
	ctx := context.Background()
	boardID := createTestBoard(t, e, "Sprint 5", "alice", []string{"Good", "Bad"})

	if _, err := store.CreateNote(ctx, boardID, "from alice", "Good", "alice"); err != nil {
		t.Fatalf("create note: %v", err)
	}
	if _, err := store.CreateNote(ctx, boardID, "from bob", "Bad", "bob"); err != nil {
		t.Fatalf("create note: %v", err)
	}

	// hideCardsFromOthers defaults to on: bob sees only his own card.
	rec := doJSON(t, e, http.MethodGet, "/api/boards/"+boardID, "bob", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot: status %d, body %s", rec.Code, rec.Body.String())
	}
	var snap storage.Snapshot
	decodeJSON(t, rec, &snap)
	if len(snap.Notes) != 1 || snap.Notes[0].CreatedBy != "bob" {
		t.Fatalf("bob should see only his card: %#v", snap.Notes)
	}

	// The admin sees everything regardless.
	rec = doJSON(t, e, http.MethodGet, "/api/boards/"+boardID, "alice", nil, nil)
	decodeJSON(t, rec, &snap)
	if len(snap.Notes) != 2 {
		t.Fatalf("admin should see both cards, got %d", len(snap.Notes))
	}

	rec = doJSON(t, e, http.MethodGet, "/api/boards/"+boardID, "", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing username: status %d, want 400", rec.Code)
	}
	rec = doJSON(t, e, http.MethodGet, "/api/boards/NOSUCH", "bob", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown board: status %d, want 404", rec.Code)
	}
}

func TestJoinBoard(t *testing.T) {
	e, store := newTestServer(t)
	ctx := context.Background()
	boardID := createTestBoard(t, e, "Sprint 5", "alice", []string{"Good"})

	rec := doJSON(t, e, http.MethodPost, "/api/boards/"+boardID+"/join", "bob", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("join: status %d, body %s", rec.Code, rec.Body.String())
	}
	board, err := store.GetBoard(ctx, boardID)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if len(board.Participants) != 2 {
		t.Fatalf("unexpected participants: %#v", board.Participants)
	}

	rec = doJSON(t, e, http.MethodPost, "/api/boards/"+boardID+"/join", "", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing username: status %d, want 400", rec.Code)
	}

	if err := store.CloseBoard(ctx, boardID); err != nil {
		t.Fatalf("close board: %v", err)
	}
	rec = doJSON(t, e, http.MethodPost, "/api/boards/"+boardID+"/join", "carol", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("join closed board: status %d, want 409", rec.Code)
	}
}

func TestUpdateSettingsRequiresAdmin(t *testing.T) {
	e, store := newTestServer(t)
	boardID := createTestBoard(t, e, "Sprint 5", "alice", []string{"Good"})

	body := map[string]interface{}{"votingEnabled": true}
	rec := doJSON(t, e, http.MethodPatch, "/api/boards/"+boardID+"/settings", "bob", body, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin settings change: status %d, want 403", rec.Code)
	}

	rec = doJSON(t, e, http.MethodPatch, "/api/boards/"+boardID+"/settings", "alice", body, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin settings change: status %d, body %s", rec.Code, rec.Body.String())
	}
	board, err := store.GetBoard(context.Background(), boardID)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if !board.Settings.VotingEnabled {
		t.Fatal("setting not applied")
	}

	rec = doJSON(t, e, http.MethodPatch, "/api/boards/"+boardID+"/settings", "alice",
		map[string]interface{}{"votesPerParticipant": 0}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range setting: status %d, want 400", rec.Code)
	}
}

func TestCreateNoteGuards(t *testing.T) {
	e, store := newTestServer(t)
	ctx := context.Background()
	boardID := createTestBoard(t, e, "Sprint 5", "alice", []string{"Good"})

	rec := doJSON(t, e, http.MethodPost, "/api/boards/"+boardID+"/notes", "bob",
		map[string]interface{}{"content": "hi", "column": "Nope"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown column: status %d, want 400", rec.Code)
	}

	disabled := true
	if err := store.UpdateSettings(ctx, boardID, domain.SettingsUpdate{AddingCardsDisabled: &disabled}); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	rec = doJSON(t, e, http.MethodPost, "/api/boards/"+boardID+"/notes", "bob",
		map[string]interface{}{"content": "hi", "column": "Good"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("cards disabled: status %d, want 409", rec.Code)
	}

	if err := store.CloseBoard(ctx, boardID); err != nil {
		t.Fatalf("close board: %v", err)
	}
	rec = doJSON(t, e, http.MethodPost, "/api/boards/"+boardID+"/notes", "bob",
		map[string]interface{}{"content": "hi", "column": "Good"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("closed board: status %d, want 409", rec.Code)
	}
}

func TestCreateNoteIdempotency(t *testing.T) {
	e, store := newTestServer(t)
	boardID := createTestBoard(t, e, "Sprint 5", "alice", []string{"Good"})

	body := map[string]interface{}{"content": "once", "column": "Good"}
	headers := map[string]string{IdempotencyKeyHeader: "req-1"}

	rec := doJSON(t, e, http.MethodPost, "/api/boards/"+boardID+"/notes", "bob", body, headers)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first create: status %d, body %s", rec.Code, rec.Body.String())
	}
	var first struct {
		Note      *domain.Note `json:"note"`
		Duplicate bool         `json:"duplicate"`
	}
	decodeJSON(t, rec, &first)
	if first.Note == nil || first.Duplicate {
		t.Fatalf("unexpected first response: %+v", first)
	}

	rec = doJSON(t, e, http.MethodPost, "/api/boards/"+boardID+"/notes", "bob", body, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay: status %d, body %s", rec.Code, rec.Body.String())
	}
	var second struct {
		Note      *domain.Note `json:"note"`
		Duplicate bool         `json:"duplicate"`
	}
	decodeJSON(t, rec, &second)
	if !second.Duplicate {
		t.Fatalf("replay should be flagged duplicate: %+v", second)
	}

	notes, err := store.FetchNotes(context.Background(), boardID)
	if err != nil {
		t.Fatalf("fetch notes: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("replay created a second note: %d", len(notes))
	}
}

func TestToggleVoteBudget(t *testing.T) {
	e, store := newTestServer(t)
	ctx := context.Background()
	boardID := createTestBoard(t, e, "Sprint 5", "alice", []string{"Good"})

	one := 1
	if err := store.UpdateSettings(ctx, boardID, domain.SettingsUpdate{VotesPerParticipant: &one}); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	first, err := store.CreateNote(ctx, boardID, "first", "Good", "alice")
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	second, err := store.CreateNote(ctx, boardID, "second", "Good", "alice")
	if err != nil {
		t.Fatalf("create note: %v", err)
	}

	vote := func(noteID string) *httptest.ResponseRecorder {
		return doJSON(t, e, http.MethodPost, "/api/boards/"+boardID+"/notes/"+noteID+"/vote", "bob", nil, nil)
	}

	rec := vote(first.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("first vote: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Voted bool `json:"voted"`
	}
	decodeJSON(t, rec, &resp)
	if !resp.Voted {
		t.Fatal("first toggle should cast a vote")
	}

	// Budget of one is spent.
	if rec = vote(second.ID); rec.Code != http.StatusConflict {
		t.Fatalf("over-budget vote: status %d, want 409", rec.Code)
	}

	// Retracting is always allowed and frees the budget.
	rec = vote(first.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("retract: status %d, body %s", rec.Code, rec.Body.String())
	}
	decodeJSON(t, rec, &resp)
	if resp.Voted {
		t.Fatal("second toggle should retract")
	}
	if rec = vote(second.ID); rec.Code != http.StatusOK {
		t.Fatalf("vote after retract: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = vote("no-such-note")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown note: status %d, want 404", rec.Code)
	}
}

func TestDeleteNoteAuthorization(t *testing.T) {
	e, store := newTestServer(t)
	ctx := context.Background()
	boardID := createTestBoard(t, e, "Sprint 5", "alice", []string{"Good"})

	note, err := store.CreateNote(ctx, boardID, "bob's card", "Good", "bob")
	if err != nil {
		t.Fatalf("create note: %v", err)
	}

	rec := doJSON(t, e, http.MethodDelete, "/api/boards/"+boardID+"/notes/"+note.ID, "carol", nil, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger delete: status %d, want 403", rec.Code)
	}
	rec = doJSON(t, e, http.MethodDelete, "/api/boards/"+boardID+"/notes/"+note.ID, "bob", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("author delete: status %d, body %s", rec.Code, rec.Body.String())
	}

	// The board creator can remove anyone's card.
	note, err = store.CreateNote(ctx, boardID, "another", "Good", "bob")
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	rec = doJSON(t, e, http.MethodDelete, "/api/boards/"+boardID+"/notes/"+note.ID, "alice", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin delete: status %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHighlightRequiresAdmin(t *testing.T) {
	e, store := newTestServer(t)
	boardID := createTestBoard(t, e, "Sprint 5", "alice", []string{"Good"})

	note, err := store.CreateNote(context.Background(), boardID, "card", "Good", "bob")
	if err != nil {
		t.Fatalf("create note: %v", err)
	}

	body := map[string]interface{}{"highlighted": true}
	path := "/api/boards/" + boardID + "/notes/" + note.ID + "/highlight"
	rec := doJSON(t, e, http.MethodPut, path, "bob", body, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin highlight: status %d, want 403", rec.Code)
	}
	rec = doJSON(t, e, http.MethodPut, path, "alice", body, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin highlight: status %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestResetEndpointsRequireAdmin(t *testing.T) {
	e, _ := newTestServer(t)
	boardID := createTestBoard(t, e, "Sprint 5", "alice", []string{"Good"})

	for _, path := range []string{"/notes/reset-votes", "/notes/reset-highlights"} {
		rec := doJSON(t, e, http.MethodPost, "/api/boards/"+boardID+path, "bob", nil, nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s as non-admin: status %d, want 403", path, rec.Code)
		}
		rec = doJSON(t, e, http.MethodPost, "/api/boards/"+boardID+path, "alice", nil, nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("%s as admin: status %d, body %s", path, rec.Code, rec.Body.String())
		}
	}
}

// TestActionApprovalFlow plays through a full session: cards, a vote, a
// settings change, a highlight, a proposed action, its approval and the
// march to done.
func TestActionApprovalFlow(t *testing.T) {
	e, store := newTestServer(t)
	ctx := context.Background()

	boardID := createTestBoard(t, e, "Sprint 12 Retro", "alice", []string{"Good", "Bad", "Ideas"})

	rec := doJSON(t, e, http.MethodPost, "/api/boards/"+boardID+"/join", "bob", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("join: status %d", rec.Code)
	}

	rec = doJSON(t, e, http.MethodPost, "/api/boards/"+boardID+"/notes", "alice",
		map[string]interface{}{"content": "Deploys were slow", "column": "Bad"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create note: status %d, body %s", rec.Code, rec.Body.String())
	}
	var noteResp struct {
		Note *domain.Note `json:"note"`
	}
	decodeJSON(t, rec, &noteResp)
	noteID := noteResp.Note.ID

	rec = doJSON(t, e, http.MethodPost, "/api/boards/"+boardID+"/notes/"+noteID+"/vote", "bob", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("vote: status %d, body %s", rec.Code, rec.Body.String())
	}
	note, err := store.GetNote(ctx, boardID, noteID)
	if err != nil {
		t.Fatalf("get note: %v", err)
	}
	if note.VoteCount != 1 || len(note.Voters) != 1 {
		t.Fatalf("unexpected vote state: %+v", note)
	}

	rec = doJSON(t, e, http.MethodPatch, "/api/boards/"+boardID+"/settings", "alice",
		map[string]interface{}{"votingEnabled": true, "votesPerParticipant": 1, "actionCreationEnabled": true}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("settings: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, e, http.MethodPut, "/api/boards/"+boardID+"/notes/"+noteID+"/highlight", "alice",
		map[string]interface{}{"highlighted": true}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("highlight: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, e, http.MethodPost, "/api/boards/"+boardID+"/actions", "bob",
		map[string]interface{}{
			"title":        "Automate deploys",
			"linkedNoteId": noteID,
			"assignedTo":   map[string]interface{}{"everyone": true},
		}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create action: status %d, body %s", rec.Code, rec.Body.String())
	}
	var actionResp struct {
		Action *domain.Action `json:"action"`
	}
	decodeJSON(t, rec, &actionResp)
	action := actionResp.Action
	if action.Status != domain.StatusProposed || action.IsApproved {
		t.Fatalf("participant's action should start proposed: %+v", action)
	}
	if action.LinkedNoteContent != "Deploys were slow" || action.LinkedNoteColumn != "Bad" {
		t.Fatalf("linked note snapshot missing: %+v", action)
	}

	// Only the admin can approve.
	approvePath := "/api/boards/" + boardID + "/actions/" + action.ID + "/approve"
	if rec = doJSON(t, e, http.MethodPost, approvePath, "bob", nil, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin approve: status %d, want 403", rec.Code)
	}
	if rec = doJSON(t, e, http.MethodPost, approvePath, "alice", nil, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("approve: status %d, body %s", rec.Code, rec.Body.String())
	}

	approved, err := store.GetAction(ctx, boardID, action.ID)
	if err != nil {
		t.Fatalf("get action: %v", err)
	}
	if !approved.IsApproved || approved.Status != domain.StatusTodo || approved.ApprovedBy != "alice" {
		t.Fatalf("approval state wrong: %+v", approved)
	}

	if rec = doJSON(t, e, http.MethodPost, approvePath, "alice", nil, nil); rec.Code != http.StatusConflict {
		t.Fatalf("double approve: status %d, want 409", rec.Code)
	}

	rec = doJSON(t, e, http.MethodPatch, "/api/boards/"+boardID+"/actions/"+action.ID, "bob",
		map[string]interface{}{"status": "done"}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status update: status %d, body %s", rec.Code, rec.Body.String())
	}
	final, err := store.GetAction(ctx, boardID, action.ID)
	if err != nil {
		t.Fatalf("get action: %v", err)
	}
	if final.Status != domain.StatusDone {
		t.Fatalf("status = %s, want done", final.Status)
	}
}

func TestCreateActionPermissions(t *testing.T) {
	e, _ := newTestServer(t)
	boardID := createTestBoard(t, e, "Sprint 5", "alice", []string{"Good"})

	body := map[string]interface{}{
		"title":      "By participant",
		"assignedTo": map[string]interface{}{"everyone": true},
	}
	// actionCreationEnabled defaults to off for participants.
	rec := doJSON(t, e, http.MethodPost, "/api/boards/"+boardID+"/actions", "bob", body, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("participant with creation disabled: status %d, want 403", rec.Code)
	}

	// The admin always can, and admin proposals come back approved.
	rec = doJSON(t, e, http.MethodPost, "/api/boards/"+boardID+"/actions", "alice", body, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Action *domain.Action `json:"action"`
	}
	decodeJSON(t, rec, &resp)
	if !resp.Action.IsApproved || resp.Action.Status != domain.StatusTodo {
		t.Fatalf("admin action should be auto-approved: %+v", resp.Action)
	}
	if resp.Action.ApprovedBy != "alice" {
		t.Fatalf("approvedBy = %q, want alice", resp.Action.ApprovedBy)
	}
}

func TestRejectActionEndpoint(t *testing.T) {
	e, store := newTestServer(t)
	ctx := context.Background()
	boardID := createTestBoard(t, e, "Sprint 5", "alice", []string{"Good"})

	action, err := store.CreateAction(ctx, boardID, storage.NewActionParams{Title: "Reject me", CreatedBy: "bob"})
	if err != nil {
		t.Fatalf("create action: %v", err)
	}

	rejectPath := "/api/boards/" + boardID + "/actions/" + action.ID + "/reject"
	if rec := doJSON(t, e, http.MethodPost, rejectPath, "bob", nil, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin reject: status %d, want 403", rec.Code)
	}
	if rec := doJSON(t, e, http.MethodPost, rejectPath, "alice", nil, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("reject: status %d", rec.Code)
	}
	rec := doJSON(t, e, http.MethodGet, "/api/boards/"+boardID+"/actions", "alice", nil, nil)
	var actions []domain.Action
	decodeJSON(t, rec, &actions)
	if len(actions) != 0 {
		t.Fatalf("rejected action still listed: %#v", actions)
	}
}

func TestGetActionsAssigneeFilter(t *testing.T) {
	e, store := newTestServer(t)
	ctx := context.Background()
	boardID := createTestBoard(t, e, "Sprint 5", "alice", []string{"Good"})

	if _, err := store.CreateAction(ctx, boardID, storage.NewActionParams{
		Title: "for bob", CreatedBy: "alice", AssignedTo: domain.AssignedToUsers("bob"),
	}); err != nil {
		t.Fatalf("create action: %v", err)
	}
	if _, err := store.CreateAction(ctx, boardID, storage.NewActionParams{
		Title: "for carol", CreatedBy: "alice", AssignedTo: domain.AssignedToUsers("carol"),
	}); err != nil {
		t.Fatalf("create action: %v", err)
	}
	if _, err := store.CreateAction(ctx, boardID, storage.NewActionParams{
		Title: "for everyone", CreatedBy: "alice", AssignedTo: domain.AssignedToEveryone(),
	}); err != nil {
		t.Fatalf("create action: %v", err)
	}

	rec := doJSON(t, e, http.MethodGet, "/api/boards/"+boardID+"/actions?assignee=bob", "bob", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get actions: status %d", rec.Code)
	}
	var actions []domain.Action
	decodeJSON(t, rec, &actions)
	if len(actions) != 2 {
		t.Fatalf("assignee filter returned %d actions, want 2", len(actions))
	}
}

func TestActionStatsEndpoint(t *testing.T) {
	e, store := newTestServer(t)
	ctx := context.Background()
	boardID := createTestBoard(t, e, "Sprint 5", "alice", []string{"Good", "Bad"})

	a, err := store.CreateAction(ctx, boardID, storage.NewActionParams{
		Title: "one", CreatedBy: "bob", LinkedNoteColumn: "Bad",
	})
	if err != nil {
		t.Fatalf("create action: %v", err)
	}
	if _, err := store.CreateAction(ctx, boardID, storage.NewActionParams{Title: "two", CreatedBy: "bob"}); err != nil {
		t.Fatalf("create action: %v", err)
	}
	if err := store.ApproveAction(ctx, boardID, a.ID, "alice"); err != nil {
		t.Fatalf("approve action: %v", err)
	}

	rec := doJSON(t, e, http.MethodGet, "/api/boards/"+boardID+"/actions/stats", "alice", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: status %d, body %s", rec.Code, rec.Body.String())
	}
	var stats domain.Stats
	decodeJSON(t, rec, &stats)
	if stats.Total != 2 || stats.Approved != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.ByColumn["Bad"] != 1 {
		t.Fatalf("byColumn missing linked note column: %+v", stats.ByColumn)
	}
}

func TestHealthz(t *testing.T) {
	e, _ := newTestServer(t)
	rec := doJSON(t, e, http.MethodGet, "/healthz", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: status %d", rec.Code)
	}
}
