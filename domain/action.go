package domain

import "strings"

// ActionStatus is the lifecycle state of a follow-up action.
type ActionStatus string

const (
	StatusProposed   ActionStatus = "proposed"
	StatusTodo       ActionStatus = "todo"
	StatusInProgress ActionStatus = "in-progress"
	StatusDone       ActionStatus = "done"
)

var statusOrder = map[ActionStatus]int{
	StatusProposed:   0,
	StatusTodo:       1,
	StatusInProgress: 2,
	StatusDone:       3,
}

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s ActionStatus) bool {
	_, ok := statusOrder[s]
	return ok
}

// CanTransition reports whether moving from one status to another is a
// legal forward step. Same-state writes are allowed; the proposed→todo
// step is reserved for approval and never reachable through a plain
// update.
func CanTransition(from, to ActionStatus) bool {
	fo, ok := statusOrder[from]
	if !ok {
		return false
	}
	to2, ok := statusOrder[to]
	if !ok {
		return false
	}
	if from == StatusProposed || to == StatusProposed {
		return from == to
	}
	return to2 >= fo
}

// ActionPriority is the urgency marker on an action.
type ActionPriority string

const (
	PriorityLow    ActionPriority = "low"
	PriorityMedium ActionPriority = "medium"
	PriorityHigh   ActionPriority = "high"
)

// ValidPriority reports whether p is a known priority.
func ValidPriority(p ActionPriority) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Assignment is the tagged "assigned to" value: either the whole team or
// a specific set of display names, never a magic string.
type Assignment struct {
	Everyone bool     `json:"everyone,omitempty"`
	Users    []string `json:"users,omitempty"`
}

// AssignedToEveryone is the whole-team assignment.
func AssignedToEveryone() Assignment { return Assignment{Everyone: true} }

// AssignedToUsers assigns to the given display names.
func AssignedToUsers(users ...string) Assignment { return Assignment{Users: users} }

// Includes reports whether the assignment covers the given user.
func (a Assignment) Includes(username string) bool {
	if a.Everyone {
		return true
	}
	for _, u := range a.Users {
		if u == username {
			return true
		}
	}
	return false
}

// Validate rejects assignments that are simultaneously whole-team and
// user-specific, or that list empty names.
func (a Assignment) Validate() error {
	if a.Everyone && len(a.Users) > 0 {
		return ValidationError{Field: "assignedTo", Reason: "cannot combine everyone with specific users"}
	}
	for _, u := range a.Users {
		if strings.TrimSpace(u) == "" {
			return ValidationError{Field: "assignedTo", Reason: "user names must not be empty"}
		}
	}
	return nil
}

// Action is a follow-up task derived from a note, subject to an approval
// workflow. ApprovedBy/ApprovedAt are set if and only if IsApproved, and
// an unapproved action is always in the proposed state.
type Action struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	Description       string         `json:"description,omitempty"`
	CreatedBy         string         `json:"createdBy"`
	CreatedAt         int64          `json:"createdAt"`
	LinkedNoteID      string         `json:"linkedNoteId,omitempty"`
	LinkedNoteContent string         `json:"linkedNoteContent,omitempty"`
	LinkedNoteColumn  string         `json:"linkedNoteColumn,omitempty"`
	AssignedTo        Assignment     `json:"assignedTo"`
	Status            ActionStatus   `json:"status"`
	IsApproved        bool           `json:"isApproved"`
	ApprovedBy        string         `json:"approvedBy,omitempty"`
	ApprovedAt        int64          `json:"approvedAt,omitempty"`
	DueDate           string         `json:"dueDate,omitempty"`
	Priority          ActionPriority `json:"priority"`
}

// ActionUpdate is a partial action change. Nil fields are left untouched.
// Status changes are validated against the forward-only state machine by
// the repository before the write.
type ActionUpdate struct {
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	AssignedTo  *Assignment     `json:"assignedTo,omitempty"`
	DueDate     *string         `json:"dueDate,omitempty"`
	Priority    *ActionPriority `json:"priority,omitempty"`
	Status      *ActionStatus   `json:"status,omitempty"`
}

// Empty reports whether the update names no fields at all.
func (u ActionUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.AssignedTo == nil &&
		u.DueDate == nil && u.Priority == nil && u.Status == nil
}

// Validate checks the update's ranges before any store interaction.
func (u ActionUpdate) Validate() error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if u.Priority != nil && !ValidPriority(*u.Priority) {
		return ValidationError{Field: "priority", Reason: "unknown priority"}
	}
	if u.Status != nil && !ValidStatus(*u.Status) {
		return ValidationError{Field: "status", Reason: "unknown status"}
	}
	if u.AssignedTo != nil {
		if err := u.AssignedTo.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Stats aggregates an action collection for reporting. Recomputed on every
// call over the supplied snapshot; nothing is maintained incrementally.
type Stats struct {
	Total      int                    `json:"total"`
	Approved   int                    `json:"approved"`
	Pending    int                    `json:"pending"`
	ByStatus   map[ActionStatus]int   `json:"byStatus"`
	ByColumn   map[string]int         `json:"byColumn"`
	ByPriority map[ActionPriority]int `json:"byPriority"`
}

// ActionStatistics aggregates counts by approval, status, priority and the
// column the linked note came from.
func ActionStatistics(actions []Action) Stats {
	stats := Stats{
		ByStatus:   make(map[ActionStatus]int),
		ByColumn:   make(map[string]int),
		ByPriority: make(map[ActionPriority]int),
	}
	for i := range actions {
		a := &actions[i]
		stats.Total++
		if a.IsApproved {
			stats.Approved++
		} else {
			stats.Pending++
		}
		stats.ByStatus[a.Status]++
		if a.LinkedNoteColumn != "" {
			stats.ByColumn[a.LinkedNoteColumn]++
		}
		stats.ByPriority[a.Priority]++
	}
	return stats
}

// FilterActionsByUser returns the actions assigned to the given user,
// including whole-team assignments.
func FilterActionsByUser(actions []Action, username string) []Action {
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		if a.AssignedTo.Includes(username) {
			out = append(out, a)
		}
	}
	return out
}
