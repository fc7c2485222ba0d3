package domain

// Note is a single participant-submitted card within a board column.
// VoteCount always equals the size of Voters; the storage layer maintains
// the two in one atomic commit.
type Note struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	Column      string   `json:"column"`
	CreatedBy   string   `json:"createdBy"`
	CreatedAt   int64    `json:"createdAt"`
	VoteCount   int      `json:"voteCount"`
	Voters      []string `json:"voters"`
	Highlighted bool     `json:"highlighted,omitempty"`
}

// HasVoter reports whether the given user currently has an active vote on
// the note.
func (n *Note) HasVoter(username string) bool {
	for _, v := range n.Voters {
		if v == username {
			return true
		}
	}
	return false
}

// ActiveVotes counts the user's active votes across the supplied notes.
func ActiveVotes(notes []Note, username string) int {
	count := 0
	for i := range notes {
		if notes[i].HasVoter(username) {
			count++
		}
	}
	return count
}

// CanUserVote reports whether the user still has vote budget left across
// the supplied note collection. Callers must pass a fresh snapshot; the
// result is never cached.
func CanUserVote(notes []Note, username string, maxVotes int) bool {
	if maxVotes <= 0 {
		return false
	}
	return ActiveVotes(notes, username) < maxVotes
}

// FilterNotesForViewer projects the notes a given viewer is allowed to
// see under the board settings. With hideCardsFromOthers on, only the
// viewer's own cards pass; the admin is governed by the same rule. With
// showOnlyHighlighted on, unhighlighted cards are dropped.
func FilterNotesForViewer(notes []Note, viewer string, settings Settings) []Note {
	out := make([]Note, 0, len(notes))
	for _, n := range notes {
		if settings.HideCardsFromOthers && n.CreatedBy != viewer {
			continue
		}
		if settings.ShowOnlyHighlighted && !n.Highlighted {
			continue
		}
		out = append(out, n)
	}
	return out
}
