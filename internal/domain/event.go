package domain

import "github.com/google/uuid"

const (
	EventNameGradeUpdated       = "grade.updated"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

// EventGradeUpdated is published once a submission has been committed.
type EventGradeUpdated struct {
	SubmissionID uuid.UUID
	Student      Identity
	Grade        Grade
}

func (EventGradeUpdated) Name() string { return EventNameGradeUpdated }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
