package model

import "time"

// ClassSession is the bounded resource of the booking engine: a scheduled
// class with a fixed maximum headcount.  OccupiedCount tracks seats that are
// unavailable to new joins, which is the number of confirmed reservations
// plus the number of promotion holds that are awaiting confirmation.  It is
// mutated only by the reservation coordinator.
//
// A walk-in created by staff may push OccupiedCount past MaxCapacity; that
// is an accepted staff override, not a counter bug.
type ClassSession struct {
	ID            uint64    `json:"id"`             // class_sessions.id
	Title         string    `json:"title"`          // class_sessions.title
	CoachName     string    `json:"coach_name"`     // class_sessions.coach_name
	StartsAt      time.Time `json:"starts_at"`      // class_sessions.starts_at
	MaxCapacity   uint32    `json:"max_capacity"`   // class_sessions.max_capacity
	OccupiedCount uint32    `json:"occupied_count"` // class_sessions.occupied_count
	CreatedAt     time.Time `json:"created_at"`     // class_sessions.created_at
	UpdatedAt     time.Time `json:"updated_at"`     // class_sessions.updated_at
}

// SeatsLeft reports how many seats a new join could still claim.  Zero when
// the class is full or over capacity from walk-ins.
func (c *ClassSession) SeatsLeft() uint32 {
	if c.OccupiedCount >= c.MaxCapacity {
		return 0
	}
	return c.MaxCapacity - c.OccupiedCount
}
