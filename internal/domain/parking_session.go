package domain

import (
	"fmt"
	"time"

	"gopkg.in/guregu/null.v4"
)

type ParkingSessionStatus string

const (
	SessionActive    ParkingSessionStatus = "active"
	SessionCompleted ParkingSessionStatus = "completed"
)

// ParkingSession is one occupancy of a spot, from entry to exit. Sessions are closed, never deleted.
type ParkingSession struct {
	ID            string               `json:"id"`
	SpotID        string               `json:"parking_spot_id"`
	UserID        string               `json:"user_id"`
	Plate         string               `json:"plate_number"`
	EntryTime     time.Time            `json:"entry_time"`
	ExitTime      null.Time            `json:"exit_time"`
	DurationHours null.Float           `json:"duration"`
	Amount        null.Float           `json:"amount"`
	Status        ParkingSessionStatus `json:"status"`
	PaymentID     null.String          `json:"payment_id,omitempty"`
}

// OpenSession starts a session for a spot whose enter transition has already been won.
// active is the session the store currently holds open for the spot, if any.
func OpenSession(id, spotID, userID, plate string, active *ParkingSession, now time.Time) (ParkingSession, error) {
	if active != nil {
		return ParkingSession{}, fmt.Errorf("%w: spot %s, session %s", ErrDuplicateActiveSession, spotID, active.ID)
	}
	return ParkingSession{
		ID:        id,
		SpotID:    spotID,
		UserID:    userID,
		Plate:     plate,
		EntryTime: now,
		Status:    SessionActive,
	}, nil
}

// CloseSession stamps the exit, duration and fare onto the active session.
func CloseSession(active *ParkingSession, now time.Time, hourlyRate float64) (ParkingSession, error) {
	if active == nil {
		return ParkingSession{}, ErrNoActiveSession
	}
	if active.Status != SessionActive {
		return ParkingSession{}, fmt.Errorf("%w: session %s is %s", ErrInconsistentState, active.ID, active.Status)
	}
	exit := now
	if exit.Before(active.EntryTime) {
		exit = active.EntryTime
	}
	hours := exit.Sub(active.EntryTime).Hours()

	closed := *active
	closed.ExitTime = null.TimeFrom(exit)
	closed.DurationHours = null.FloatFrom(hours)
	closed.Amount = null.FloatFrom(ComputeFare(hours, hourlyRate))
	closed.Status = SessionCompleted
	return closed, nil
}

type SessionFilter struct {
	UserID *string               `form:"userId"`
	Plate  *string               `form:"plateNumber"`
	Status *ParkingSessionStatus `form:"status"`
	SpotID *string               `form:"spotId"`
}

// Matches is used by stores that filter in process.
func (f SessionFilter) Matches(s ParkingSession) bool {
	if f.UserID != nil && s.UserID != *f.UserID {
		return false
	}
	if f.Plate != nil && s.Plate != *f.Plate {
		return false
	}
	if f.Status != nil && s.Status != *f.Status {
		return false
	}
	if f.SpotID != nil && s.SpotID != *f.SpotID {
		return false
	}
	return true
}

// ExitResult is what RegisterExit hands back to the caller.
type ExitResult struct {
	HistoryID     string    `json:"history_id"`
	EntryTime     time.Time `json:"entry_time"`
	ExitTime      time.Time `json:"exit_time"`
	DurationHours float64   `json:"duration"`
	Amount        float64   `json:"amount"`
	PaymentID     *string   `json:"payment_id"`
}

type ParkingStats struct {
	TotalParkings   int            `json:"total_parkings"`
	Revenue         float64        `json:"revenue"`
	AverageDuration float64        `json:"average_duration"`
	PeakHours       map[int]int    `json:"peak_hours"`
	PopularSpots    map[string]int `json:"popular_spots"`
}

type DateRange struct {
	Start *time.Time `form:"startDate" time_format:"2006-01-02"`
	End   *time.Time `form:"endDate" time_format:"2006-01-02"`
}

// Contains treats End as inclusive of the whole day.
func (r DateRange) Contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && !t.Before(r.End.AddDate(0, 0, 1)) {
		return false
	}
	return true
}
