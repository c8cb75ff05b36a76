package domain

import (
	"fmt"
	"time"

	"gopkg.in/guregu/null.v4"
)

type SpotState string

const (
	SpotAvailable SpotState = "available"
	SpotReserved  SpotState = "reserved"
	SpotOccupied  SpotState = "occupied"
)

func (s SpotState) Valid() bool {
	switch s {
	case SpotAvailable, SpotReserved, SpotOccupied:
		return true
	}
	return false
}

type ParkingSpot struct {
	ID              string      `json:"id"`
	Number          string      `json:"number"`
	Floor           int         `json:"floor"`
	Section         string      `json:"section"`
	State           SpotState   `json:"status"`
	OccupantID      null.String `json:"user_id"`
	Plate           null.String `json:"plate_number"`
	EntryTime       null.Time   `json:"entry_time"`
	ReservationTime null.Time   `json:"reservation_time"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`

	// Version is bumped by the store on every write and used for compare-and-swap.
	Version int64 `json:"-"`
}

// NewParkingSpot returns a spot in its initial state.
func NewParkingSpot(id, number string, floor int, section string, now time.Time) ParkingSpot {
	return ParkingSpot{
		ID:        id,
		Number:    number,
		Floor:     floor,
		Section:   section,
		State:     SpotAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Reserve moves an available spot to reserved for userID.
func (s ParkingSpot) Reserve(userID string, now time.Time) (ParkingSpot, error) {
	if userID == "" {
		return s, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if s.State != SpotAvailable {
		return s, fmt.Errorf("%w: spot %s is %s, cannot reserve", ErrInvalidTransition, s.ID, s.State)
	}
	next := s
	next.State = SpotReserved
	next.OccupantID = null.StringFrom(userID)
	next.Plate = null.String{}
	next.EntryTime = null.Time{}
	next.ReservationTime = null.TimeFrom(now)
	next.UpdatedAt = now
	return next, nil
}

// Enter occupies the spot. A reserved spot may only be entered by the user holding it.
func (s ParkingSpot) Enter(userID, plate string, now time.Time) (ParkingSpot, error) {
	if userID == "" || plate == "" {
		return s, fmt.Errorf("%w: user_id and plate_number are required", ErrValidation)
	}
	switch s.State {
	case SpotAvailable:
	case SpotReserved:
		if s.OccupantID.String != userID {
			return s, fmt.Errorf("%w: spot %s is reserved by another user", ErrInvalidTransition, s.ID)
		}
	default:
		return s, fmt.Errorf("%w: spot %s is %s, cannot enter", ErrInvalidTransition, s.ID, s.State)
	}
	next := s
	next.State = SpotOccupied
	next.OccupantID = null.StringFrom(userID)
	next.Plate = null.StringFrom(plate)
	next.EntryTime = null.TimeFrom(now)
	next.ReservationTime = null.Time{}
	next.UpdatedAt = now
	return next, nil
}

// Exit frees an occupied spot.
func (s ParkingSpot) Exit(now time.Time) (ParkingSpot, error) {
	if s.State != SpotOccupied {
		return s, fmt.Errorf("%w: spot %s is %s, no vehicle to exit", ErrInvalidTransition, s.ID, s.State)
	}
	next := s
	next.State = SpotAvailable
	next.OccupantID = null.String{}
	next.Plate = null.String{}
	next.EntryTime = null.Time{}
	next.ReservationTime = null.Time{}
	next.UpdatedAt = now
	return next, nil
}

// CanRemove reports whether the spot may be deleted administratively.
func (s ParkingSpot) CanRemove() error {
	if s.State != SpotAvailable {
		return fmt.Errorf("%w: spot %s is %s, only available spots can be removed", ErrInvalidTransition, s.ID, s.State)
	}
	return nil
}

// CheckInvariant verifies the occupant/plate/entry nullability rules for the current state.
func (s ParkingSpot) CheckInvariant() error {
	occ, plate, entry := s.OccupantID.Valid, s.Plate.Valid, s.EntryTime.Valid
	switch s.State {
	case SpotAvailable:
		if occ || plate || entry {
			return fmt.Errorf("%w: available spot %s carries occupancy data", ErrInconsistentState, s.ID)
		}
	case SpotReserved:
		if !occ || plate || entry {
			return fmt.Errorf("%w: reserved spot %s has wrong occupancy data", ErrInconsistentState, s.ID)
		}
	case SpotOccupied:
		if !occ || !plate || !entry {
			return fmt.Errorf("%w: occupied spot %s is missing occupancy data", ErrInconsistentState, s.ID)
		}
	default:
		return fmt.Errorf("%w: spot %s has unknown state %q", ErrInconsistentState, s.ID, s.State)
	}
	return nil
}

type ParkingSpotDTO struct {
	Number  string `json:"number" binding:"required"`
	Floor   int    `json:"floor" binding:"required"`
	Section string `json:"section" binding:"required"`
}

type SpotFilter struct {
	State *SpotState `form:"state"`
}

type SpotAvailability struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Reserved  int `json:"reserved"`
	Occupied  int `json:"occupied"`
}

// Request bodies for the spot transitions. UserID falls back to the caller.
type ReserveSpotDTO struct {
	SpotID string `json:"spot_id" binding:"required"`
	UserID string `json:"user_id"`
}

type RegisterEntryDTO struct {
	SpotID      string `json:"spot_id" binding:"required"`
	UserID      string `json:"user_id"`
	PlateNumber string `json:"plate_number" binding:"required,plate"`
}

type RegisterExitDTO struct {
	SpotID        string `json:"spot_id" binding:"required"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

// SpotEvent is pushed to websocket listeners after every successful transition.
type SpotEvent struct {
	SpotID string    `json:"spot_id"`
	State  SpotState `json:"state"`
	At     time.Time `json:"at"`
}
