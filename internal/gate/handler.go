package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository"
)

// ErrMalformedEvent marks a message that can never be processed.
var ErrMalformedEvent = errors.New("malformed gate event")

// ParkingOperations is the part of the parking service gate events drive.
type ParkingOperations interface {
	RegisterEntry(ctx context.Context, spotID, userID, plate string) (*domain.ParkingSession, error)
	RegisterExit(ctx context.Context, spotID, paymentMethod string) (*domain.ExitResult, error)
}

type EventHandler struct {
	parking ParkingOperations
}

func NewEventHandler(parking ParkingOperations) *EventHandler {
	return &EventHandler{parking: parking}
}

// Handle applies one gate message. A nil return means the message is done with, including
// events rejected by the spot state machine; an error means it should be redelivered.
func (h *EventHandler) Handle(ctx context.Context, body string) error {
	event, err := decodeEvent(body)
	if err != nil {
		log.Printf("Gate: dropping message: %v", err)
		return nil
	}

	switch event.Type {
	case "entry":
		var session *domain.ParkingSession
		session, err = h.parking.RegisterEntry(ctx, event.SpotID, event.UserID, event.Plate)
		if err == nil {
			log.Printf("Gate: entry on spot %s opened session %s", event.SpotID, session.ID)
		}
	case "exit":
		var result *domain.ExitResult
		result, err = h.parking.RegisterExit(ctx, event.SpotID, event.PaymentMethod)
		if err == nil {
			log.Printf("Gate: exit on spot %s closed session %s, amount %.2f", event.SpotID, result.HistoryID, result.Amount)
		}
	}

	if err == nil {
		return nil
	}
	if retryable(err) {
		return fmt.Errorf("gate %s on spot %s: %w", event.Type, event.SpotID, err)
	}
	log.Printf("Gate: %s on spot %s rejected: %v", event.Type, event.SpotID, err)
	return nil
}

func decodeEvent(body string) (domain.GateEvent, error) {
	var event domain.GateEvent
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		return event, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.Type != "entry" && event.Type != "exit" {
		return event, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, event.Type)
	}
	if event.SpotID == "" {
		return event, fmt.Errorf("%w: spot_id is missing", ErrMalformedEvent)
	}
	return event, nil
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNoActiveSession),
		errors.Is(err, repository.ErrNotFound),
		domain.IsInternal(err):
		return false
	}
	return true
}
