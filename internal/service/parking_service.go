package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/guregu/null.v4"

	"parking_backend/internal/domain"
	"parking_backend/internal/repository"
)

// SpotEventPublisher receives every committed spot transition.
type SpotEventPublisher interface {
	Publish(event domain.SpotEvent)
}

type ParkingService struct {
	spots      repository.SpotRepository
	sessions   repository.SessionRepository
	ledger     repository.SpotLedger
	publisher  SpotEventPublisher
	hourlyRate float64
	timeout    time.Duration

	now   func() time.Time
	newID func() string
}

func NewParkingService(store repository.Store, hourlyRate float64, timeout time.Duration, publisher SpotEventPublisher) *ParkingService {
	if hourlyRate <= 0 {
		hourlyRate = domain.DefaultHourlyRate
	}
	return &ParkingService{
		spots:      store.Spots,
		sessions:   store.Sessions,
		ledger:     store.Ledger,
		publisher:  publisher,
		hourlyRate: hourlyRate,
		timeout:    timeout,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

func (s *ParkingService) HourlyRate() float64 {
	return s.hourlyRate
}

func (s *ParkingService) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return withStoreTimeout(ctx, s.timeout)
}

// withStoreTimeout limits one unit of store work. A zero timeout leaves ctx as is.
func withStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// storeErr reports a deadline hit while waiting on the store as ErrStoreUnavailable.
func storeErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrStoreUnavailable) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
	}
	return err
}

func (s *ParkingService) publish(spot *domain.ParkingSpot, at time.Time) {
	if s.publisher == nil || spot == nil {
		return
	}
	s.publisher.Publish(domain.SpotEvent{SpotID: spot.ID, State: spot.State, At: at})
}

// --- Transitions ---

func (s *ParkingService) Reserve(ctx context.Context, spotID, userID string) (*domain.ParkingSpot, error) {
	if strings.TrimSpace(spotID) == "" || strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: spot_id and user_id are required", domain.ErrValidation)
	}
	now := s.now()

	ctx, cancel := s.bound(ctx)
	defer cancel()
	ws, err := s.ledger.RunAtomic(ctx, spotID, func(snap repository.SpotSnapshot) (repository.WriteSet, error) {
		next, err := snap.Spot.Reserve(userID, now)
		if err != nil {
			return repository.WriteSet{}, err
		}
		return repository.WriteSet{Spot: &next}, nil
	})
	if err != nil {
		return nil, s.fail("Reserve", spotID, storeErr(ctx, err))
	}

	log.Printf("ParkingService: spot %s reserved by user %s", spotID, userID)
	s.publish(ws.Spot, now)
	return ws.Spot, nil
}

// RegisterEntry occupies the spot and opens its session in one atomic unit.
func (s *ParkingService) RegisterEntry(ctx context.Context, spotID, userID, plate string) (*domain.ParkingSession, error) {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	if strings.TrimSpace(spotID) == "" || strings.TrimSpace(userID) == "" || plate == "" {
		return nil, fmt.Errorf("%w: spot_id, user_id and plate_number are required", domain.ErrValidation)
	}
	now := s.now()
	sessionID := s.newID()

	ctx, cancel := s.bound(ctx)
	defer cancel()
	ws, err := s.ledger.RunAtomic(ctx, spotID, func(snap repository.SpotSnapshot) (repository.WriteSet, error) {
		next, err := snap.Spot.Enter(userID, plate, now)
		if err != nil {
			return repository.WriteSet{}, err
		}
		session, err := domain.OpenSession(sessionID, spotID, userID, plate, snap.Active, now)
		if err != nil {
			return repository.WriteSet{}, err
		}
		return repository.WriteSet{Spot: &next, OpenSession: &session}, nil
	})
	if err != nil {
		return nil, s.fail("RegisterEntry", spotID, storeErr(ctx, err))
	}

	log.Printf("ParkingService: vehicle %s entered spot %s (session %s)", plate, spotID, sessionID)
	s.publish(ws.Spot, now)
	return ws.OpenSession, nil
}

// RegisterExit frees the spot, closes its session with the computed fare and, when a
// payment method is given, records the payment. All three writes commit together.
func (s *ParkingService) RegisterExit(ctx context.Context, spotID, paymentMethod string) (*domain.ExitResult, error) {
	if strings.TrimSpace(spotID) == "" {
		return nil, fmt.Errorf("%w: spot_id is required", domain.ErrValidation)
	}
	paymentMethod = strings.TrimSpace(paymentMethod)
	now := s.now()
	paymentID := s.newID()

	ctx, cancel := s.bound(ctx)
	defer cancel()
	ws, err := s.ledger.RunAtomic(ctx, spotID, func(snap repository.SpotSnapshot) (repository.WriteSet, error) {
		next, err := snap.Spot.Exit(now)
		if err != nil {
			return repository.WriteSet{}, err
		}
		closed, err := domain.CloseSession(snap.Active, now, s.hourlyRate)
		if err != nil {
			return repository.WriteSet{}, fmt.Errorf("spot %s: %w", spotID, err)
		}
		ws := repository.WriteSet{Spot: &next, CloseSession: &closed}
		if paymentMethod != "" {
			closed.PaymentID = null.StringFrom(paymentID)
			payment := domain.NewPayment(paymentID, closed, paymentMethod, now)
			ws.Payment = &payment
		}
		return ws, nil
	})
	if err != nil {
		return nil, s.fail("RegisterExit", spotID, storeErr(ctx, err))
	}

	closed := ws.CloseSession
	result := &domain.ExitResult{
		HistoryID:     closed.ID,
		EntryTime:     closed.EntryTime,
		ExitTime:      closed.ExitTime.Time,
		DurationHours: closed.DurationHours.Float64,
		Amount:        closed.Amount.Float64,
		PaymentID:     closed.PaymentID.Ptr(),
	}
	log.Printf("ParkingService: spot %s released, session %s closed after %.2fh, amount %.2f",
		spotID, closed.ID, result.DurationHours, result.Amount)
	s.publish(ws.Spot, now)
	return result, nil
}

// fail logs consistency defects loudly and hands every error back unchanged.
func (s *ParkingService) fail(op, spotID string, err error) error {
	switch {
	case domain.IsInternal(err), errors.Is(err, domain.ErrNoActiveSession):
		log.Printf("ParkingService: CONSISTENCY ERROR in %s on spot %s: %v", op, spotID, err)
	case errors.Is(err, repository.ErrStoreUnavailable):
		log.Printf("ParkingService: %s on spot %s: store unavailable: %v", op, spotID, err)
	}
	return err
}

// --- History ---

func (s *ParkingService) QueryHistory(ctx context.Context, filter domain.SessionFilter) ([]domain.ParkingSession, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	sessions, err := s.sessions.Find(ctx, filter)
	if err != nil {
		return nil, storeErr(ctx, err)
	}
	return sessions, nil
}

func (s *ParkingService) GetSession(ctx context.Context, id string) (*domain.ParkingSession, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(ctx, err)
	}
	return session, nil
}

// --- Spots ---

func (s *ParkingService) CreateSpot(ctx context.Context, dto domain.ParkingSpotDTO) (*domain.ParkingSpot, error) {
	number := strings.TrimSpace(dto.Number)
	section := strings.ToUpper(strings.TrimSpace(dto.Section))
	if number == "" || section == "" || dto.Floor < 1 {
		return nil, fmt.Errorf("%w: number, section and a positive floor are required", domain.ErrValidation)
	}
	spot := domain.NewParkingSpot(s.newID(), number, dto.Floor, section, s.now())

	ctx, cancel := s.bound(ctx)
	defer cancel()
	created, err := s.spots.Create(ctx, &spot)
	if err != nil {
		return nil, storeErr(ctx, err)
	}
	log.Printf("ParkingService: created spot %s (floor %d, section %s, number %s)", created.ID, created.Floor, created.Section, created.Number)
	return created, nil
}

// CreateTestSpots seeds floors 1-2, sections A-C, numbers 1-4. Spots that already exist are skipped.
func (s *ParkingService) CreateTestSpots(ctx context.Context) ([]domain.ParkingSpot, error) {
	var created []domain.ParkingSpot
	for floor := 1; floor <= 2; floor++ {
		for _, section := range []string{"A", "B", "C"} {
			for n := 1; n <= 4; n++ {
				spot, err := s.CreateSpot(ctx, domain.ParkingSpotDTO{
					Number:  fmt.Sprintf("%s%d", section, n),
					Floor:   floor,
					Section: section,
				})
				if errors.Is(err, repository.ErrDuplicateEntry) {
					continue
				}
				if err != nil {
					return created, err
				}
				created = append(created, *spot)
			}
		}
	}
	log.Printf("ParkingService: seeded %d test spots", len(created))
	return created, nil
}

func (s *ParkingService) GetSpot(ctx context.Context, id string) (*domain.ParkingSpot, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	spot, err := s.spots.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(ctx, err)
	}
	return spot, nil
}

func (s *ParkingService) ListSpots(ctx context.Context, filter domain.SpotFilter) ([]domain.ParkingSpot, error) {
	if filter.State != nil && !filter.State.Valid() {
		return nil, fmt.Errorf("%w: unknown state %q", domain.ErrValidation, *filter.State)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	spots, err := s.spots.Find(ctx, filter)
	if err != nil {
		return nil, storeErr(ctx, err)
	}
	return spots, nil
}

func (s *ParkingService) Availability(ctx context.Context) (*domain.SpotAvailability, error) {
	spots, err := s.ListSpots(ctx, domain.SpotFilter{})
	if err != nil {
		return nil, err
	}
	counts := &domain.SpotAvailability{Total: len(spots)}
	for _, spot := range spots {
		switch spot.State {
		case domain.SpotAvailable:
			counts.Available++
		case domain.SpotReserved:
			counts.Reserved++
		case domain.SpotOccupied:
			counts.Occupied++
		}
	}
	return counts, nil
}

// RemoveSpot deletes an available spot through the ledger so it cannot race a transition.
func (s *ParkingService) RemoveSpot(ctx context.Context, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.ledger.RunAtomic(ctx, id, func(snap repository.SpotSnapshot) (repository.WriteSet, error) {
		if err := snap.Spot.CanRemove(); err != nil {
			return repository.WriteSet{}, err
		}
		return repository.WriteSet{DeleteSpot: true}, nil
	})
	if err != nil {
		return s.fail("RemoveSpot", id, storeErr(ctx, err))
	}
	log.Printf("ParkingService: removed spot %s", id)
	return nil
}

// Stats aggregates completed sessions whose entry falls in r.
func (s *ParkingService) Stats(ctx context.Context, r domain.DateRange) (*domain.ParkingStats, error) {
	completed := domain.SessionCompleted
	sessions, err := s.QueryHistory(ctx, domain.SessionFilter{Status: &completed})
	if err != nil {
		return nil, err
	}
	stats := &domain.ParkingStats{
		PeakHours:    make(map[int]int),
		PopularSpots: make(map[string]int),
	}
	var totalHours float64
	for _, session := range sessions {
		if !r.Contains(session.EntryTime) {
			continue
		}
		stats.TotalParkings++
		stats.Revenue += session.Amount.Float64
		totalHours += session.DurationHours.Float64
		stats.PeakHours[session.EntryTime.Hour()]++
		stats.PopularSpots[session.SpotID]++
	}
	if stats.TotalParkings > 0 {
		stats.AverageDuration = totalHours / float64(stats.TotalParkings)
	}
	return stats, nil
}
