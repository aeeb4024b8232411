package logistics

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/example/ec-cart-sync/internal/infrastructure/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CollectionPath is the document collection holding shipments
const CollectionPath = "shipments/"

type ShipmentStatus string

const (
	StatusPending        ShipmentStatus = "pending"
	StatusProcessing     ShipmentStatus = "processing"
	StatusInTransit      ShipmentStatus = "in_transit"
	StatusOutForDelivery ShipmentStatus = "out_for_delivery"
	StatusDelivered      ShipmentStatus = "delivered"
)

var (
	ErrShipmentNotFound = errors.New("shipment not found")
	ErrAlreadyDelivered = errors.New("shipment is already delivered")
)

// nextStatus is the single forward step from each non-terminal status
var nextStatus = map[ShipmentStatus]ShipmentStatus{
	StatusPending:        StatusProcessing,
	StatusProcessing:     StatusInTransit,
	StatusInTransit:      StatusOutForDelivery,
	StatusOutForDelivery: StatusDelivered,
}

type HistoryEntry struct {
	Timestamp   time.Time      `json:"timestamp"`
	Status      ShipmentStatus `json:"status"`
	Location    string         `json:"location"`
	Description string         `json:"description"`
}

type Shipment struct {
	TrackingNumber    string          `json:"trackingNumber"`
	Origin            Address         `json:"origin"`
	Destination       Address         `json:"destination"`
	Weight            decimal.Decimal `json:"weight"`
	Courier           Courier         `json:"courier"`
	Status            ShipmentStatus  `json:"status"`
	CurrentLocation   string          `json:"currentLocation"`
	CreatedAt         time.Time       `json:"createdAt"`
	EstimatedDelivery time.Time       `json:"estimatedDelivery"`
	History           []HistoryEntry  `json:"history"`
}

func ShipmentPath(trackingNumber string) string {
	return CollectionPath + trackingNumber
}

type Service struct {
	store    store.DocumentStore
	distance DistanceCalculator
	couriers map[Courier]CourierRate
	now      func() time.Time

	// serializes read-modify-write of shipment history
	mu sync.Mutex
}

func NewService(ds store.DocumentStore, distance DistanceCalculator) *Service {
	if distance == nil {
		distance = DefaultDistance
	}
	return &Service{
		store:    ds,
		distance: distance,
		couriers: DefaultCouriers,
		now:      time.Now,
	}
}

// Quote prices the parcel with every courier, ordered by courier name
func (s *Service) Quote(ctx context.Context, origin, destination Address, weightKg decimal.Decimal) ([]Rate, error) {
	if !weightKg.IsPositive() {
		return nil, ErrInvalidWeight
	}
	km, err := s.distance.Distance(ctx, origin, destination)
	if err != nil {
		log.Printf("[Logistics] Error calculating distance %s -> %s: %v", origin.City, destination.City, err)
		return nil, fmt.Errorf("failed to calculate distance: %w", err)
	}

	rates := make([]Rate, 0, len(s.couriers))
	for _, c := range sortedCouriers(s.couriers) {
		rates = append(rates, price(c, s.couriers[c], weightKg, km))
	}
	return rates, nil
}

// CreateShipment books a pending shipment with the courier
func (s *Service) CreateShipment(ctx context.Context, origin, destination Address, weightKg decimal.Decimal, courier Courier) (*Shipment, error) {
	tariff, ok := s.couriers[courier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCourier, courier)
	}
	if !weightKg.IsPositive() {
		return nil, ErrInvalidWeight
	}
	km, err := s.distance.Distance(ctx, origin, destination)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate distance: %w", err)
	}
	rate := price(courier, tariff, weightKg, km)

	now := s.now().UTC()
	sh := &Shipment{
		TrackingNumber:    TrackingNumber(courier, now),
		Origin:            origin,
		Destination:       destination,
		Weight:            weightKg,
		Courier:           courier,
		Status:            StatusPending,
		CurrentLocation:   origin.City,
		CreatedAt:         now,
		EstimatedDelivery: now.AddDate(0, 0, rate.EstimatedDays),
		History: []HistoryEntry{{
			Timestamp:   now,
			Status:      StatusPending,
			Location:    origin.City,
			Description: "Shipment created",
		}},
	}

	if err := s.store.Set(ctx, ShipmentPath(sh.TrackingNumber), sh, false); err != nil {
		log.Printf("[Logistics] Error creating shipment %s: %v", sh.TrackingNumber, err)
		return nil, fmt.Errorf("failed to create shipment: %w", err)
	}
	log.Printf("[Logistics] Shipment %s created with %s", sh.TrackingNumber, courier)
	return sh, nil
}

func (s *Service) Track(ctx context.Context, trackingNumber string) (*Shipment, error) {
	doc, err := s.store.Get(ctx, ShipmentPath(trackingNumber))
	if errors.Is(err, store.ErrDocumentNotFound) {
		return nil, ErrShipmentNotFound
	}
	if err != nil {
		log.Printf("[Logistics] Error tracking shipment %s: %v", trackingNumber, err)
		return nil, fmt.Errorf("failed to track shipment: %w", err)
	}
	var sh Shipment
	if err := doc.Decode(&sh); err != nil {
		return nil, fmt.Errorf("failed to decode shipment %s: %w", trackingNumber, err)
	}
	return &sh, nil
}

// AdvanceShipment moves the shipment one step along
// pending -> processing -> in_transit -> out_for_delivery -> delivered
// and records where it happened.
func (s *Service) AdvanceShipment(ctx context.Context, trackingNumber, location, description string) (*Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, err := s.Track(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	next, ok := nextStatus[sh.Status]
	if !ok {
		return nil, ErrAlreadyDelivered
	}
	if location == "" {
		location = sh.CurrentLocation
	}
	if description == "" {
		description = "Status changed to " + string(next)
	}

	sh.Status = next
	sh.CurrentLocation = location
	sh.History = append(sh.History, HistoryEntry{
		Timestamp:   s.now().UTC(),
		Status:      next,
		Location:    location,
		Description: description,
	})
	if err := s.store.Set(ctx, ShipmentPath(trackingNumber), sh, false); err != nil {
		log.Printf("[Logistics] Error updating shipment %s: %v", trackingNumber, err)
		return nil, fmt.Errorf("failed to update shipment: %w", err)
	}
	return sh, nil
}

// TrackingNumber is the courier's first two letters upper-cased, the last
// eight digits of the Unix millisecond clock and three random digits.
func TrackingNumber(courier Courier, at time.Time) string {
	prefix := strings.ToUpper(string(courier))
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	u := uuid.New()
	suffix := binary.BigEndian.Uint16(u[:2]) % 1000
	return fmt.Sprintf("%s%08d%03d", prefix, at.UnixMilli()%100000000, suffix)
}
