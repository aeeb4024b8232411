package logistics

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

type Courier string

const (
	CourierJTExpress    Courier = "jt_express"
	CourierNinjaVan     Courier = "ninja_van"
	CourierFlashExpress Courier = "flash_express"
	CourierXDELogistics Courier = "xde_logistics"
	CourierLBC          Courier = "lbc"
)

var (
	ErrInvalidWeight  = errors.New("weight must be greater than zero")
	ErrUnknownCourier = errors.New("unknown courier")
)

// CourierRate is a courier's tariff in PHP
type CourierRate struct {
	BaseRate  decimal.Decimal
	PerKg     decimal.Decimal
	MaxWeight decimal.Decimal
}

// DefaultCouriers are the supported couriers and their tariffs
var DefaultCouriers = map[Courier]CourierRate{
	CourierJTExpress:    {BaseRate: decimal.NewFromInt(50), PerKg: decimal.NewFromInt(15), MaxWeight: decimal.NewFromInt(50)},
	CourierNinjaVan:     {BaseRate: decimal.NewFromInt(60), PerKg: decimal.NewFromInt(18), MaxWeight: decimal.NewFromInt(50)},
	CourierFlashExpress: {BaseRate: decimal.NewFromInt(45), PerKg: decimal.NewFromInt(12), MaxWeight: decimal.NewFromInt(50)},
	CourierXDELogistics: {BaseRate: decimal.NewFromInt(55), PerKg: decimal.NewFromInt(16), MaxWeight: decimal.NewFromInt(50)},
	CourierLBC:          {BaseRate: decimal.NewFromInt(65), PerKg: decimal.NewFromInt(20), MaxWeight: decimal.NewFromInt(50)},
}

var (
	distanceStepKm   = decimal.NewFromInt(10)
	distanceStepRate = decimal.NewFromInt(5)
	kmPerDay         = decimal.NewFromInt(100)
)

// Address is a Philippine postal address
type Address struct {
	Street     string `json:"street"`
	Barangay   string `json:"barangay"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postalCode"`
	Region     string `json:"region"`
	Country    string `json:"country"`
}

// Rate is one courier's quote
type Rate struct {
	Courier       Courier         `json:"courier"`
	BaseRate      decimal.Decimal `json:"baseRate"`
	WeightRate    decimal.Decimal `json:"weightRate"`
	DistanceRate  decimal.Decimal `json:"distanceRate"`
	Total         decimal.Decimal `json:"total"`
	EstimatedDays int             `json:"estimatedDays"`
}

// DistanceCalculator measures road distance in kilometres
type DistanceCalculator interface {
	Distance(ctx context.Context, origin, destination Address) (decimal.Decimal, error)
}

// FixedDistance reports the same distance for every pair of addresses
type FixedDistance decimal.Decimal

// DefaultDistance is used until a geodistance provider is wired in
var DefaultDistance = FixedDistance(decimal.NewFromInt(100))

func (f FixedDistance) Distance(ctx context.Context, origin, destination Address) (decimal.Decimal, error) {
	return decimal.Decimal(f), nil
}

// price computes a courier's rate for weightKg over distanceKm:
// base + min(weight, max) * perKg + ceil(distance / 10) * 5, delivered in
// ceil(distance / 100) + 1 days.
func price(courier Courier, r CourierRate, weightKg, distanceKm decimal.Decimal) Rate {
	weightRate := decimal.Min(weightKg, r.MaxWeight).Mul(r.PerKg)
	distanceRate := distanceKm.Div(distanceStepKm).Ceil().Mul(distanceStepRate)
	return Rate{
		Courier:       courier,
		BaseRate:      r.BaseRate,
		WeightRate:    weightRate,
		DistanceRate:  distanceRate,
		Total:         r.BaseRate.Add(weightRate).Add(distanceRate),
		EstimatedDays: int(distanceKm.Div(kmPerDay).Ceil().IntPart()) + 1,
	}
}

func sortedCouriers(couriers map[Courier]CourierRate) []Courier {
	out := make([]Courier, 0, len(couriers))
	for c := range couriers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
