// README: Driver route state, order candidates and detour results.
package detour

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"smartdispatch/internal/types"
)

var ErrInvalidRequest = errors.New("invalid request")

var validate = validator.New()

// DriverState is the committed route. Pickups[i] pairs with Deliveries[i];
// an empty pickup means the rider is already aboard.
type DriverState struct {
	Location   string   `json:"driver_loc" validate:"required"`
	Pickups    []string `json:"pickups"`
	Deliveries []string `json:"deliveries" validate:"dive,required"`
}

func (d DriverState) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if len(d.Pickups) != len(d.Deliveries) {
		return fmt.Errorf("%w: %d pickups but %d deliveries", ErrInvalidRequest, len(d.Pickups), len(d.Deliveries))
	}
	return nil
}

// Stops is the number of committed orders.
func (d DriverState) Stops() int {
	return len(d.Deliveries)
}

// OrderCandidate is a newly observed order. RawPrice is kept as observed and
// feeds the fingerprint.
type OrderCandidate struct {
	Pickup   string      `json:"pickup" validate:"required"`
	Delivery string      `json:"delivery" validate:"required"`
	Price    types.Money `json:"-"`
	RawPrice string      `json:"price" validate:"required"`
}

// NewOrderCandidate parses the observed price.
func NewOrderCandidate(pickup, delivery, rawPrice string) (OrderCandidate, error) {
	c := OrderCandidate{
		Pickup:   strings.TrimSpace(pickup),
		Delivery: strings.TrimSpace(delivery),
		RawPrice: strings.TrimSpace(rawPrice),
	}
	if err := validate.Struct(c); err != nil {
		return OrderCandidate{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	price, err := types.ParseMoney(c.RawPrice)
	if err != nil {
		return OrderCandidate{}, fmt.Errorf("%w: price %q: %v", ErrInvalidRequest, rawPrice, err)
	}
	c.Price = price
	return c, nil
}

// Fingerprint identifies the order for deduplication. Any change to the
// addresses or the price string yields a new fingerprint.
func (c OrderCandidate) Fingerprint() string {
	sum := md5.Sum([]byte(c.Pickup + "_" + c.Delivery + "_" + c.RawPrice))
	return hex.EncodeToString(sum[:])
}

// Result compares the route with and without a candidate.
type Result struct {
	// Infeasible is set when no valid merged route exists.
	Infeasible      bool
	ExtraSeconds    int64
	BaselineSeconds int64
	ExtendedSeconds int64
	// Route lists the addresses of the extended route in visiting order.
	Route []string
}

func (r *Result) ExtraMinutes() float64 {
	return Minutes(r.ExtraSeconds)
}

// Minutes converts seconds to minutes rounded to one decimal.
func Minutes(seconds int64) float64 {
	return math.Round(float64(seconds)/6) / 10
}

// Handoff is the drop-off the driver is predicted to complete next.
type Handoff struct {
	Node    int
	Address string
	// Seconds is the drive time from the current location, through the
	// pickup when the rider is not yet aboard.
	Seconds int64
}

// Preview is the current route without any candidate.
type Preview struct {
	Route        []string `json:"route_addresses"`
	TotalSeconds int64    `json:"total_time_seconds"`
}
