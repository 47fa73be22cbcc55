// README: Dispatch state: modes, per-mode thresholds, planned trips and decisions.
package dispatch

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrIllegalModeTransition = errors.New("illegal mode transition")
	ErrTripNotFound          = errors.New("planned trip not found")
	ErrInvalidConfig         = errors.New("invalid mode config")
	ErrSettingsUnavailable   = errors.New("dispatch settings unavailable")
)

var validate = validator.New()

type Mode string

const (
	ModePlan      Mode = "plan"
	ModeThreshold Mode = "threshold"
	ModeLocality  Mode = "locality"
	ModePaused    Mode = "paused"
)

// ParseMode accepts the mode names and the console's legacy aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plan", "mode1":
		return ModePlan, nil
	case "threshold", "mode2":
		return ModeThreshold, nil
	case "locality", "mode3":
		return ModeLocality, nil
	case "paused", "pause":
		return ModePaused, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrIllegalModeTransition, s)
}

// Alias is the console name of the mode.
func (m Mode) Alias() string {
	switch m {
	case ModePlan:
		return "mode1"
	case ModeThreshold:
		return "mode2"
	case ModeLocality:
		return "mode3"
	case ModePaused:
		return "pause"
	}
	return string(m)
}

// ModeAfterStop is the mode a driver lands in after answering a push and
// asking not to continue searching. Locality drivers switch to planning
// ahead; every other mode pauses.
func ModeAfterStop(current Mode) Mode {
	if current == ModeLocality {
		return ModePlan
	}
	return ModePaused
}

// ModeConfig holds per-mode thresholds in minutes; the profit floor is in
// whole currency units.
type ModeConfig struct {
	Mode2DetourMax           float64 `json:"mode2_detour_max"`
	Mode2EasyDetour          float64 `json:"mode2_easy_detour"`
	Mode2HighProfitThreshold float64 `json:"mode2_high_profit_threshold"`
	Mode3RadiusMinutes       float64 `json:"mode3_radius_minutes"`
	Mode3DetourMax           float64 `json:"mode3_detour_max"`
}

func DefaultModeConfig() ModeConfig {
	return ModeConfig{
		Mode2DetourMax:           15,
		Mode2EasyDetour:          10,
		Mode2HighProfitThreshold: 100,
		Mode3RadiusMinutes:       20,
		Mode3DetourMax:           10,
	}
}

func (c ModeConfig) Validate() error {
	for name, v := range map[string]float64{
		"mode2_detour_max":            c.Mode2DetourMax,
		"mode2_easy_detour":           c.Mode2EasyDetour,
		"mode2_high_profit_threshold": c.Mode2HighProfitThreshold,
		"mode3_radius_minutes":        c.Mode3RadiusMinutes,
		"mode3_detour_max":            c.Mode3DetourMax,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}
	return nil
}

// ModeConfigPatch changes only the fields that are set.
type ModeConfigPatch struct {
	Mode2DetourMax           *float64 `json:"mode2_detour_max,omitempty"`
	Mode2EasyDetour          *float64 `json:"mode2_easy_detour,omitempty"`
	Mode2HighProfitThreshold *float64 `json:"mode2_high_profit_threshold,omitempty"`
	Mode3RadiusMinutes       *float64 `json:"mode3_radius_minutes,omitempty"`
	Mode3DetourMax           *float64 `json:"mode3_detour_max,omitempty"`
}

func (p ModeConfigPatch) Apply(c ModeConfig) ModeConfig {
	if p.Mode2DetourMax != nil {
		c.Mode2DetourMax = *p.Mode2DetourMax
	}
	if p.Mode2EasyDetour != nil {
		c.Mode2EasyDetour = *p.Mode2EasyDetour
	}
	if p.Mode2HighProfitThreshold != nil {
		c.Mode2HighProfitThreshold = *p.Mode2HighProfitThreshold
	}
	if p.Mode3RadiusMinutes != nil {
		c.Mode3RadiusMinutes = *p.Mode3RadiusMinutes
	}
	if p.Mode3DetourMax != nil {
		c.Mode3DetourMax = *p.Mode3DetourMax
	}
	return c
}

const (
	DefaultTimeWindowMinutes = 30
	DefaultMinOrders         = 2
	DefaultMaxOrders         = 4
)

// PlannedTrip is a future leg the driver wants orders along. Entries are
// never deleted; Completed ends the search for that leg.
type PlannedTrip struct {
	Origin            string `json:"origin" validate:"required"`
	Destination       string `json:"destination" validate:"required"`
	DepartureTime     string `json:"departure_time" validate:"required,datetime=15:04"`
	TimeWindowMinutes int    `json:"time_window_minutes" validate:"gte=0"`
	MinOrders         int    `json:"min_orders" validate:"gte=1"`
	MaxOrders         int    `json:"max_orders" validate:"gtefield=MinOrders"`
	Completed         bool   `json:"completed"`
}

// NewPlannedTrip fills unset numeric fields with their defaults.
func NewPlannedTrip(origin, destination, departure string) PlannedTrip {
	return PlannedTrip{
		Origin:            strings.TrimSpace(origin),
		Destination:       strings.TrimSpace(destination),
		DepartureTime:     strings.TrimSpace(departure),
		TimeWindowMinutes: DefaultTimeWindowMinutes,
		MinOrders:         DefaultMinOrders,
		MaxOrders:         DefaultMaxOrders,
	}
}

func (t PlannedTrip) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// PlannedTripPatch changes only the fields that are set.
type PlannedTripPatch struct {
	Origin            *string `json:"origin,omitempty"`
	Destination       *string `json:"destination,omitempty"`
	DepartureTime     *string `json:"departure_time,omitempty"`
	TimeWindowMinutes *int    `json:"time_window_minutes,omitempty"`
	MinOrders         *int    `json:"min_orders,omitempty"`
	MaxOrders         *int    `json:"max_orders,omitempty"`
	Completed         *bool   `json:"completed,omitempty"`
}

func (p PlannedTripPatch) Apply(t PlannedTrip) PlannedTrip {
	if p.Origin != nil {
		t.Origin = strings.TrimSpace(*p.Origin)
	}
	if p.Destination != nil {
		t.Destination = strings.TrimSpace(*p.Destination)
	}
	if p.DepartureTime != nil {
		t.DepartureTime = strings.TrimSpace(*p.DepartureTime)
	}
	if p.TimeWindowMinutes != nil {
		t.TimeWindowMinutes = *p.TimeWindowMinutes
	}
	if p.MinOrders != nil {
		t.MinOrders = *p.MinOrders
	}
	if p.MaxOrders != nil {
		t.MaxOrders = *p.MaxOrders
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	return t
}

// sortTrips orders the queue: incomplete first, then by departure time.
// "HH:MM" strings compare correctly as text.
func sortTrips(trips []PlannedTrip) {
	sort.SliceStable(trips, func(i, j int) bool {
		if trips[i].Completed != trips[j].Completed {
			return !trips[i].Completed
		}
		return trips[i].DepartureTime < trips[j].DepartureTime
	})
}

type Status string

const (
	StatusMatched  Status = "matched"
	StatusRejected Status = "rejected"
	StatusIgnored  Status = "ignored"
)

type ReasonCode string

const (
	ReasonNone          ReasonCode = ""
	ReasonPaused        ReasonCode = "paused"
	ReasonPlanMode      ReasonCode = "plan_mode"
	ReasonCooldown      ReasonCode = "cooldown"
	ReasonAbandoned     ReasonCode = "abandoned"
	ReasonTooFar        ReasonCode = "too_far"
	ReasonBelowProfit   ReasonCode = "below_profit"
	ReasonInfeasible    ReasonCode = "infeasible"
	ReasonOutsideRadius ReasonCode = "outside_radius"
)

// Decision is the outcome for one order.
type Decision struct {
	Status      Status     `json:"status"`
	ReasonCode  ReasonCode `json:"reason_code,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Message     string     `json:"message,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	Mode        Mode       `json:"mode"`

	DetourMinutes        *float64 `json:"detour_minutes,omitempty"`
	ExtraSeconds         int64    `json:"-"`
	Profit               string   `json:"profit,omitempty"`
	RoutePreview         []string `json:"new_route_preview,omitempty"`
	NextDropAddress      string   `json:"next_drop_address,omitempty"`
	ETAMinutesToNextDrop *float64 `json:"eta_minutes_to_next_drop,omitempty"`
}

func ignored(code ReasonCode, reason string) *Decision {
	return &Decision{Status: StatusIgnored, ReasonCode: code, Reason: reason}
}

func rejected(code ReasonCode, reason string) *Decision {
	return &Decision{Status: StatusRejected, ReasonCode: code, Reason: reason}
}

// Suggestion tells the trip-publishing probe what to do on its next poll.
type Suggestion struct {
	CancelPublished bool   `json:"cancel_current_trip"`
	Origin          string `json:"origin,omitempty"`
	Destination     string `json:"destination,omitempty"`
	DepartureTime   string `json:"depart_time,omitempty"`
}

// Empty reports whether there is nothing to publish or cancel.
func (s Suggestion) Empty() bool {
	return !s.CancelPublished && s.Origin == "" && s.Destination == ""
}
