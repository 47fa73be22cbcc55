// README: Push events for matched orders and the notifier contract.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Notifier delivers a matched order to the driver. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Event is one push about a matched order.
type Event struct {
	ID           string    `json:"id"`
	DriverID     string    `json:"driver_id"`
	Fingerprint  string    `json:"fingerprint"`
	Pickup       string    `json:"pickup"`
	Delivery     string    `json:"delivery"`
	Price        string    `json:"price"`
	ExtraMinutes float64   `json:"extra_mins"`
	NextDrop     string    `json:"next_drop,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewEvent(driverID, fingerprint, pickup, delivery, price string, extraMinutes float64, now time.Time) Event {
	return Event{
		ID:           uuid.NewString(),
		DriverID:     driverID,
		Fingerprint:  fingerprint,
		Pickup:       pickup,
		Delivery:     delivery,
		Price:        price,
		ExtraMinutes: extraMinutes,
		CreatedAt:    now,
	}
}

func (e Event) Title() string {
	return "On-the-way order found"
}

func (e Event) Body() string {
	return fmt.Sprintf("Pickup: %s\nDrop-off: %s\nPrice: %s\nDetour: %.1f min", e.Pickup, e.Delivery, e.Price, e.ExtraMinutes)
}

// Data is the key/value payload for the driver app.
func (e Event) Data() map[string]string {
	d := map[string]string{
		"type":        "matched_order",
		"event_id":    e.ID,
		"fingerprint": e.Fingerprint,
		"pickup":      e.Pickup,
		"delivery":    e.Delivery,
		"price":       e.Price,
		"extra_mins":  strconv.FormatFloat(e.ExtraMinutes, 'f', 1, 64),
	}
	if e.NextDrop != "" {
		d["next_drop"] = e.NextDrop
	}
	return d
}

// LogNotifier only logs events; used when no push channel is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, ev Event) error {
	n.logger.Info("matched order",
		"event_id", ev.ID,
		"driver_id", ev.DriverID,
		"fingerprint", ev.Fingerprint,
		"pickup", ev.Pickup,
		"delivery", ev.Delivery,
		"price", ev.Price,
		"extra_mins", ev.ExtraMinutes,
	)
	return nil
}
