package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"firebase.google.com/go/v4/messaging"
)

const feedRoot = "push_events"

type messageSender interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

type feedWriter interface {
	Append(ctx context.Context, path string, v interface{}) error
}

type rtdbFeed struct {
	client *db.Client
}

func (f rtdbFeed) Append(ctx context.Context, path string, v interface{}) error {
	_, err := f.client.NewRef(path).Push(ctx, v)
	return err
}

// FirebaseNotifier sends an FCM message to the driver's device and appends
// the event to the RTDB feed push_events/{driver} read by the web console.
type FirebaseNotifier struct {
	sender      messageSender
	feed        feedWriter
	deviceToken string
	sound       string
	logger      *slog.Logger
}

// NewFirebaseNotifier uses the app's messaging client, and its RTDB client
// when the app was configured with a database URL. An empty deviceToken
// disables FCM and keeps only the feed.
func NewFirebaseNotifier(ctx context.Context, app *firebase.App, deviceToken, sound string, withFeed bool, logger *slog.Logger) (*FirebaseNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	n := &FirebaseNotifier{deviceToken: deviceToken, sound: sound, logger: logger}
	if deviceToken != "" {
		msg, err := app.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialising firebase messaging client: %w", err)
		}
		n.sender = msg
	}
	if withFeed {
		client, err := app.Database(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialising firebase RTDB client: %w", err)
		}
		n.feed = rtdbFeed{client: client}
	}
	return n, nil
}

func (n *FirebaseNotifier) Notify(ctx context.Context, ev Event) error {
	var errs []error
	if n.sender != nil {
		msg := &messaging.Message{
			Token: n.deviceToken,
			Data:  ev.Data(),
			Notification: &messaging.Notification{
				Title: ev.Title(),
				Body:  ev.Body(),
			},
			Android: &messaging.AndroidConfig{
				Priority: "high",
			},
			APNS: &messaging.APNSConfig{
				Payload: &messaging.APNSPayload{
					Aps: &messaging.Aps{Sound: n.sound},
				},
			},
		}
		id, err := n.sender.Send(ctx, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("sending FCM for %s: %w", ev.Fingerprint, err))
		} else {
			n.logger.Info("FCM sent", "fingerprint", ev.Fingerprint, "message_id", id)
		}
	}
	if n.feed != nil {
		path := feedRoot + "/" + ev.DriverID
		if err := n.feed.Append(ctx, path, ev); err != nil {
			errs = append(errs, fmt.Errorf("appending %s to %s: %w", ev.Fingerprint, path, err))
		}
	}
	return errors.Join(errs...)
}
