package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"loomtrack-backend/internal/model"
	"loomtrack-backend/internal/parse"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Alert is one low-efficiency notification ready for delivery.
type Alert struct {
	Message   string `json:"message"`
	Recipient string `json:"recipient,omitempty"`
}

// WorkerPool manages a pool of workers delivering low-efficiency alerts to
// every registered push subscription. It is the alert sink the mutation
// router feeds: Observe decides whether a stored record trips the
// threshold, the workers do the slow push deliveries off the request path.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, size), // Buffered channel
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case alert := <-wp.jobs:
			log.Printf("Worker %d delivering alert for %q", id, alert.Recipient)
			wp.deliver(ctx, alert)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Observe checks one stored record against the alert threshold and queues
// an alert when the machine ran below it. A zero total span never alerts,
// and spans that fail to parse are skipped; boundary validation happens
// before storage, not here.
func (wp *WorkerPool) Observe(rec model.Record, settings model.Settings) {
	if settings.AlertThreshold <= 0 {
		return
	}
	if total, err := parse.Span(rec.Total); err != nil || total <= 0 {
		return
	}
	efficiency, err := parse.Efficiency(rec.Total, rec.Run)
	if err != nil {
		log.Printf("Unparseable run span on record %s: %v", rec.ID, err)
		return
	}
	if efficiency >= settings.AlertThreshold {
		return
	}

	wp.Dispatch(Alert{
		Message:   renderMessage(settings.MessageTemplate, rec, efficiency),
		Recipient: settings.MessageRecipient,
	})
}

// renderMessage fills the operator-configured template. Unknown
// placeholders are left as-is.
func renderMessage(template string, rec model.Record, efficiency float64) string {
	return strings.NewReplacer(
		"{machine}", rec.MachineNo,
		"{efficiency}", fmt.Sprintf("%.1f", efficiency),
		"{date}", rec.Date,
	).Replace(template)
}

// Dispatch sends a job to the worker pool.
func (wp *WorkerPool) Dispatch(alert Alert) {
	wp.jobs <- alert
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Alert {
	return wp.jobs
}

// deliver fetches every subscription and pushes the alert to each.
func (wp *WorkerPool) deliver(ctx context.Context, alert Alert) {
	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).Find(&subscriptions).Error; err != nil {
		log.Printf("Error fetching subscriptions: %v", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		log.Printf("Error encoding alert payload: %v", err)
		return
	}

	log.Printf("Sending %d notifications", len(subscriptions))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	// Manually construct the webpush.Subscription object
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == 410 {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
