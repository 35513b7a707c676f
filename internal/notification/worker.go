package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"solar-fleet-backend/internal/model"
	"solar-fleet-backend/internal/store"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Job is one alarm push to be delivered to a single user.
type Job struct {
	UserID   int64
	Title    string
	Body     string
	DeviceSN string
	AlarmAt  time.Time
}

// WorkerPool manages a pool of workers for sending notifications. Delivery is
// best-effort: a failed push is logged and dropped, never surfaced to the
// dispatching job.
type WorkerPool struct {
	size    int
	jobs    chan Job
	store   store.Store
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// SetSender replaces the push sender. Used by tests.
func (wp *WorkerPool) SetSender(s Sender) {
	wp.sender = s
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Notification worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			wp.process(ctx, job)
		case <-ctx.Done():
			log.Printf("Notification worker %d shutting down", id)
			return
		}
	}
}

// Dispatch sends a job to the worker pool.
func (wp *WorkerPool) Dispatch(job Job) {
	wp.jobs <- job
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

// pushPayload is the JSON body delivered to the browser.
type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// process persists the notification record and attempts delivery to every
// subscription of the target user. The audit row is written whether or not
// the push provider confirms delivery.
func (wp *WorkerPool) process(ctx context.Context, job Job) {
	record := &model.Notification{
		UserID:   job.UserID,
		DeviceSN: job.DeviceSN,
		Title:    job.Title,
		Body:     job.Body,
		AlarmAt:  job.AlarmAt,
	}
	if err := wp.store.CreateNotification(ctx, record); err != nil {
		log.Printf("Error persisting notification for user %d: %v", job.UserID, err)
		return
	}

	subscriptions, err := wp.store.SubscriptionsForUser(ctx, job.UserID)
	if err != nil {
		log.Printf("Error fetching subscriptions for user %d: %v", job.UserID, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(pushPayload{Title: job.Title, Body: job.Body})
	if err != nil {
		log.Printf("Error encoding push payload for user %d: %v", job.UserID, err)
		return
	}

	log.Printf("Sending %d notifications for user %d", len(subscriptions), job.UserID)
	for _, sub := range subscriptions {
		wp.send(ctx, sub, payload)
	}
}

// send delivers a single web push notification.
func (wp *WorkerPool) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
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
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
