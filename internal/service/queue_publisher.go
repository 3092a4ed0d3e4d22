// Package service holds side effects that follow a successful request,
// currently publishing visit events to RabbitMQ.
package service

import (
    "context"
    "encoding/json"
    "log"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/cbtwine/attendance/internal/queue"
)

// VisitPublisher publishes visit events to the broker at URL.  The zero
// value (empty URL) publishes nothing.  Every call dials its own
// connection.
type VisitPublisher struct {
    URL string
}

// PublishVisitRecorded sends ev to the visit.recorded queue as a
// persistent JSON message.  Errors are logged and returned; callers treat
// them as non-fatal because the visit is already stored.
func (p VisitPublisher) PublishVisitRecorded(ctx context.Context, ev queue.VisitRecordedEvent) error {
    if p.URL == "" {
        return nil
    }
    conn, err := amqp.Dial(p.URL)
    if err != nil {
        log.Printf("rabbitmq: dial failed: %v", err)
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.Printf("rabbitmq: channel open failed: %v", err)
        return err
    }
    defer func() { _ = ch.Close() }()

    if _, err := ch.QueueDeclare(queue.VisitQueue, true, false, false, false, nil); err != nil {
        log.Printf("rabbitmq: queue declare failed: %v", err)
        return err
    }

    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }
    err = ch.PublishWithContext(ctx, "", queue.VisitQueue, false, false, amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    })
    if err != nil {
        log.Printf("rabbitmq: publish visit %d failed: %v", ev.VisitID, err)
    }
    return err
}
