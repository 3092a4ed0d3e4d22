package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// VisitLogFile is the file name the consumer appends to inside its log
// directory.
const VisitLogFile = "visits.log"

// StartVisitConsumer connects to the broker at url, declares the durable
// visit queue and appends each event to dir/visits.log as one line.  It
// reconnects with exponential backoff until ctx is cancelled, then returns
// ctx.Err().  Malformed messages are rejected without requeue.
func StartVisitConsumer(ctx context.Context, url, dir string) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Printf("visit-consumer: dial broker: %v; retrying in %s", err, backoff)
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = consume(ctx, conn, dir)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Printf("visit-consumer: %v; reconnecting", err)
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func consume(ctx context.Context, conn *amqp.Connection, dir string) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Printf("visit-consumer: set QoS: %v", err)
    }
    if _, err := ch.QueueDeclare(VisitQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(VisitQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := AppendVisit(dir, d.Body); err != nil {
                log.Printf("visit-consumer: %v", err)
                _ = d.Nack(false, false)
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// AppendVisit decodes a VisitRecordedEvent and appends its log line to
// dir/visits.log, creating the directory when needed.
func AppendVisit(dir string, body []byte) error {
    var ev VisitRecordedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.VisitID == 0 {
        return errors.New("event without visit_id")
    }
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", dir, err)
    }
    f, err := os.OpenFile(filepath.Join(dir, VisitLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    line := fmt.Sprintf("[%s] Visit recorded | visit_id=%d | org_id=%d | visitor_id=%d | visitor=%q | activity_id=%d | activity=%q | by=%d (%s)\n",
        ev.RecordedAt, ev.VisitID, ev.OrganisationID, ev.VisitorID, ev.VisitorName, ev.ActivityID, ev.ActivityName, ev.RecordedBy, ev.Role)
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}
