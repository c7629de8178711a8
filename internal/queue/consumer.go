package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/blog-platform/internal/mail"
)

// StartMailConsumer connects to RabbitMQ, declares MailQueueName (durable)
// and delivers every event through sender.  It runs a reconnect loop with
// exponential backoff and returns only when ctx is cancelled.  A message
// that cannot be decoded or delivered is rejected without requeue so one
// bad address cannot stall the queue.
func StartMailConsumer(ctx context.Context, url string, sender mail.Sender) error {
    backoff := time.Second
    for {
        if err := ctx.Err(); err != nil {
            return err
        }
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Printf("mail-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = consumeLoop(ctx, conn, sender)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Printf("mail-consumer: consume loop ended: %v; reconnecting", err)
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

func consumeLoop(ctx context.Context, conn *amqp.Connection, sender mail.Sender) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(10, 0, false); err != nil {
        log.Printf("mail-consumer: set QoS failed: %v", err)
    }

    if _, err := ch.QueueDeclare(MailQueueName, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }

    msgs, err := ch.Consume(MailQueueName, "", false, false, false, false, nil)
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
            if err := handleMessage(ctx, sender, d.Body); err != nil {
                log.Printf("mail-consumer: handle message failed: %v", err)
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func handleMessage(ctx context.Context, sender mail.Sender, body []byte) error {
    var ev MailRequestedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
    defer cancel()
    if err := sender.Send(sendCtx, ev.Message()); err != nil {
        return fmt.Errorf("deliver to %s: %w", ev.To, err)
    }
    log.Printf("mail-consumer: delivered %q to %s (requested %s)", ev.Subject, ev.To, ev.RequestedAt)
    return nil
}
