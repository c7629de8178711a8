package queue

import (
    "context"
    "encoding/json"
    "log"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/blog-platform/internal/mail"
)

// Publisher is a mail.Sender that enqueues messages on MailQueueName instead
// of talking to SMTP.  Each call dials the broker; errors are logged and
// returned so the notifier can report them without interrupting the request.
type Publisher struct {
    URL string
}

func NewPublisher(url string) *Publisher { return &Publisher{URL: url} }

// Send publishes m as a persistent MailRequestedEvent.
func (p *Publisher) Send(ctx context.Context, m mail.Message) error {
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

    // Durable so pending mail survives broker restarts.
    if _, err := ch.QueueDeclare(
        MailQueueName, // name
        true,          // durable
        false,         // autoDelete
        false,         // exclusive
        false,         // noWait
        nil,           // args
    ); err != nil {
        log.Printf("rabbitmq: queue declare failed: %v", err)
        return err
    }

    body, err := encodeEvent(m, time.Now())
    if err != nil {
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx,
        "",            // default exchange
        MailQueueName, // routing key = queue name
        false,         // mandatory
        false,         // immediate
        pub,
    ); err != nil {
        log.Printf("rabbitmq: publish failed: %v", err)
        return err
    }
    return nil
}

func encodeEvent(m mail.Message, at time.Time) ([]byte, error) {
    return json.Marshal(MailRequestedEvent{
        To:          m.To,
        Subject:     m.Subject,
        HTML:        m.HTML,
        RequestedAt: at.UTC().Format(time.RFC3339),
    })
}
