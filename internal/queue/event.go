// Package queue moves outbound email through RabbitMQ: the HTTP process
// publishes MailRequestedEvents and a consumer delivers them over SMTP.
package queue

import "github.com/iliyamo/blog-platform/internal/mail"

// MailQueueName is the durable queue carrying MailRequestedEvents.
const MailQueueName = "mail.requested"

// MailRequestedEvent is published when a flow needs an email delivered.  It
// carries the fully rendered message so the consumer never touches the
// database.
type MailRequestedEvent struct {
    To          string `json:"to"`
    Subject     string `json:"subject"`
    HTML        string `json:"html"`
    RequestedAt string `json:"requested_at"`
}

func (e MailRequestedEvent) Message() mail.Message {
    return mail.Message{To: e.To, Subject: e.Subject, HTML: e.HTML}
}
