// Package mail builds the transactional emails of the platform and hands
// them to a transport.  Delivery is fire-and-forget: a failed send is logged
// and never surfaces to the request that triggered it.
package mail

import (
	"context"
	"log"
	"strings"
	"time"
)

// Message is a rendered email ready for a transport.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Sender delivers a message synchronously.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, m Message) error

func (f SenderFunc) Send(ctx context.Context, m Message) error { return f(ctx, m) }

// Notifier is what the auth flows depend on.  Notify returns immediately.
type Notifier interface {
	Notify(m Message)
}

// AsyncNotifier runs each send on its own goroutine with a detached timeout
// so a slow mail server never holds a request open.
type AsyncNotifier struct {
	sender  Sender
	timeout time.Duration
}

func NewAsyncNotifier(s Sender, timeout time.Duration) *AsyncNotifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AsyncNotifier{sender: s, timeout: timeout}
}

func (n *AsyncNotifier) Notify(m Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.sender.Send(ctx, m); err != nil {
			log.Printf("mail: send %q to %s failed: %v", m.Subject, m.To, err)
			return
		}
		log.Printf("mail: %q dispatched to %s", m.Subject, m.To)
	}()
}

// LogSender writes the message to the process log instead of sending it.
// Used in development where no mail account is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, m Message) error {
	log.Printf("mail(log): to=%s subject=%q body=%d bytes", m.To, m.Subject, len(m.HTML))
	return nil
}

func validate(m Message) error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	return nil
}
