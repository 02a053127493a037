package memhost

import (
	"context"
	"strings"
	"sync"

	"github.com/MrEthical07/magiclink"
)

// Outbox is a magiclink.Notifier that keeps messages in memory instead of
// delivering them. Use it for development and tests only; links are bearer
// credentials.
type Outbox struct {
	mu       sync.Mutex
	messages []magiclink.Message
	fail     error
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Send(_ context.Context, msg magiclink.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.messages = append(o.messages, msg)
	return nil
}

// FailWith makes every later Send return err. Nil restores delivery.
func (o *Outbox) FailWith(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fail = err
}

// Messages returns a copy of every stored message in send order.
func (o *Outbox) Messages() []magiclink.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]magiclink.Message(nil), o.messages...)
}

// Latest returns the newest message addressed to email.
func (o *Outbox) Latest(email string) (magiclink.Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.messages) - 1; i >= 0; i-- {
		if strings.EqualFold(o.messages[i].User.Email, email) {
			return o.messages[i], true
		}
	}
	return magiclink.Message{}, false
}
