// Package presence ingests the external presence feed over NATS and routes
// events into the seeding engine. The feed is treated as trustworthy but
// unreliable in ordering: duplicates and reordering are absorbed by the
// engine's idempotency rules.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/sqdops/seedtrack/internal/domain"
)

// Observer receives decoded presence events. Satisfied by seeding.Engine.
type Observer interface {
	ObservePresence(ctx context.Context, ev domain.PresenceEvent) error
}

// Subscriber consumes presence events from a NATS subject tree.
type Subscriber struct {
	conn     *nats.Conn
	sub      *nats.Subscription
	observer Observer
	subject  string
	log      *logrus.Entry
}

// Connect dials the NATS server, retrying initial establishment with
// exponential backoff. Reconnects after that are handled by the client's
// own reconnect loop.
func Connect(ctx context.Context, url string, observer Observer, subject string) (*Subscriber, error) {
	if subject == "" {
		subject = "seeding.presence.>"
	}
	log := logrus.WithField("component", "presence")

	var conn *nats.Conn
	connect := func() error {
		var err error
		conn, err = nats.Connect(url,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Warnf("presence feed disconnected: %v", err)
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				log.Infof("presence feed reconnected to %s", c.ConnectedUrl())
			}),
		)
		if err != nil {
			log.Warnf("presence feed not reachable yet: %v", err)
		}
		return err
	}
	if err := backoff.Retry(connect, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return nil, fmt.Errorf("connecting to presence feed: %w", err)
	}

	s := &Subscriber{
		conn:     conn,
		observer: observer,
		subject:  subject,
		log:      log,
	}

	sub, err := conn.Subscribe(subject, s.handle)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	s.sub = sub

	log.Infof("presence feed subscribed to %s at %s", subject, conn.ConnectedUrl())
	return s, nil
}

// handle decodes one feed message and hands it to the engine. A malformed
// message is logged and dropped; the feed is not a place to fail loudly.
func (s *Subscriber) handle(msg *nats.Msg) {
	var ev domain.PresenceEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		s.log.Warnf("dropping malformed presence event on %s: %v", msg.Subject, err)
		return
	}

	if err := s.observer.ObservePresence(context.Background(), ev); err != nil {
		s.log.WithFields(logrus.Fields{
			"steam_id":  ev.SteamID,
			"server_id": ev.ServerID,
		}).Errorf("presence event rejected: %v", err)
	}
}

// Close drains the subscription and closes the connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}
