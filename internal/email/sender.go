package email

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/gomail.v2"
)

// Sender transmits composed messages over SMTP. Port 465 uses implicit
// SSL; any other port upgrades with STARTTLS when use_tls is set.
type Sender struct {
	dialer *gomail.Dialer
}

func NewSender(host string, port int, user, password string, useTLS bool) *Sender {
	d := gomail.NewDialer(host, port, user, password)
	if port == 465 {
		d.SSL = true
	}
	if useTLS {
		d.TLSConfig = &tls.Config{ServerName: host}
	}
	return &Sender{dialer: d}
}

// Send opens a connection, authenticates, transmits the message and
// closes. Failures come back as a *SendError whose Kind separates
// authentication, connectivity and recipient rejection so callers can
// treat transient errors differently from permanent ones.
func (s *Sender) Send(m *gomail.Message) error {
	sc, err := s.dialer.Dial()
	if err != nil {
		return classifyDial(err)
	}
	defer sc.Close()

	if err := gomail.Send(sc, m); err != nil {
		return classifySend(err)
	}
	return nil
}

// SendWithRetry retries transient failures with exponential backoff.
// Authentication and recipient rejections are permanent, so the loop
// aborts on them immediately instead of hammering the provider.
func (s *Sender) SendWithRetry(ctx context.Context, m *gomail.Message, maxElapsed time.Duration) error {
	operation := func() error {
		err := s.Send(m)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = maxElapsed

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}
