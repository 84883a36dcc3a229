package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const maxBackoff = 30 * time.Second

// Consumer reads the reservation.confirmed and password.reset queues and
// appends one line per message to booking.log and mail.log under Dir.
type Consumer struct {
	URL string
	Dir string
	Log *zap.Logger

	mu sync.Mutex // serialises file appends
}

// NewConsumer returns a consumer writing to the logs directory.
func NewConsumer(url string, log *zap.Logger) *Consumer {
	return &Consumer{URL: url, Dir: "logs", Log: log.Named("consumer")}
}

// StartConsumer runs a consumer writing under dir until ctx is cancelled.
func StartConsumer(ctx context.Context, url, dir string, log *zap.Logger) error {
	c := NewConsumer(url, log)
	if dir != "" {
		c.Dir = dir
	}
	return c.Run(ctx)
}

// Run connects to the broker and consumes until ctx is cancelled. Lost
// connections are re-dialled with exponential backoff from 1s to 30s.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.Log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleepCtx(ctx, 2*time.Second) {
			return nil
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.Warn("set qos failed", zap.Error(err))
	}

	booking, err := c.subscribe(ch, ReservationConfirmedQueue)
	if err != nil {
		return err
	}
	mail, err := c.subscribe(ch, PasswordResetQueue)
	if err != nil {
		return err
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-closed:
			if e == nil {
				return errors.New("connection closed")
			}
			return e
		case d, ok := <-booking:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.settle(d, ReservationConfirmedQueue, c.HandleReservationConfirmed(d.Body))
		case d, ok := <-mail:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.settle(d, PasswordResetQueue, c.HandlePasswordReset(d.Body))
		}
	}
}

func (c *Consumer) subscribe(ch *amqp.Channel, queue string) (<-chan amqp.Delivery, error) {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("queue declare %s: %w", queue, err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue consume %s: %w", queue, err)
	}
	return msgs, nil
}

// settle acks handled messages and rejects failed ones without requeue so
// a bad payload cannot loop forever.
func (c *Consumer) settle(d amqp.Delivery, queue string, err error) {
	if err != nil {
		c.Log.Error("handle message failed", zap.String("queue", queue), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// HandleReservationConfirmed appends a reservation.confirmed payload to
// booking.log.
func (c *Consumer) HandleReservationConfirmed(body []byte) error {
	var ev ReservationConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.ReservationID == 0 {
		return errors.New("missing reservation_id")
	}
	return c.appendLine("booking.log", BookingLine(ev))
}

// HandlePasswordReset appends the reset mail for a password.reset payload
// to mail.log.
func (c *Consumer) HandlePasswordReset(body []byte) error {
	var ev PasswordResetEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Email == "" || ev.ResetURL == "" {
		return errors.New("missing email or reset_url")
	}
	return c.appendLine("mail.log", MailLine(ev))
}

// BookingLine formats a confirmed reservation as a single log line.
func BookingLine(ev ReservationConfirmedEvent) string {
	lines := make([]string, 0, len(ev.Lines))
	for _, l := range ev.Lines {
		lines = append(lines, fmt.Sprintf("%q@%s %s x%d", l.ShowTitle, l.StartsAt, l.PriceType, l.Quantity))
	}
	return fmt.Sprintf("[%s] Reservation confirmed | reservation_id=%d | user_id=%d | email=%s | payment_ref=%s | total=%d cents | lines=[%s]\n",
		ev.ConfirmedAt, ev.ReservationID, ev.UserID, ev.Email, ev.PaymentRef, ev.TotalAmountCents, strings.Join(lines, ", "))
}

var resetSubjects = map[string]string{
	"fr": "Réinitialisation de votre mot de passe",
	"en": "Reset your password",
	"nl": "Uw wachtwoord opnieuw instellen",
}

// MailLine renders the password reset mail in the user's language,
// falling back to French.
func MailLine(ev PasswordResetEvent) string {
	subject, ok := resetSubjects[ev.Langue]
	if !ok {
		subject = resetSubjects["fr"]
	}
	return fmt.Sprintf("[%s] To: %s | Subject: %s | Hello %s, open %s before %s\n",
		time.Now().UTC().Format(time.RFC3339), ev.Email, subject, ev.Firstname, ev.ResetURL, ev.ExpiresAt)
}

func (c *Consumer) appendLine(name, line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.Dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.Dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
