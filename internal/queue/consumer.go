package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// AuditLogPath is where the consumer appends one line per event.
var AuditLogPath = filepath.Join("logs", "allocation.log")

// StartAuditConsumer connects to RabbitMQ, declares the allocation
// queue and appends every event to the audit log.  It reconnects with
// exponential backoff and only returns once ctx is cancelled.
func StartAuditConsumer(ctx context.Context, url string) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("audit-consumer: failed to dial broker")
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("audit-consumer: consume loop ended; reconnecting")
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
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

func consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn().Err(err).Msg("audit-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(AllocationQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(AllocationQueue, "", false, false, false, false, nil)
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
			if err := HandleAuditMessage(d.Body); err != nil {
				log.Error().Err(err).Msg("audit-consumer: handle message failed")
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleAuditMessage decodes one event and appends it to AuditLogPath.
func HandleAuditMessage(body []byte) error {
	var ev AllocationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(AuditLogPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(AuditLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatAuditLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatAuditLine renders an event as a single human-friendly line.
func FormatAuditLine(ev AllocationEvent) string {
	students := "[]"
	if len(ev.StudentIDs) > 0 {
		ids := make([]string, 0, len(ev.StudentIDs))
		for _, id := range ev.StudentIDs {
			ids = append(ids, fmt.Sprint(id))
		}
		students = "[" + strings.Join(ids, ",") + "]"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | event_id=%s | trainer_id=%d | count=%d | students=%s",
		ev.OccurredAt.Format(time.RFC3339), ev.Type, ev.ID, ev.TrainerID, ev.Count, students)
	if ev.TransitionType != "" {
		fmt.Fprintf(&b, " | transition=%s", ev.TransitionType)
	}
	if ev.PlanID != 0 {
		fmt.Fprintf(&b, " | plan_id=%d", ev.PlanID)
	}
	if ev.ResourceType != "" {
		fmt.Fprintf(&b, " | resource=%s", ev.ResourceType)
	}
	if ev.TokenID != 0 {
		fmt.Fprintf(&b, " | token_id=%d", ev.TokenID)
	}
	if ev.Detail != "" {
		fmt.Fprintf(&b, " | detail=%q", ev.Detail)
	}
	b.WriteString("\n")
	return b.String()
}
