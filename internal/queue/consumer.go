package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Consumer listens to the movie.events queue and appends one line per
// event to an activity log file.
type Consumer struct {
    URL     string
    LogPath string // e.g. logs/activity.log
    Log     *zap.Logger
}

// Run connects to RabbitMQ, declares the movie.events queue (durable) and
// consumes until ctx is cancelled. Broker failures trigger a reconnect
// with exponential backoff capped at 30s. Messages that cannot be handled
// are rejected without requeue so the loop keeps moving.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            c.Log.Warn("movie-events consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleepCtx(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.Log.Warn("movie-events consumer: consume loop ended, reconnecting", zap.Error(err))
        if !sleepCtx(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.Log.Warn("movie-events consumer: set QoS failed", zap.Error(err))
    }
    if _, err := ch.QueueDeclare(MovieEventsQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.ConsumeWithContext(ctx, MovieEventsQueue, "", false, false, false, false, nil)
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
            if err := c.handle(d.Type, d.Body); err != nil {
                c.Log.Error("movie-events consumer: handle message failed", zap.String("type", d.Type), zap.Error(err))
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func (c *Consumer) handle(typ string, body []byte) error {
    line, err := FormatEvent(typ, body)
    if err != nil {
        return err
    }
    if err := os.MkdirAll(filepath.Dir(c.LogPath), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatEvent renders a single-line, human friendly activity log entry.
func FormatEvent(typ string, body []byte) (string, error) {
    switch typ {
    case TypeMovieCreated:
        var ev MovieCreatedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return "", fmt.Errorf("unmarshal: %w", err)
        }
        return fmt.Sprintf("[%s] Movie created | movie_id=%d | user_id=%d | username=%q | title=%q\n",
            ev.PublicationDate, ev.MovieID, ev.UserID, ev.Username, ev.Title), nil
    case TypeOpinionChanged:
        var ev OpinionChangedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return "", fmt.Errorf("unmarshal: %w", err)
        }
        opinion := ev.Opinion
        if opinion == "" {
            opinion = "none"
        }
        return fmt.Sprintf("[%s] Opinion changed | movie_id=%d | user_id=%d | opinion=%s | likes=%d | hates=%d\n",
            ev.OccurredAt, ev.MovieID, ev.UserID, opinion, ev.LikesCounter, ev.HatesCounter), nil
    }
    return "", fmt.Errorf("unknown event type %q", typ)
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
