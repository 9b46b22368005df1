// Package service publishes domain events to RabbitMQ. Publishing happens
// after the store has committed; errors are logged and returned so the
// caller can ignore them without failing the request.
package service

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"

    q "github.com/iliyamo/movierama/internal/queue"
)

// EventPublisher is what handlers depend on. NopPublisher satisfies it when
// events are disabled.
type EventPublisher interface {
    PublishMovieCreated(ctx context.Context, ev q.MovieCreatedEvent) error
    PublishOpinionChanged(ctx context.Context, ev q.OpinionChangedEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishMovieCreated(context.Context, q.MovieCreatedEvent) error     { return nil }
func (NopPublisher) PublishOpinionChanged(context.Context, q.OpinionChangedEvent) error { return nil }

// QueuePublisher dials the broker per publish. Event volume is one message
// per write request, so a dedicated connection keeps failure handling
// simple: a broken broker never poisons a shared channel.
type QueuePublisher struct {
    URL string
    Log *zap.Logger
}

func NewQueuePublisher(url string, log *zap.Logger) *QueuePublisher {
    return &QueuePublisher{URL: url, Log: log}
}

// PublishMovieCreated publishes a movie.created event.
func (p *QueuePublisher) PublishMovieCreated(ctx context.Context, ev q.MovieCreatedEvent) error {
    return p.publish(ctx, q.TypeMovieCreated, ev)
}

// PublishOpinionChanged publishes a movie.opinion_changed event.
func (p *QueuePublisher) PublishOpinionChanged(ctx context.Context, ev q.OpinionChangedEvent) error {
    return p.publish(ctx, q.TypeOpinionChanged, ev)
}

func (p *QueuePublisher) publish(ctx context.Context, typ string, event any) error {
    log := p.Log.With(zap.String("event", typ))
    conn, err := amqp.Dial(p.URL)
    if err != nil {
        log.Warn("rabbitmq: dial failed", zap.Error(err))
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.Warn("rabbitmq: channel open failed", zap.Error(err))
        return err
    }
    defer func() { _ = ch.Close() }()

    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(
        q.MovieEventsQueue, // name
        true,               // durable
        false,              // autoDelete
        false,              // exclusive
        false,              // noWait
        nil,                // args
    ); err != nil {
        log.Warn("rabbitmq: queue declare failed", zap.Error(err))
        return err
    }

    body, err := json.Marshal(event)
    if err != nil {
        log.Error("rabbitmq: marshal event failed", zap.Error(err))
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        Type:         typ,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx,
        "",                 // default exchange
        q.MovieEventsQueue, // routing key = queue name
        false,              // mandatory
        false,              // immediate
        pub,
    ); err != nil {
        log.Warn("rabbitmq: publish failed", zap.Error(err))
        return err
    }
    return nil
}
