package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// DispatchMessage is sent to the broker for every pipeline item that becomes due.
type DispatchMessage struct {
	ItemID       string    `json:"item_id"`
	PostingID    string    `json:"posting_id"`
	Channel      string    `json:"channel"`
	Content      string    `json:"content"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Attempt      int       `json:"attempt"`
}

// DispatchResult is reported back by the channel workers once a post went out (or did not).
type DispatchResult struct {
	ItemID     string `json:"item_id"`
	Success    bool   `json:"success"`
	ExternalID string `json:"external_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// DecodeResult parses a result message body.
func DecodeResult(body []byte) (DispatchResult, error) {
	var res DispatchResult
	if err := json.Unmarshal(body, &res); err != nil {
		return res, fmt.Errorf("invalid result format: %w", err)
	}
	if res.ItemID == "" {
		return res, errors.New("invalid result format: item_id missing")
	}
	return res, nil
}

type Publisher interface {
	Publish(ctx context.Context, msg DispatchMessage) error
	Close() error
}

// RabbitMQ publishes dispatch messages to a durable queue and consumes results from a second one.
type RabbitMQ struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	queue       amqp.Queue
	resultQueue amqp.Queue

	mu sync.Mutex // serialises publishes on the shared channel
}

func NewRabbitMQ(url, queueName, resultQueueName string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	declare := func(name string) (amqp.Queue, error) {
		return ch.QueueDeclare(
			name,  // queue name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // args
		)
	}
	q, err := declare(queueName)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	rq, err := declare(resultQueueName)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", resultQueueName, err)
	}

	log.Printf("[RabbitMQ] Connected, queues %s / %s declared", q.Name, rq.Name)
	return &RabbitMQ{conn: conn, channel: ch, queue: q, resultQueue: rq}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, msg DispatchMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channel.PublishWithContext(
		ctx,
		"",           // exchange
		r.queue.Name, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ItemID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// ConsumeResults delivers every result message to handler until ctx is done. Messages are acked
// after the handler returns; malformed messages and handler failures are logged and dropped.
func (r *RabbitMQ) ConsumeResults(ctx context.Context, handler func(context.Context, DispatchResult) error) error {
	msgs, err := r.channel.Consume(
		r.resultQueue.Name,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					log.Println("[RabbitMQ] Result delivery channel closed")
					return
				}
				res, err := DecodeResult(d.Body)
				if err != nil {
					log.Printf("[RabbitMQ] %v", err)
					d.Nack(false, false)
					continue
				}
				if err := handler(ctx, res); err != nil {
					log.Printf("[RabbitMQ] Result for item %s not applied: %v", res.ItemID, err)
				}
				d.Ack(false)
			}
		}
	}()
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// LogPublisher stands in when no broker is configured. Items stay in processing until a result
// arrives through the HTTP callback or the pipeline fails them as stale.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, msg DispatchMessage) error {
	log.Printf("[Pipeline] No broker configured, %s item %s for posting %s logged only (%d chars)",
		msg.Channel, msg.ItemID, msg.PostingID, len(msg.Content))
	return nil
}

func (LogPublisher) Close() error { return nil }
