package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

// PayrollEventMessage is the Pub/Sub payload for one outbox row.
type PayrollEventMessage struct {
	ID              int       `json:"id"`
	EventType       string    `json:"event_type"`
	PayrollRecordId int       `json:"payroll_record_id"`
	EmployeeId      string    `json:"employee_id"`
	BusinessDate    string    `json:"business_date"`
	Payload         []byte    `json:"payload"`
	CorrelationId   string    `json:"correlation_id"`
	OccurredAt      time.Time `json:"occurred_at"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func init() {
	// Load env from .env
	godotenv.Load()
}

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		return v
	}
	return ""
}

// getPubSubClient initializes the shared client with retries. It uses
// Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is set.
func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	if pubsubClient != nil {
		c := pubsubClient
		pubsubClientMu.Unlock()
		return c, nil
	}
	pubsubClientMu.Unlock()

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	var attempt int
	for {
		attempt++

		var (
			c   *pubsub.Client
			err error
		)
		if credJSON != "" {
			c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
		} else {
			c, err = pubsub.NewClient(ctx, projectID)
		}
		if err == nil {
			pubsubClientMu.Lock()
			if pubsubClient == nil {
				pubsubClient = c
			} else {
				// Another goroutine won the race; close ours.
				_ = c.Close()
			}
			c2 := pubsubClient
			pubsubClientMu.Unlock()

			log.Printf("pubsub client ready (project_id=%s attempt=%d)", projectID, attempt)
			return c2, nil
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to init pubsub client (project_id=%s attempt=%d): %v; retrying in %s", projectID, attempt, err, sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func CreateTopicIfNotExists(ctx context.Context, c *pubsub.Client, topic string) (*pubsub.Topic, error) {
	if c == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	t := c.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return t, nil
	}
	t, err = c.CreateTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", topic, err)
	}
	return t, nil
}

// PubSubPublisher publishes payroll events to one topic. Events for the
// same payroll record share an ordering key so subscribers see them in
// commit order.
type PubSubPublisher struct {
	TopicName string
	// CreateTopic creates the topic on first use when it does not exist.
	CreateTopic bool

	mu    sync.Mutex
	topic *pubsub.Topic
}

func NewPubSubPublisher(topicName string) *PubSubPublisher {
	return &PubSubPublisher{TopicName: topicName, CreateTopic: EnvBoolDefault("PUBSUB_CREATE_TOPIC", false)}
}

func (p *PubSubPublisher) getTopic(ctx context.Context) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topic != nil {
		return p.topic, nil
	}
	if p.TopicName == "" {
		return nil, errors.New("pubsub topic is required")
	}
	client, err := getPubSubClient(ctx)
	if err != nil {
		return nil, err
	}
	t := client.Topic(p.TopicName)
	if p.CreateTopic {
		if t, err = CreateTopicIfNotExists(ctx, client, p.TopicName); err != nil {
			return nil, err
		}
	}
	t.EnableMessageOrdering = true
	p.topic = t
	return t, nil
}

// Publish returns the Pub/Sub server-assigned message ID. The record_id
// attribute is used as the ordering key.
func (p *PubSubPublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	t, err := p.getTopic(ctx)
	if err != nil {
		return "", err
	}
	orderingKey := "payroll-record-" + attributes["record_id"]
	id, err := t.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attributes,
		OrderingKey: orderingKey,
	}).Get(ctx)
	if err != nil {
		// A failed key stays paused until resumed.
		t.ResumePublish(orderingKey)
		return "", fmt.Errorf("publish to %s: %w", p.TopicName, err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topic != nil {
		p.topic.Stop()
		p.topic = nil
	}
}
