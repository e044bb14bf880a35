package config

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
)

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func init() {
	// Load env from .env
	godotenv.Load()
}

// GetPubSubClient returns a Pub/Sub client, initializing with retries if needed.
// It uses Application Default Credentials (Cloud Run service account or
// GOOGLE_APPLICATION_CREDENTIALS).
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
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

	var attempt int
	for {
		attempt++
		c, err := pubsub.NewClient(ctx, projectID)
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

		sleep := time.Second * time.Duration(1<<minInt(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
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

// LifecycleTopic returns the topic for unit/property lifecycle events with
// message ordering enabled. Ordering key is the unit id, so events for one
// unit are delivered in emission order while unrelated units never contend.
func LifecycleTopic(ctx context.Context) (*pubsub.Topic, error) {
	client, err := GetPubSubClient(ctx)
	if err != nil {
		return nil, err
	}

	topicName := strings.TrimSpace(os.Getenv("LIFECYCLE_TOPIC"))
	if topicName == "" {
		topicName = "unit-lifecycle"
	}

	topic := client.Topic(topicName)
	if envBoolDefault("LIFECYCLE_CREATE_TOPIC", false) {
		exists, err := topic.Exists(ctx)
		if err != nil {
			return nil, err
		}
		if !exists {
			topic, err = client.CreateTopic(ctx, topicName)
			if err != nil {
				return nil, err
			}
		}
	}
	topic.EnableMessageOrdering = true
	return topic, nil
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if val == "" {
		return def
	}
	return val == "1" || val == "true" || val == "yes"
}
