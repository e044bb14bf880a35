package indexsync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/akarakonline-arch/hggzk-sub012/config"
)

// PublishLifecycleEvent is called by CRUD collaborators after commit. The
// ordering key is the unit id (property id for property-scoped events) so
// per-unit emission order survives transport; unrelated units never contend.
func PublishLifecycleEvent(ctx context.Context, evt LifecycleEvent) error {
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	topic, err := config.LifecycleTopic(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	key := strconv.FormatUint(uint64(evt.UnitID), 10)
	if evt.Kind.IsPropertyScoped() {
		key = "p" + strconv.FormatUint(uint64(evt.PropertyID), 10)
	}
	res := topic.Publish(ctx, &pubsub.Message{Data: data, OrderingKey: key})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler accepts Pub/Sub push deliveries. Malformed envelopes are
// acked and dropped: retrying them can never succeed. Processing failures are
// also acked; the sweeper owns retries via the Stale state, so a poison event
// cannot wedge the subscription.
func PubSubPushHandler(worker *Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(http.StatusNoContent)
			return
		}

		var evt LifecycleEvent
		if err := json.Unmarshal(envelope.Message.Data, &evt); err != nil {
			c.Status(http.StatusNoContent)
			return
		}
		if evt.EventID == "" {
			evt.EventID = envelope.Message.ID
		}

		if err := worker.HandleEvent(c.Request.Context(), evt); err != nil {
			config.LogError(logger, "indexsync", "PubSubPushHandler", string(evt.Kind), evt, err)
		}
		c.Status(http.StatusNoContent)
	}
}
