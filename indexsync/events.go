package indexsync

// Lifecycle events consumed by the synchronizer. Payloads carry identifiers
// only: the worker re-reads current authoritative state, so redelivery and
// duplicate events are always safe to process.

type EventKind string

const (
	EventPropertyCreated      EventKind = "PropertyCreated"
	EventPropertyUpdated      EventKind = "PropertyUpdated"
	EventPropertyDeleted      EventKind = "PropertyDeleted"
	EventUnitCreated          EventKind = "UnitCreated"
	EventUnitUpdated          EventKind = "UnitUpdated"
	EventUnitDeleted          EventKind = "UnitDeleted"
	EventAvailabilityChanged  EventKind = "AvailabilityChanged"
	EventDailyScheduleChanged EventKind = "DailyScheduleChanged"
)

func (k EventKind) IsPropertyScoped() bool {
	switch k {
	case EventPropertyCreated, EventPropertyUpdated, EventPropertyDeleted:
		return true
	}
	return false
}

type LifecycleEvent struct {
	EventID    string    `json:"event_id"`
	Kind       EventKind `json:"kind"`
	UnitID     uint      `json:"unit_id,omitempty"`
	PropertyID uint      `json:"property_id,omitempty"`
}

// PubSubPushEnvelope is the wire shape of a Pub/Sub push delivery.
type PubSubPushEnvelope struct {
	Message struct {
		Data        []byte `json:"data,omitempty"`
		ID          string `json:"messageId"`
		OrderingKey string `json:"orderingKey,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}
