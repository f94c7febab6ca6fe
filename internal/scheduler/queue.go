package scheduler

// QueueType selects the dispatch discipline a queue actor implements.
type QueueType string

const (
	QueueFIFO       QueueType = "fifo"
	QueueLIFO       QueueType = "lifo"
	QueueRoundRobin QueueType = "round_robin"
	QueuePriority   QueueType = "priority"
)

// QueueActorRef is a handle to an external queue actor the scheduler can
// dispatch ready beads to. The scheduler itself does not implement queue
// dispatch semantics; it only tracks which queues exist so a reconciler or
// worker pool can pick one.
type QueueActorRef struct {
	QueueID   string
	QueueType QueueType
}

// EventSubscription records that a subscriber id wants to be notified about
// the given event types. This is an introspection registry only: the actor
// does not itself deliver events, that is the event bus's job.
type EventSubscription struct {
	SubscriptionID string
	EventTypes     []string
}
