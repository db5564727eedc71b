// NATS-backed Queue: the domain-stack pluggable async transport for C6,
// grounded on github.com/nats-io/nats.go usage in
// streamspace-dev-streamspace's docker-controller and k8s-controller.
// NATS's synchronous Subscription.NextMsg(timeout) maps directly onto
// spec.md §4.6's "time-bounded dequeue; nil means idle" contract.
package agent

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	fluxerrors "github.com/fluxrag/fluxrag/internal/errors"
)

// NATSQueue publishes/subscribes on a per-plugin subject
// "fluxrag.jobs.<plugin_id>" using a core NATS queue-group subscription
// (not durable: messages published while no subscriber is connected are
// not kept) so multiple worker processes can share load for one plugin id.
type NATSQueue struct {
	Conn    *nats.Conn
	Subject string // prefix, defaults to "fluxrag.jobs"

	subs map[string]*nats.Subscription
}

// NewNATSQueue wraps an existing connection; subjectPrefix defaults to
// "fluxrag.jobs" if empty.
func NewNATSQueue(conn *nats.Conn, subjectPrefix string) *NATSQueue {
	if subjectPrefix == "" {
		subjectPrefix = "fluxrag.jobs"
	}
	return &NATSQueue{Conn: conn, Subject: subjectPrefix, subs: map[string]*nats.Subscription{}}
}

func (q *NATSQueue) subject(pluginID string) string {
	return q.Subject + "." + pluginID
}

func (q *NATSQueue) Enqueue(msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fluxerrors.NewBackendFailure("nats-queue", err)
	}
	if err := q.Conn.Publish(q.subject(msg.PluginID), b); err != nil {
		return fluxerrors.NewBackendFailure("nats-queue", err)
	}
	return nil
}

func (q *NATSQueue) EnqueueMany(msgs []Message) error {
	for _, m := range msgs {
		if err := q.Enqueue(m); err != nil {
			return err
		}
	}
	return nil
}

func (q *NATSQueue) Dequeue(pluginID string, timeout time.Duration) (*Message, error) {
	sub, err := q.subscription(pluginID)
	if err != nil {
		return nil, err
	}

	natsMsg, err := sub.NextMsg(timeout)
	if err == nats.ErrTimeout {
		return nil, nil
	}
	if err != nil {
		return nil, fluxerrors.NewBackendFailure("nats-queue", err)
	}

	var msg Message
	if err := json.Unmarshal(natsMsg.Data, &msg); err != nil {
		return nil, fluxerrors.NewBackendFailure("nats-queue", err)
	}
	return &msg, nil
}

func (q *NATSQueue) subscription(pluginID string) (*nats.Subscription, error) {
	if sub, ok := q.subs[pluginID]; ok {
		return sub, nil
	}
	sub, err := q.Conn.QueueSubscribeSync(q.subject(pluginID), pluginID+"-workers")
	if err != nil {
		return nil, fluxerrors.NewBackendFailure("nats-queue", err)
	}
	q.subs[pluginID] = sub
	return sub, nil
}
