package sync

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/alexbckr/sdk/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Event is a single run-lifecycle notification the pipeline publishes to
// the remote service.
type Event struct {
	Name string
	Data map[string]any
}

// EventPublisher delivers one Event to the remote service.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// EventQueue serializes event transmission onto a single draining
// goroutine so a burst of events doesn't open one connection per event.
// Events reach it only through explicit Enqueue calls; log records are not
// forwarded to it. Callers should await WaitIdle before returning, success
// or failure, so no event is left mid-flight.
type EventQueue struct {
	publisher EventPublisher
	events    chan Event
	wg        sync.WaitGroup
	idleMu    sync.Mutex
}

// NewEventQueue starts the draining goroutine against publisher with the
// given channel capacity.
func NewEventQueue(publisher EventPublisher, capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = 64
	}
	q := &EventQueue{publisher: publisher, events: make(chan Event, capacity)}
	q.wg.Add(1)
	go q.drain()
	return q
}

func (q *EventQueue) drain() {
	defer q.wg.Done()
	for ev := range q.events {
		// Best-effort: a failed publish is not retried. The event stream is
		// a side channel for operator visibility, not the system of record.
		_ = q.publisher.Publish(context.Background(), ev)
	}
}

// Enqueue queues ev for publishing. It never blocks the caller on network
// I/O; if the queue is full the event is dropped and logged.
func (q *EventQueue) Enqueue(ctx context.Context, ev Event) {
	select {
	case q.events <- ev:
	default:
		ctxlog.FromContext(ctx).Warn("event queue full, dropping event", "event", ev.Name)
	}
}

// WaitIdle closes the queue and blocks until every enqueued event has been
// handed to the publisher.
func (q *EventQueue) WaitIdle(ctx context.Context) error {
	q.idleMu.Lock()
	defer q.idleMu.Unlock()
	close(q.events)
	q.wg.Wait()
	return q.publisher.Close()
}

// SocketIOPublisher publishes events over a socket.io connection that stays
// open for the life of a synchronization run instead of reconnecting per
// event.
type SocketIOPublisher struct {
	io      *socket.Socket
	manager *socket.Manager
	timeout time.Duration
}

// NewSocketIOPublisher connects to rawURL/namespace and returns a publisher
// once the connection is established or timeout elapses.
func NewSocketIOPublisher(rawURL, namespace string, insecureSkipVerify bool, timeout time.Duration) (*SocketIOPublisher, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing event publisher url: %w", err)
	}

	baseURL := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	opts := socket.DefaultOptions()
	opts.SetPath(parsed.Path)
	if insecureSkipVerify {
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)

	connected := make(chan struct{}, 1)
	connErr := make(chan error, 1)
	io.On(types.EventName("connect"), func(...any) {
		select {
		case connected <- struct{}{}:
		default:
		}
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			if err, ok := errs[0].(error); ok {
				select {
				case connErr <- err:
				default:
				}
				return
			}
		}
		select {
		case connErr <- fmt.Errorf("connect_error"):
		default:
		}
	})

	io.Connect()

	select {
	case <-connected:
	case err := <-connErr:
		return nil, fmt.Errorf("connecting event publisher: %w", err)
	case <-time.After(timeout):
		return nil, fmt.Errorf("timed out connecting event publisher to %s", rawURL)
	}

	return &SocketIOPublisher{io: io, manager: manager, timeout: timeout}, nil
}

// Publish emits ev over the socket. The event channel is fire-and-forget:
// no acknowledgement is awaited, matching the server's notification-only
// "event" endpoint.
func (p *SocketIOPublisher) Publish(ctx context.Context, ev Event) error {
	p.io.Emit("event", map[string]any{"name": ev.Name, "data": ev.Data})
	return nil
}

// Close disconnects the underlying socket.
func (p *SocketIOPublisher) Close() error {
	p.io.Disconnect()
	return nil
}

// NoopEventPublisher discards every event. It is the default when no event
// publishing endpoint is configured.
type NoopEventPublisher struct{}

func (NoopEventPublisher) Publish(context.Context, Event) error { return nil }
func (NoopEventPublisher) Close() error                         { return nil }
