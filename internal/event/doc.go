// Package event provides the in-process message bus shared by the host and
// its plugins.
//
// Plugins and the host exchange messages (type, payload, timestamp, source)
// without holding references to each other. The bus is shared by reference:
// the plugin manager injects the same instance into every plugin it registers.
//
// # Delivery
//
// A publish synthesizes a Message (generated ID and timestamp) and delivers it
// to every current subscriber of the message type:
//
//  1. Subscribers are snapshotted, then ordered by descending priority. Equal
//     priorities keep registration order.
//  2. Each subscription's filter runs. A filter that panics counts as false.
//  3. Handlers run one at a time, in that order, each finishing before the
//     next begins. A higher-priority handler's side effects are therefore
//     visible to lower-priority handlers of the same message.
//  4. A failing handler (error, panic, or timeout) is reported to the
//     subscription's ErrorHandler, or logged. Delivery always continues.
//  5. Once-subscriptions that were invoked are removed.
//
// Publish returns the number of handlers that completed without error. Handler
// failures never surface to the publisher.
//
// # Basic Usage
//
//	bus := event.NewBus(event.WithHandlerTimeout(2 * time.Second))
//
//	id, err := bus.SubscribeFunc("buffer:saved", func(ctx context.Context, msg event.Message) error {
//	    path, _ := event.PayloadAs[string](msg)
//	    return format(ctx, path)
//	}, event.WithPriority(event.PriorityHigh))
//
//	delivered, err := bus.Publish(ctx, "buffer:saved", "/tmp/x.sh", "editor")
//
// # Thread Safety
//
// The Bus is safe for concurrent use. Subscriptions may be added or removed
// while messages are being delivered; each publish works on its own snapshot.
// Concurrent publishes are not ordered relative to each other.
//
// # Subpackages
//
//   - events: plugin lifecycle message types and payloads
package event
