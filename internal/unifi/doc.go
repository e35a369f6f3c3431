// Package unifi streams real-time events from a UniFi controller.
//
// A Controller logs in over HTTPS, then opens one websocket per configured
// subsystem (network, access, protect). Each frame is classified by the
// subsystem's adapter and delivered to every registered Handler as an Event.
//
// Lifecycle:
//
//	ctrl, err := unifi.New(unifi.Options{Credentials: creds})
//	ctrl.AddHandler(h)
//	go ctrl.Connect(ctx) // blocks until the cycle's streams end
//	...
//	ctrl.Close()
//	ctrl.Wait()
//
// When an open stream closes or fails, the controller emits close or error
// for that subsystem and schedules one reconnect of every stream after a
// fixed delay. A guard flag collapses concurrent failures into a single
// attempt, which emits controller.reconnect before logging in again.
// Streams that fail to open emit error but do not trigger a reconnect.
//
// Handlers run synchronously on the goroutine that read the frame. A handler
// error fails the stream that produced the event.
package unifi
