// Package broker relays control signals between the lockstep driver and its
// worker processes.
//
// The broker is a TCP server. Each worker opens one connection and announces
// itself with a CONNECT frame; from then on the connection is registered
// under the worker's id. Frames arriving from workers are handed to a
// [Handler] in the order they were received on that connection, and
// [Broker.SendSignal] writes a frame to one registered worker.
//
// A connection that violates the protocol (a frame before CONNECT, a
// duplicate id, a sender id that does not match the registration, an
// unparseable or oversize frame) is closed and unregistered. Other
// connections are unaffected.
//
// # Lifecycle
//
//	b := broker.New(broker.WithLogger(logger), broker.WithHandler(h))
//	if err := b.Start("127.0.0.1:0"); err != nil {
//	    return err
//	}
//	defer b.Stop()
//
// Start and Stop are serialised. Starting a running broker or stopping a
// stopped one returns an [errors.LifecycleError].
package broker
