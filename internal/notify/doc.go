// Package notify delivers indexed-transaction events to registered
// listeners.
//
// A Registry is owned by the engine; it never references the engine back.
// After every transaction is logged and indexed, committed or aborted, the
// engine calls Notify once, which invokes each live listener synchronously in
// registration order.
//
// Listener failures are isolated: a returned error or a panic is logged as a
// LISTENER_INVOCATION error and counted, and delivery continues with the next
// listener. Nothing is propagated to the submitter.
//
// Deregistration: once Handle.Close returns, the listener receives no further
// events. A Close racing an in-flight Notify may still see that one delivery
// complete if it had already started.
package notify
