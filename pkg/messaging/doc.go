/*
Package messaging is the coordination core: it routes every inbound
realtime event to a handler that applies it against the shared registries
and emits the resulting outbound events.

The package defines:
  - Dispatcher: routes events to handlers keyed by event type
  - Handler: processes one event type against the shared state
  - Peer: one websocket connection plus the identity bound to it

Built-in handlers, one per inbound event type:
  - ConnectHandler: binds a connection, broadcasts a presence snapshot
  - SendMessageHandler: appends, fans out, tracks delivery, echoes
  - MarkReadHandler: advances status to read, notifies the sender
  - HistoryHandler: replays a conversation log to the requester
  - TypingStartHandler / TypingStopHandler: debounced typing indicators
  - CallInitiateHandler / CallAnswerHandler / CallEndHandler: signaling
    relay state machine

Usage:

	dispatcher := messaging.NewDispatcher()
	dispatcher.Register(messaging.NewConnectHandler(registry))
	dispatcher.Register(messaging.NewSendMessageHandler(store, rtr, groups))
	// ... register the remaining handlers ...

	// For each decoded frame on a connection:
	err := dispatcher.Dispatch(peer, event)

Handlers never block on network I/O: emitting an outbound event is a
non-blocking hand-off to the connection's buffered writer.
*/
package messaging
