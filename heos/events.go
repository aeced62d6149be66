package heos

import (
	"sync"

	"go.uber.org/zap"
)

// AnyEvent subscribes a handler to every event.
const AnyEvent = "*"

// Client-local notifications emitted alongside the device's change events.
const (
	EventWatchdogError  = "watchdog_error"
	EventReconnecting   = "reconnecting"
	EventReconnected    = "reconnected"
	EventReconnectError = "reconnect_error"
	EventParseError     = "parse_error"
)

// Change events pushed by the device.
const (
	EventSourcesChanged           = "sources_changed"
	EventPlayersChanged           = "players_changed"
	EventGroupsChanged            = "groups_changed"
	EventPlayerStateChanged       = "player_state_changed"
	EventPlayerNowPlayingChanged  = "player_now_playing_changed"
	EventPlayerNowPlayingProgress = "player_now_playing_progress"
	EventPlayerPlaybackError      = "player_playback_error"
	EventPlayerQueueChanged       = "player_queue_changed"
	EventPlayerVolumeChanged      = "player_volume_changed"
	EventRepeatModeChanged        = "repeat_mode_changed"
	EventShuffleModeChanged       = "shuffle_mode_changed"
	EventGroupVolumeChanged       = "group_volume_changed"
	EventUserChanged              = "user_changed"
)

// Handler receives a broadcast event and its decoded message mapping.
type Handler func(event string, message map[string]string)

// StateHandler receives connection state transitions.
type StateHandler func(state State)

const eventBufferSize = 255

type eventMsg struct {
	event   string
	message map[string]string

	state   State
	isState bool
}

// eventHub fans broadcast events and state transitions out to subscribers.
// Delivery runs on a single dispatcher goroutine so handlers observe events
// in arrival order and can never block the read loop; when the buffer is
// full the event is dropped with a warning instead.
type eventHub struct {
	log *zap.Logger

	ch   chan eventMsg
	stop chan struct{}

	mu            sync.Mutex
	handlers      map[string][]Handler
	stateHandlers []StateHandler
}

func newEventHub(log *zap.Logger) *eventHub {
	h := &eventHub{
		log:      log,
		ch:       make(chan eventMsg, eventBufferSize),
		stop:     make(chan struct{}),
		handlers: make(map[string][]Handler),
	}

	go h.dispatchLoop()

	return h
}

// On subscribes a handler to the named event, or to every event when the
// name is AnyEvent. The returned function removes the subscription.
func (h *eventHub) On(event string, handler Handler) func() {
	h.mu.Lock()
	h.handlers[event] = append(h.handlers[event], handler)
	index := len(h.handlers[event]) - 1
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		handlers := h.handlers[event]
		if index < len(handlers) && handlers[index] != nil {
			handlers[index] = nil
		}
	}
}

// OnStateChange subscribes a handler to connection state transitions. The
// returned function removes the subscription.
func (h *eventHub) OnStateChange(handler StateHandler) func() {
	h.mu.Lock()
	h.stateHandlers = append(h.stateHandlers, handler)
	index := len(h.stateHandlers) - 1
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if index < len(h.stateHandlers) {
			h.stateHandlers[index] = nil
		}
	}
}

// emitEvent broadcasts fire-and-forget. It never blocks the caller.
func (h *eventHub) emitEvent(event string, message map[string]string) {
	if !h.isRunning() {
		return
	}

	select {
	case h.ch <- eventMsg{event: event, message: message}:
	default:
		h.log.Warn("Event buffer full, dropping event", zap.String("event", event))
	}
}

func (h *eventHub) emitState(state State) {
	if !h.isRunning() {
		return
	}

	select {
	case h.ch <- eventMsg{state: state, isState: true}:
	default:
		h.log.Warn("Event buffer full, dropping state transition",
			zap.Stringer("state", state))
	}
}

func (h *eventHub) Close() {
	if h.isRunning() {
		close(h.stop)
	}
}

func (h *eventHub) dispatchLoop() {
	for {
		select {
		case <-h.stop:
			return

		case msg := <-h.ch:
			h.deliver(msg)
		}
	}
}

func (h *eventHub) deliver(msg eventMsg) {
	h.mu.Lock()

	var handlers []Handler
	var stateHandlers []StateHandler

	if msg.isState {
		stateHandlers = append(stateHandlers, h.stateHandlers...)
	} else {
		handlers = append(handlers, h.handlers[AnyEvent]...)
		handlers = append(handlers, h.handlers[msg.event]...)
	}
	h.mu.Unlock()

	if msg.isState {
		for _, handler := range stateHandlers {
			if handler != nil {
				handler(msg.state)
			}
		}
		return
	}

	for _, handler := range handlers {
		if handler != nil {
			handler(msg.event, msg.message)
		}
	}
}

// isRunning returns true if Close has not been called
func (h *eventHub) isRunning() bool {
	select {
	case <-h.stop:
		return false

	default:
		return true
	}
}
