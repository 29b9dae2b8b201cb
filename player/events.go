package player

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/reelcast/reelcast/log"
)

// EventCallback receives property changes as (property, value) and other
// events as (event name, full event object).
type EventCallback func(name string, data any)

// observed are the properties every listener subscribes to.
var observed = []string{
	"time-pos",
	"duration",
	"pause",
	"paused-for-cache",
	"video-params",
	"eof-reached",
}

// EventListener holds a persistent connection to mpv.
// Observers and log subscriptions are scoped to that connection, so every
// request that must outlive a single reply goes through Request.
type EventListener struct {
	socketPath string
	callback   EventCallback

	mu        sync.Mutex
	conn      net.Conn
	listening bool
	done      chan struct{}
}

// NewEventListener creates a new event listener for the given socket.
func NewEventListener(socketPath string, callback EventCallback) *EventListener {
	return &EventListener{
		socketPath: socketPath,
		callback:   callback,
	}
}

// Start connects, registers the property observers and begins the read loop.
func (el *EventListener) Start() error {
	el.mu.Lock()
	defer el.mu.Unlock()

	if el.listening {
		return nil
	}

	conn, err := net.Dial("unix", el.socketPath)
	if err != nil {
		return fmt.Errorf("event listener connect: %w", err)
	}
	el.conn = conn

	for i, name := range observed {
		if err := el.writeLocked("observe_property", i+1, name); err != nil {
			_ = conn.Close()
			return fmt.Errorf("observe %s: %w", name, err)
		}
	}

	el.listening = true
	el.done = make(chan struct{})
	go el.readLoop(conn, el.done)

	log.Debugf("mpv event listener started on %s", el.socketPath)
	return nil
}

// Request sends a command on the persistent connection without waiting for its reply.
func (el *EventListener) Request(command ...any) error {
	el.mu.Lock()
	defer el.mu.Unlock()

	if !el.listening {
		return errors.New("event listener is not running")
	}
	return el.writeLocked(command...)
}

// Stop closes the connection and waits for the read loop to exit.
func (el *EventListener) Stop() {
	el.mu.Lock()
	if !el.listening {
		el.mu.Unlock()
		return
	}
	el.listening = false
	_ = el.conn.Close()
	done := el.done
	el.mu.Unlock()

	<-done
}

func (el *EventListener) writeLocked(command ...any) error {
	payload, err := encodeCommand(command)
	if err != nil {
		return err
	}
	_, err = el.conn.Write(payload)
	return err
}

func (el *EventListener) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	for scanner.Scan() {
		el.processEvent(scanner.Bytes())
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Warnf("event listener read error: %v", err)
	}

	el.mu.Lock()
	el.listening = false
	el.mu.Unlock()
}

// processEvent parses and dispatches a single mpv event line.
// Command replies carry no "event" field and are dropped.
func (el *EventListener) processEvent(line []byte) {
	var event map[string]any
	if err := json.Unmarshal(line, &event); err != nil {
		return
	}

	eventType, ok := event["event"].(string)
	if !ok || el.callback == nil {
		return
	}

	switch eventType {
	case "property-change":
		if name, _ := event["name"].(string); name != "" {
			el.callback(name, event["data"])
		}
	default:
		el.callback(eventType, event)
	}
}
