package devserver

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// ReloadPath is the websocket endpoint browsers listen on for rebuilds.
const ReloadPath = "/__jate/reload"

type messageType string

const (
	messageRebuilding messageType = "rebuilding"
	messageReload     messageType = "reload"
	messageError      messageType = "error"
)

type reloadMessage struct {
	Type  messageType `json:"type"`
	Error string      `json:"error,omitempty"`
}

// hub fans reload messages out to every connected browser.
type hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan reloadMessage
	count      chan chan int
	done       chan struct{}
}

type client struct {
	conn   *websocket.Conn
	notify chan reloadMessage
}

func newHub() *hub {
	return &hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client, 16),
		unregister: make(chan *client, 16),
		broadcast:  make(chan reloadMessage),
		count:      make(chan chan int),
		done:       make(chan struct{}),
	}
}

// run owns the client set until ctx ends.
func (h *hub) run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.notify)
				c.conn.Close()
			}
			h.drain()
			return

		case c := <-h.register:
			h.clients[c] = true

		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.notify)
				c.conn.Close()
			}

		case reply := <-h.count:
			reply <- len(h.clients)

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.notify <- msg:
				default:
					// slow client; it still gets the next message
				}
			}
		}
	}
}

func (h *hub) drain() {
	for {
		select {
		case c := <-h.register:
			c.conn.Close()
		case c := <-h.unregister:
			c.conn.Close()
		default:
			return
		}
	}
}

// send delivers msg to all clients unless ctx ends first.
func (h *hub) send(ctx context.Context, msg reloadMessage) {
	select {
	case h.broadcast <- msg:
	case <-ctx.Done():
	case <-h.done:
	}
}

func (h *hub) wait() { <-h.done }

// clientCount asks the hub loop how many browsers are connected.
func (h *hub) clientCount(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
	case <-ctx.Done():
		return 0
	case <-h.done:
		return 0
	}
	return <-reply
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (h *hub) handler(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		default:
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := &client{conn: conn, notify: make(chan reloadMessage, 1)}

		select {
		case h.register <- c:
		case <-ctx.Done():
			conn.Close()
			return
		}

		var once sync.Once
		leave := func() {
			once.Do(func() {
				select {
				case h.unregister <- c:
				case <-h.done:
				}
			})
		}
		defer leave()

		// reads only detect the browser going away
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					leave()
					return
				}
			}
		}()

		for {
			select {
			case msg, ok := <-c.notify:
				if !ok {
					return
				}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}
