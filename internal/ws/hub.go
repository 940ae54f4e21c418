package ws

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans snapshot payloads out to the subscribers of a stream. Streams
// are identified by an opaque key; the dashboard uses one key per viewer
// connection. A subscriber whose Send fails is closed and dropped.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

// message couples payload with its stream key.
type message struct {
	stream  string
	payload []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	stream string
	client Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.stream]; !ok {
				h.clients[sub.stream] = make(map[Subscriber]struct{})
			}
			h.clients[sub.stream][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.stream]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.stream)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.stream]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.stream)
				}
			}
		}
	}
}

// Register adds a client to a stream.
func (h *Hub) Register(stream string, client Subscriber) {
	h.register <- subscription{stream: stream, client: client}
}

// Unregister removes a client.
func (h *Hub) Unregister(stream string, client Subscriber) {
	h.unreg <- subscription{stream: stream, client: client}
}

// Broadcast sends payload to every subscriber of a stream.
func (h *Hub) Broadcast(stream string, payload []byte) {
	h.broadcast <- message{stream: stream, payload: payload}
}
