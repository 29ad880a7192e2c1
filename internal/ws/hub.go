package ws

import "sync"

// subscriberBuffer is how many frames a subscriber may lag behind before
// further frames are dropped for it.
const subscriberBuffer = 16

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans poll observations out to stream subscribers keyed by server name.
// Each subscriber is written by its own goroutine, so a slow peer only loses
// frames and never stalls Broadcast.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[Subscriber]*peer
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

// message couples payload with the server it describes.
type message struct {
	name    string
	payload []byte
}

// subscription defines register/unregister requests. reply, when set,
// receives the removed peer so the caller can wait for its writer.
type subscription struct {
	name   string
	client Subscriber
	reply  chan *peer
}

// peer is one subscriber's outbound queue.
type peer struct {
	client Subscriber
	queue  chan []byte
	done   chan struct{}
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]*peer),
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
			h.mu.Lock()
			if _, ok := h.clients[sub.name]; !ok {
				h.clients[sub.name] = make(map[Subscriber]*peer)
			}
			if _, ok := h.clients[sub.name][sub.client]; !ok {
				p := &peer{client: sub.client, queue: make(chan []byte, subscriberBuffer), done: make(chan struct{})}
				h.clients[sub.name][sub.client] = p
				go h.write(sub.name, p)
			}
			h.mu.Unlock()
		case sub := <-h.unreg:
			h.mu.Lock()
			var removed *peer
			if clients, ok := h.clients[sub.name]; ok {
				if p, ok := clients[sub.client]; ok {
					removed = p
					delete(clients, sub.client)
					close(p.queue)
				}
				if len(clients) == 0 {
					delete(h.clients, sub.name)
				}
			}
			h.mu.Unlock()
			if sub.reply != nil {
				sub.reply <- removed
			}
		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, p := range h.clients[msg.name] {
				select {
				case p.queue <- msg.payload:
				default:
					// Peer is behind; it gets the next frame that fits.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// write drains p's queue in order. After a failed send the client is closed,
// removed from the hub and the rest of its queue is discarded.
func (h *Hub) write(name string, p *peer) {
	defer close(p.done)
	failed := false
	for payload := range p.queue {
		if failed {
			continue
		}
		if err := p.client.Send(payload); err != nil {
			failed = true
			p.client.Close()
			go func() { h.unreg <- subscription{name: name, client: p.client} }()
		}
	}
}

// Register adds a client to a server stream.
func (h *Hub) Register(name string, client Subscriber) {
	h.register <- subscription{name: name, client: client}
}

// Unregister removes a client. Frames queued before the call are written
// before it returns, so the caller may send a final frame of its own.
func (h *Hub) Unregister(name string, client Subscriber) {
	reply := make(chan *peer, 1)
	h.unreg <- subscription{name: name, client: client, reply: reply}
	if p := <-reply; p != nil {
		<-p.done
	}
}

// Broadcast queues payload for all clients watching name. It does not wait
// for the frames to be written.
func (h *Hub) Broadcast(name string, payload []byte) {
	h.broadcast <- message{name: name, payload: payload}
}

// Subscribers reports how many clients watch name.
func (h *Hub) Subscribers(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[name])
}
