// Package broadcast рассылает события о новых комментариях подключённым клиентам.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// KindCommentCreated - тип события о созданном комментарии.
const KindCommentCreated = "comment_created"

// DefaultBuffer - размер очереди одного подписчика.
const DefaultBuffer = 16

// Message - исходящее сообщение канала реального времени.
type Message struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// Hub хранит каналы подписчиков одной общей темы.
// Доставка без гарантий: медленный подписчик теряет сообщение, а не тормозит публикацию.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]chan Message
	buffer int
}

// NewHub создает хаб; buffer <= 0 означает DefaultBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[string]chan Message),
		buffer: buffer,
	}
}

// Subscribe регистрирует подписчика. cancel можно вызывать повторно.
func (h *Hub) Subscribe() (string, <-chan Message, func()) {
	id := uuid.NewString()
	ch := make(chan Message, h.buffer)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
	return id, ch, cancel
}

// Publish отправляет сообщение всем подписчикам, подключённым в момент вызова.
// Возвращает число подписчиков, получивших сообщение.
func (h *Hub) Publish(msg Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, ch := range h.subs {
		select {
		case ch <- msg:
			delivered++
		default:
			// клиент не успевает читать
			slog.Debug("broadcast: subscriber buffer full, message dropped", "subscriber", id, "kind", msg.Kind)
		}
	}
	return delivered
}

// Count возвращает число активных подписчиков.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
