package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"spotbot/internal/market"
	"spotbot/internal/models"
	"spotbot/pkg/utils"
)

// jsonBufferPool переиспользует буферы сериализации между Broadcast
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями панели.
//
// Центральная точка рассылки: воркеры и контроллер отдают сюда
// обновления пар, статистики и анализа рынка, hub доставляет их всем
// подключенным клиентам. Медленный клиент с переполненным буфером
// отключается, чтобы не тормозить остальных.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu  sync.RWMutex
	log *utils.Logger
}

// NewHub создает новый Hub
func NewHub(log *utils.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log.WithComponent("websocket"),
	}
}

// Run запускает главный цикл Hub до отмены контекста.
// Должен запускаться в отдельной горутине.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("Клиент подключен", utils.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("Клиент отключен", utils.Int("total", total))

		case message := <-h.broadcast:
			// Список клиентов копируется под коротким RLock, отправка
			// идет без блокировки
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Буфер клиента переполнен - отключаем
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				h.log.Warn("Медленные клиенты отключены",
					utils.Int("removed", len(toRemove)),
					utils.Int("total", total),
				)
			}
		}
	}
}

// Broadcast сериализует сообщение и рассылает всем клиентам
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.log.Error("Сериализация сообщения не удалась", utils.Err(err))
		jsonBufferPool.Put(buf)
		return
	}

	// Encode добавляет завершающий перевод строки
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	select {
	case h.broadcast <- msgCopy:
	default:
		// Hub не запущен или канал забит: сообщение теряется,
		// панель догонит состояние обычным запросом
	}
}

// BroadcastPairUpdate отправляет обновление пары ордеров
func (h *Hub) BroadcastPairUpdate(pair *models.OrderPair) {
	h.Broadcast(NewPairUpdateMessage(pair))
}

// BroadcastStatsUpdate отправляет обновление статистики
func (h *Hub) BroadcastStatsUpdate(stats *models.Stats) {
	h.Broadcast(NewStatsUpdateMessage(stats))
}

// BroadcastMarketUpdate отправляет свежий срез анализа рынка
func (h *Hub) BroadcastMarketUpdate(snap *market.Snapshot) {
	h.Broadcast(NewMarketUpdateMessage(snap))
}

// BroadcastNotification отправляет новое уведомление
func (h *Hub) BroadcastNotification(notif *models.Notification) {
	h.Broadcast(NewNotificationMessage(notif))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll закрывает все соединения при остановке hub
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}
