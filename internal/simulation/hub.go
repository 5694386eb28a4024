package simulation

import (
	"encoding/json"
	"sync"
)

// subscriberBuffer は1購読者あたりの未配信イベント上限です。
// これを超えて滞留した購読者は切断扱いで刈り取られます。
const subscriberBuffer = 256

// Subscriber はジョブ1件のイベントストリームを受け取る購読者です。
// C から読み出されるのはJSONエンコード済みのイベントです。
type Subscriber struct {
	C chan []byte

	once sync.Once
}

func newSubscriber() *Subscriber {
	return &Subscriber{C: make(chan []byte, subscriberBuffer)}
}

func (s *Subscriber) close() {
	s.once.Do(func() {
		close(s.C)
	})
}

// Hub はジョブIDごとの購読者集合を管理し、イベントを多重配信します。
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscriber]struct{}
}

// NewHub は Hub を作成します。
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscriber]struct{}),
	}
}

// Attach は指定ジョブの購読者を登録して返します。
// ジョブの存在確認は行いません（未知のジョブIDでも購読自体は成立します）。
func (h *Hub) Attach(simID string) *Subscriber {
	sub := newSubscriber()
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[simID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[simID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Detach は購読者を登録解除してチャネルを閉じます。冪等です。
func (h *Hub) Detach(simID string, sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if set, ok := h.subs[simID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, simID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Broadcast はイベントを指定ジョブの全購読者に配信します。
// 受け取れない購読者（バッファ溢れ）は集合から刈り取るだけで、
// 他の購読者への配信と呼び出し元には影響しません。
func (h *Hub) Broadcast(simID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		// イベントは自前の構造体とマップのみなのでここには来ない
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[simID]
	if !ok {
		return
	}

	var stalled []*Subscriber
	for sub := range set {
		select {
		case sub.C <- payload:
		default:
			stalled = append(stalled, sub)
		}
	}
	for _, sub := range stalled {
		delete(set, sub)
		sub.close()
	}
	if len(set) == 0 {
		delete(h.subs, simID)
	}
}

// SubscriberCount は指定ジョブの現在の購読者数を返します。
func (h *Hub) SubscriberCount(simID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[simID])
}
