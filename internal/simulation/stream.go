package simulation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StreamService はストリーム接続から見た購読操作のインターフェースです。
type StreamService interface {
	Subscribe(id string) (*Simulation, *Subscriber, error)
	Unsubscribe(id string, sub *Subscriber)
}

// オリジン検証はCORSミドルウェア側の設定に委ねます。
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamHandler は GET /api/simulations/:id/stream のWebSocketハンドラーを返します。
// 接続直後に現時点の完全なジョブスナップショットを送り、以降は増分イベントのみを
// 配信します。未知のジョブIDの場合はエラー通知を1件送った上で、クライアントが
// 切断するまで ping/pong だけを処理し続けます。
func StreamHandler(svc StreamService, logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		simID := c.Param("id")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warnw("websocket upgrade failed", "simulation_id", simID, "error", err)
			return
		}
		defer conn.Close()
		logger.Infow("websocket connected", "simulation_id", simID)

		// gorilla/websocket は並行書き込みを許さないため、イベント配信用
		// ゴルーチンと ping 応答の書き込みをロックで直列化します。
		var writeMu sync.Mutex
		writeJSON := func(v any) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return conn.WriteJSON(v)
		}
		writePayload := func(payload []byte) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return conn.WriteMessage(websocket.TextMessage, payload)
		}

		snapshot, sub, err := svc.Subscribe(simID)
		switch {
		case errors.Is(err, ErrNotFound):
			_ = writeJSON(map[string]any{
				"type":    "error",
				"message": fmt.Sprintf("Simulation %s not found", simID),
			})
		case err != nil:
			logger.Errorw("subscribe failed", "simulation_id", simID, "error", err)
			return
		default:
			defer svc.Unsubscribe(simID, sub)

			if err := writeJSON(map[string]any{
				"type": "simulation_state",
				"data": snapshot,
			}); err != nil {
				logger.Infow("websocket closed before snapshot", "simulation_id", simID)
				return
			}

			go func() {
				for payload := range sub.C {
					if err := writePayload(payload); err != nil {
						return
					}
				}
			}()
		}

		// クライアント発のメッセージ処理ループ。切断または不正な
		// メッセージで終了します。
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				logger.Infow("websocket disconnected", "simulation_id", simID)
				return
			}

			var msg struct {
				Action string `json:"action"`
			}
			if err := json.Unmarshal(message, &msg); err != nil {
				logger.Warnw("malformed stream message, closing connection",
					"simulation_id", simID, "error", err)
				return
			}

			if msg.Action == "ping" {
				if err := writeJSON(map[string]any{"type": "pong"}); err != nil {
					return
				}
			}
		}
	}
}
