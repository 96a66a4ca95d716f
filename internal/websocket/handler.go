package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"

	"github.com/crowdqc/quality-gin/internal/auth"
)

var upgrader = gorillaWS.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该检查 Origin
		return true
	},
}

// WebSocketHandler WebSocket 处理器
// token 从 query 参数传入 (浏览器 WebSocket API 不支持自定义 header)
// 验证器关闭时从 user_id 参数读取身份
func WebSocketHandler(hub *Hub, validator *auth.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID string

		if validator.Enabled() {
			token := c.Query("token")
			if token == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			userID = claims.Sub
		} else {
			userID = c.Query("user_id")
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upgrade connection"})
			return
		}

		client := NewClient(
			uuid.New().String(),
			userID,
			hub,
			conn,
		)

		hub.Register <- client

		go client.ReadPump()
		go client.WritePump()
	}
}
