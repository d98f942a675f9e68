package websocket

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"cloudconnect-server/internal/logging"
	"cloudconnect-server/internal/middleware"
	"cloudconnect-server/internal/service"
	"cloudconnect-server/pkg/response"
	"cloudconnect-server/pkg/util"
)

// Handler 处理实时通道的握手
type Handler struct {
	hub         *Hub
	authService *service.AuthService
	cookieName  string
	upgrader    websocket.Upgrader
}

// NewHandler 创建 Handler
// 参数:
//   - hub: 通道管理器
//   - authService: 认证服务，握手时校验 Token
//   - cookieName: 登录 Cookie 名称
//   - allowedOrigins: 允许的来源，包含 "*" 时不校验
func NewHandler(hub *Hub, authService *service.AuthService, cookieName string, allowedOrigins []string) *Handler {
	h := &Handler{
		hub:         hub,
		authService: authService,
		cookieName:  cookieName,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(allowedOrigins),
	}
	return h
}

// HandleWS 处理通道握手
// 路由: GET /ws
// Token 来源依次为 Authorization 头、Cookie、query 参数 token
func (h *Handler) HandleWS(c *gin.Context) {
	token := middleware.ExtractToken(c, h.cookieName)
	if token == "" {
		token = c.Query("token")
	}

	claims, err := h.authService.Authenticate(c.Request.Context(), token)
	if err != nil {
		response.Unauthorized(c)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时已经写入了错误响应
		logging.Ctx(c.Request.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.hub.Open(conn, util.GenerateUUID(), claims.UserID, c.ClientIP(), c.Request.UserAgent())
}

// RegisterRoutes 注册通道路由
// 不经过认证中间件，握手时自行校验 Token
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWS)
}

// checkOrigin 校验浏览器来源
// 没有 Origin 头的非浏览器客户端和同源请求总是允许
func checkOrigin(allowed []string) func(r *http.Request) bool {
	allowAll := false
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[o] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	}
}
