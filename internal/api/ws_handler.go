package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"texResume/internal/auth"
	"texResume/internal/worker"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsPongWait     = wsPingInterval + 10*time.Second
	wsWriteWait    = 5 * time.Second
	wsMaxMessage   = 4 << 10
)

// WsHandler 把用户的导出通知从 Redis 频道转发到 WebSocket。
// 连接建立后客户端必须先发送 {"type":"auth","token":"<access token>"}。
type WsHandler struct {
	redisClient    *redis.Client
	authService    *auth.AuthService
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins map[string]struct{}
}

// NewWsHandler 构造 WebSocket 处理器。allowedOrigins 为空时只允许同源。
func NewWsHandler(redisClient *redis.Client, authService *auth.AuthService, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	h := &WsHandler{
		redisClient:    redisClient,
		authService:    authService,
		logger:         logger,
		allowedOrigins: make(map[string]struct{}, len(allowedOrigins)),
	}
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			h.allowedOrigins[o] = struct{}{}
		}
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *WsHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) > 0 {
		_, ok := h.allowedOrigins[origin]
		return ok
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// wsCloseError 携带发给客户端的关闭码与原因。
type wsCloseError struct {
	code   int
	reason string
	err    error
}

func (e *wsCloseError) Error() string { return e.reason + ": " + e.err.Error() }
func (e *wsCloseError) Unwrap() error { return e.err }

func policyViolation(reason string, err error) error {
	return &wsCloseError{code: websocket.ClosePolicyViolation, reason: reason, err: err}
}

// HandleConnection 升级连接、完成首条消息鉴权，然后转发通知直到任一方断开。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	userID, err := h.authenticate(conn)
	if err != nil {
		log.Info("websocket authentication failed", slog.Any("error", err))
		h.closeWith(conn, err)
		return
	}
	log = log.With(slog.Uint64("user_id", uint64(userID)))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	readErr := make(chan error, 1)
	go func() {
		readErr <- h.drain(conn)
		cancel()
	}()

	err = h.forward(ctx, conn, userID, log)
	if err == nil {
		err = <-readErr
	}
	h.closeWith(conn, err)
	log.Info("websocket connection closed", slog.Any("reason", err))
}

// authenticate 在 wsAuthTimeout 内读取首条消息并校验访问令牌。
func (h *WsHandler) authenticate(conn *websocket.Conn) (uint, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	_, message, err := conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("read auth message: %w", err)
	}

	var msg wsAuthMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return 0, policyViolation("invalid auth payload", err)
	}
	if msg.Type != "auth" || msg.Token == "" {
		return 0, policyViolation("auth required", errors.New("first message is not an auth message"))
	}

	claims, err := h.authService.ValidateAccessToken(msg.Token)
	if err != nil {
		return 0, policyViolation("unauthorized", err)
	}
	if claims.MustChangePassword {
		return 0, policyViolation("password change required", errors.New("password change pending"))
	}

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	return claims.UserID, nil
}

// drain 持续读取以处理控制帧，客户端发来的业务消息被忽略。
func (h *WsHandler) drain(conn *websocket.Conn) error {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return err
		}
	}
}

// forward 订阅 user_notify:<uid>，把消息原样写给客户端并定期发送 ping。
func (h *WsHandler) forward(ctx context.Context, conn *websocket.Conn, userID uint, log *slog.Logger) error {
	channel := worker.NotifyChannel(userID)
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return &wsCloseError{code: websocket.CloseTryAgainLater, reason: "notifications unavailable", err: err}
	}
	log.Debug("subscribed to notifications", slog.String("channel", channel))

	messages := pubsub.Channel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("notification channel closed")
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return fmt.Errorf("write notification: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func (h *WsHandler) closeWith(conn *websocket.Conn, err error) {
	code, reason := websocket.CloseNormalClosure, ""
	var closeErr *wsCloseError
	if errors.As(err, &closeErr) {
		code, reason = closeErr.code, closeErr.reason
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}
