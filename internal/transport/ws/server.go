package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-sync/internal/domain"
	"github.com/cwrk-planet/chat-sync/internal/ratelimit"
	"github.com/cwrk-planet/chat-sync/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type PresenceSvc interface {
	ResolveIdentity(ctx context.Context, claimedID, claimedName, claimedAvatar string) (*domain.User, error)
	Attach(ctx context.Context, connID, userID string) error
	Detach(ctx context.Context, connID string)
	UserID(connID string) (string, bool)
}

type ChatSvc interface {
	Send(ctx context.Context, connID, channelID, text string, expireMinutes int) (*domain.Message, error)
	AttachUpload(ctx context.Context, connID, channelID string, att domain.Attachment, expireMinutes int) (*domain.Message, error)
	AnnounceUpload(ctx context.Context, connID string, messageID int64) (*domain.Message, error)
	DeleteOwn(ctx context.Context, connID string, messageID int64) (bool, error)
	Expire(ctx context.Context, messageID int64, channelID string) (bool, error)
	History(ctx context.Context, channelID string, limit int) ([]domain.Message, error)
}

type TypingSvc interface {
	StartTyping(ctx context.Context, connID, channelID, userName string) error
	StopTyping(ctx context.Context, connID, channelID string) error
	ClearConnection(connID string) int
}

type WhiteboardSvc interface {
	JoinBoard(ctx context.Context, connID, channelID string) (json.RawMessage, error)
	RelayChange(ctx context.Context, connID string, p domain.WhiteboardUpdatePayload) error
	RelayCursor(ctx context.Context, connID string, p domain.CursorPayload) error
	FlushConnection(connID string) int
}

type Options struct {
	PingEvery      time.Duration
	ReadLimit      int64
	SendQueue      int
	AllowedOrigins []string
}

type Server struct {
	upgrader   websocket.Upgrader
	hub        *Hub
	presence   PresenceSvc
	chat       ChatSvc
	typing     TypingSvc
	whiteboard WhiteboardSvc
	limiter    ratelimit.Limiter

	pingEvery time.Duration
	readLimit int64
	sendQueue int

	active sync.WaitGroup
}

func NewServer(hub *Hub, presence PresenceSvc, chat ChatSvc, typing TypingSvc, whiteboard WhiteboardSvc, opts Options) *Server {
	if opts.PingEvery <= 0 {
		opts.PingEvery = 15 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 1 << 20
	}
	if opts.SendQueue <= 0 {
		opts.SendQueue = 256
	}
	return &Server{
		hub:        hub,
		presence:   presence,
		chat:       chat,
		typing:     typing,
		whiteboard: whiteboard,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		pingEvery: opts.PingEvery,
		readLimit: opts.ReadLimit,
		sendQueue: opts.SendQueue,
	}
}

// SetLimiter caps message-creating events per user. Nil disables limiting.
func (s *Server) SetLimiter(l ratelimit.Limiter) { s.limiter = l }

// WS endpoint: GET /ws
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader already replied
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	s.active.Add(1)
	defer s.active.Done()

	c := newWsConn(uuid.NewString(), conn, s.sendQueue)
	s.hub.Register(c)
	ctx := logger.With(r.Context(), "conn_id", c.id)
	logger.From(ctx).Debug("ws connected", "remote", r.RemoteAddr)

	go c.writeLoop(s.pingEvery)
	s.readLoop(ctx, c)

	s.disconnect(context.WithoutCancel(ctx), c)
}

// Drain waits until every connection handler has finished its disconnect
// work, or ctx ends.
func (s *Server) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	c.conn.SetReadLimit(s.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.From(ctx).Debug("ws read failed", "err", err)
			}
			return
		}
		// activity counts as liveness
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil || in.Type == "" {
			s.replyError(ctx, c, "", domain.ErrMalformedPayload)
			continue
		}
		if next, err := s.dispatch(ctx, c, in); err != nil {
			if !quiet(in.Type) {
				s.replyError(ctx, c, in.Type, err)
			}
		} else if next != nil {
			ctx = next
		}
	}
}

// dispatch runs one inbound event. It returns a replacement context when the
// event changed the connection's identity.
func (s *Server) dispatch(ctx context.Context, c *wsConn, in inbound) (context.Context, error) {
	switch in.Type {
	case TypeJoin:
		var p JoinPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return s.join(ctx, c, p)

	case TypeJoinAsGuest:
		var p ChannelPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return nil, s.subscribe(ctx, c, domain.ChannelOrDefault(p.ChannelID))

	case TypeTyping:
		var p TypingPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return nil, s.typing.StartTyping(ctx, c.id, p.ChannelID, p.UserName)

	case TypeStopTyping:
		var p TypingPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return nil, s.typing.StopTyping(ctx, c.id, p.ChannelID)

	case TypeSendMessage:
		var p SendMessagePayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		if err := s.allow(ctx, c); err != nil {
			return nil, err
		}
		_, err := s.chat.Send(ctx, c.id, p.ChannelID, p.Text, p.ExpireMinutes)
		return nil, err

	case TypeFileUploaded:
		var p FileUploadedPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		if p.Message.ID > 0 {
			_, err := s.chat.AnnounceUpload(ctx, c.id, p.Message.ID)
			return nil, err
		}
		if err := s.allow(ctx, c); err != nil {
			return nil, err
		}
		_, err := s.chat.AttachUpload(ctx, c.id, p.ChannelID, p.Message.attachment(), p.Message.ExpireMinutes)
		return nil, err

	case TypeDeleteMessage:
		var p MessageRefPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		_, err := s.chat.DeleteOwn(ctx, c.id, p.MessageID)
		return nil, err

	case TypeDeleteExpiredMessage:
		var p MessageRefPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		_, err := s.chat.Expire(ctx, p.MessageID, p.ChannelID)
		return nil, err

	case TypeJoinWhiteboard:
		var p ChannelPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		_, err := s.whiteboard.JoinBoard(ctx, c.id, p.ChannelID)
		return nil, err

	case TypeWhiteboardChange:
		var p WhiteboardChangePayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		return nil, s.whiteboard.RelayChange(ctx, c.id, domain.WhiteboardUpdatePayload{
			ChannelID:      p.ChannelID,
			CanvasSnapshot: p.CanvasData,
			ChangeType:     p.ChangeType,
			ChangeData:     p.ChangeData,
		})

	case TypeWhiteboardCursor:
		var p domain.CursorPayload
		if err := decode(in.Payload, &p); err != nil {
			return nil, err
		}
		if uid, ok := s.presence.UserID(c.id); ok {
			p.UserID = uid
		}
		return nil, s.whiteboard.RelayCursor(ctx, c.id, p)

	default:
		logger.From(ctx).Debug("ws unknown event", "type", in.Type)
		return nil, nil
	}
}

func (s *Server) join(ctx context.Context, c *wsConn, p JoinPayload) (context.Context, error) {
	u, err := s.presence.ResolveIdentity(ctx, p.UserID, p.UserName, p.UserAvatar)
	if err != nil {
		return nil, err
	}
	if err := s.presence.Attach(ctx, c.id, u.ID); err != nil {
		return nil, err
	}
	ctx = logger.With(ctx, "user_id", u.ID)
	logger.From(ctx).Info("ws user joined", "name", u.Name)
	return ctx, s.subscribe(ctx, c, domain.ChannelOrDefault(p.ChannelID))
}

// subscribe adds the connection to a channel group and replays its history
// to the connection alone.
func (s *Server) subscribe(ctx context.Context, c *wsConn, channelID string) error {
	s.hub.Join(c.id, channelID)
	history, err := s.chat.History(ctx, channelID, 0)
	if err != nil {
		return err
	}
	s.hub.EmitTo(c.id, domain.EventMessageHistory, history)
	return nil
}

func (s *Server) allow(ctx context.Context, c *wsConn) error {
	if s.limiter == nil {
		return nil
	}
	uid, ok := s.presence.UserID(c.id)
	if !ok {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, uid)
	if err != nil {
		// fail open when the limiter backend is down
		logger.From(ctx).Warn("rate limiter unavailable", "err", err)
		return nil
	}
	if !allowed {
		return domain.ErrRateLimited
	}
	return nil
}

// disconnect saves pending whiteboard snapshots, ends typing episodes,
// releases presence and leaves every group, in that order.
func (s *Server) disconnect(ctx context.Context, c *wsConn) {
	s.whiteboard.FlushConnection(c.id)
	s.typing.ClearConnection(c.id)
	s.presence.Detach(ctx, c.id)
	s.hub.Unregister(c.id)
	_ = c.Close()
	logger.From(ctx).Debug("ws disconnected")
}

func (s *Server) replyError(ctx context.Context, c *wsConn, event string, err error) {
	code := errorCode(err)
	if code == CodeInternal {
		logger.From(ctx).Error("ws event failed", "event", event, "err", err)
	} else {
		logger.From(ctx).Debug("ws event rejected", "event", event, "code", code, "err", err)
	}
	s.hub.EmitTo(c.id, domain.EventError, domain.ErrorPayload{Event: event, Code: code, Message: err.Error()})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrIdentity):
		return CodeUnauthenticated
	case errors.Is(err, domain.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, domain.ErrMessageNotFound), errors.Is(err, domain.ErrChannelNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrMalformedPayload), errors.Is(err, domain.ErrNotWhiteboard):
		return CodeMalformed
	case errors.Is(err, domain.ErrRateLimited):
		return CodeRateLimited
	default:
		return CodeInternal
	}
}

// quiet events are ephemeral signals; their failures are not reported back.
func quiet(event string) bool {
	switch event {
	case TypeTyping, TypeStopTyping, TypeWhiteboardCursor:
		return true
	}
	return false
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Join(domain.ErrMalformedPayload, err)
	}
	return nil
}

// originChecker allows every origin when the list is empty or contains "*".
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
