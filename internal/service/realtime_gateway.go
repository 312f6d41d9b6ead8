package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/spark-chat-api/internal/chatid"
	"github.com/noah-isme/spark-chat-api/internal/dto"
	"github.com/noah-isme/spark-chat-api/internal/middleware"
	"github.com/noah-isme/spark-chat-api/internal/models"
	"github.com/noah-isme/spark-chat-api/internal/observability"
	"github.com/noah-isme/spark-chat-api/internal/repository"
)

const (
	sessionEpochPrefix    = "session:epoch:"
	sessionReplacedReason = "New login detected"

	envelopeRoom  = "room"
	envelopeUser  = "user"
	envelopeClaim = "claim"
)

// TokenVerifier validates session tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (dto.AuthClaims, error)
}

// GatewayConfig tunes session timing and message previews.
type GatewayConfig struct {
	AuthTimeout   time.Duration
	PingInterval  time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	PreviewLength int
	SendBuffer    int
	FanoutTimeout time.Duration
}

// GatewayDependencies groups the collaborators of the realtime gateway.
type GatewayDependencies struct {
	Tokens    TokenVerifier
	Streams   repository.StreamRepository
	Metadata  ChatMetadataStore
	Presence  PresenceStore
	History   ChatHistoryService
	Friends   FriendDirectory
	Queue     WriteBehind
	Bridge    RealtimeBridge
	Redis     *redis.Client
	Validator *validator.Validate
}

// SessionOptions carries what the HTTP upgrade learned about the connection.
type SessionOptions struct {
	Token         string
	CorrelationID string
	Context       context.Context
}

// Gateway manages authenticated realtime sessions: one live session per user,
// chat rooms, message delivery, read receipts, typing and presence.
type Gateway interface {
	ServeConnection(conn RealtimeConn, opts SessionOptions)
	Start(ctx context.Context) error
	ActiveSessions() int
}

type gateway struct {
	deps      GatewayDependencies
	cfg       GatewayConfig
	hub       *realtimeHub
	nodeID    string
	sanitizer *bluemonday.Policy
	tracer    trace.Tracer
	logger    zerolog.Logger
	now       func() time.Time
	epochs    func(ctx context.Context, userID string) int64
	fanout    sync.WaitGroup
}

type realtimeEnvelope struct {
	Source string            `json:"source"`
	Kind   string            `json:"kind"`
	Target string            `json:"target"`
	Epoch  int64             `json:"epoch,omitempty"`
	Event  dto.RealtimeEvent `json:"event"`
	SentAt time.Time         `json:"sent_at"`
}

// NewGateway builds the realtime gateway.
func NewGateway(deps GatewayDependencies, cfg GatewayConfig, logger zerolog.Logger) Gateway {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 10 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = 30
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.FanoutTimeout <= 0 {
		cfg.FanoutTimeout = 5 * time.Second
	}

	g := &gateway{
		deps:      deps,
		cfg:       cfg,
		hub:       newRealtimeHub(logger),
		nodeID:    uuid.NewString(),
		sanitizer: bluemonday.StrictPolicy(),
		tracer:    otel.Tracer("github.com/noah-isme/spark-chat-api/internal/service/realtime"),
		logger:    logger.With().Str("component", "realtime_gateway").Logger(),
		now:       time.Now,
	}
	g.epochs = g.nextEpoch
	return g
}

// Start subscribes to the cross-instance bridge when one is configured.
func (g *gateway) Start(ctx context.Context) error {
	if g.deps.Bridge == nil {
		return nil
	}
	return g.deps.Bridge.Subscribe(ctx, g.handleEnvelope)
}

func (g *gateway) ActiveSessions() int {
	return g.hub.sessions()
}

// ServeConnection authenticates the connection and runs it until it closes.
func (g *gateway) ServeConnection(conn RealtimeConn, opts SessionOptions) {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = middleware.ContextWithCorrelation(ctx, opts.CorrelationID)

	claims, err := g.authenticate(ctx, conn, opts.Token)
	if err != nil {
		g.reject(conn, err)
		return
	}

	client := &realtimeClient{
		sessionID: uuid.NewString(),
		userID:    claims.UserID,
		epoch:     g.epochs(ctx, claims.UserID),
		conn:      conn,
		send:      make(chan dto.RealtimeEvent, g.cfg.SendBuffer),
		kick:      make(chan struct{}),
		closed:    make(chan struct{}),
		rooms:     map[string]struct{}{},
		log: g.logger.With().
			Str("user_id", claims.UserID).
			Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).
			Logger(),
	}

	if previous := g.hub.claim(client); previous == client {
		client.displace(sessionReplacedReason)
		observability.ForcedDisconnects().WithLabelValues("local").Inc()
		client.log.Info().Int64("epoch", client.epoch).Msg("newer session already registered")
	} else if previous != nil {
		previous.displace(sessionReplacedReason)
		observability.ForcedDisconnects().WithLabelValues("local").Inc()
		client.log.Info().Str("replaced_session", previous.sessionID).Msg("replaced previous session")
	}
	g.publish(ctx, realtimeEnvelope{Kind: envelopeClaim, Target: client.userID, Epoch: client.epoch})

	observability.RealtimeSessions().Inc()
	defer observability.RealtimeSessions().Dec()

	client.enqueue(dto.RealtimeEvent{
		Event: dto.EventAuthenticated,
		Data:  dto.AuthenticatedEvent{UserID: client.userID, SessionID: client.sessionID},
	})
	g.deps.Presence.SetOnline(ctx, client.userID)
	g.announcePresence(client.userID, models.PresenceOnline, nil)

	// A claim published by another instance before this session registered
	// was missed; the epoch counter still shows it.
	if latest := g.latestEpoch(ctx, client.userID); latest > client.epoch {
		if holder := g.hub.displaceOlder(client.userID, latest); holder != nil {
			holder.displace(sessionReplacedReason)
			observability.ForcedDisconnects().WithLabelValues("remote").Inc()
			holder.log.Info().Int64("epoch", holder.epoch).Int64("latest_epoch", latest).Msg("session superseded during login")
		}
	}

	go client.writer(g.cfg.PingInterval, g.cfg.WriteWait)
	g.readLoop(ctx, client)

	client.close()
	if g.hub.release(client) {
		lastSeen := g.deps.Presence.SetOffline(context.WithoutCancel(ctx), client.userID)
		g.announcePresence(client.userID, models.PresenceOffline, &lastSeen)
		client.log.Debug().Msg("session closed")
	}
}

// authenticate uses the handshake token when present, otherwise waits for an
// authenticate frame.
func (g *gateway) authenticate(ctx context.Context, conn RealtimeConn, token string) (dto.AuthClaims, error) {
	if strings.TrimSpace(token) == "" {
		_ = conn.SetReadDeadline(g.now().Add(g.cfg.AuthTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return dto.AuthClaims{}, fmt.Errorf("%w: no credentials received", ErrUnauthenticated)
		}

		var frame dto.RealtimeInbound
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event != dto.EventAuthenticate {
			return dto.AuthClaims{}, fmt.Errorf("%w: expected authenticate event", ErrUnauthenticated)
		}
		var payload dto.AuthenticatePayload
		if err := g.decode(frame.Data, &payload); err != nil {
			return dto.AuthClaims{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		token = payload.Token
	}

	return g.deps.Tokens.Verify(ctx, token)
}

func (g *gateway) reject(conn RealtimeConn, err error) {
	message := "authentication failed"
	if errors.Is(err, ErrTokenRevoked) {
		message = "token revoked"
	}
	g.logger.Debug().Err(err).Msg("rejecting realtime connection")
	observability.RealtimeEvents().WithLabelValues(dto.EventAuthenticate, "rejected").Inc()

	_ = conn.SetWriteDeadline(g.now().Add(g.cfg.WriteWait))
	_ = conn.WriteJSON(dto.RealtimeEvent{Event: dto.EventAuthError, Data: dto.ErrorEvent{Error: message}})
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeCodeUnauthorized, message))
	_ = conn.Close()
}

// nextEpoch orders sessions of the same user across instances. Without Redis
// the epoch is 0 and the session never displaces remote sessions.
func (g *gateway) nextEpoch(ctx context.Context, userID string) int64 {
	if g.deps.Redis == nil {
		return 0
	}
	epoch, err := g.deps.Redis.Incr(ctx, sessionEpochPrefix+userID).Result()
	if err != nil {
		g.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to allocate session epoch")
		return 0
	}
	return epoch
}

// latestEpoch reads the user's epoch counter; 0 when it cannot be read.
func (g *gateway) latestEpoch(ctx context.Context, userID string) int64 {
	if g.deps.Redis == nil {
		return 0
	}
	epoch, err := g.deps.Redis.Get(ctx, sessionEpochPrefix+userID).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			g.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to read session epoch")
		}
		return 0
	}
	return epoch
}

func (g *gateway) readLoop(ctx context.Context, client *realtimeClient) {
	conn := client.conn
	_ = conn.SetReadDeadline(g.now().Add(g.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(g.now().Add(g.cfg.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			client.log.Debug().Err(err).Msg("realtime read loop ended")
			return
		}
		_ = conn.SetReadDeadline(g.now().Add(g.cfg.PongWait))

		var frame dto.RealtimeInbound
		if err := json.Unmarshal(data, &frame); err != nil {
			client.enqueue(errorEvent(dto.EventError, "", "malformed frame", ""))
			continue
		}
		g.dispatch(ctx, client, frame)
	}
}

func (g *gateway) dispatch(ctx context.Context, client *realtimeClient, frame dto.RealtimeInbound) {
	var err error
	switch frame.Event {
	case dto.EventJoinChat:
		err = g.handleJoin(client, frame.Data)
	case dto.EventLeaveChat:
		err = g.handleLeave(client, frame.Data)
	case dto.EventSendMessage:
		err = g.handleSend(ctx, client, frame.Data)
	case dto.EventMessagesSeen:
		err = g.handleSeen(ctx, client, frame.Data)
	case dto.EventTyping:
		err = g.handleTyping(ctx, client, frame.Data, dto.EventUserTyping)
	case dto.EventStopTyping:
		err = g.handleTyping(ctx, client, frame.Data, dto.EventUserStoppedTyping)
	case dto.EventHeartbeat:
		g.deps.Presence.SetOnline(ctx, client.userID)
	case dto.EventAuthenticate:
	default:
		observability.RealtimeEvents().WithLabelValues("unknown", "rejected").Inc()
		client.enqueue(errorEvent(dto.EventError, frame.Event, "unknown event", ""))
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = "rejected"
		client.log.Debug().Err(err).Str("event", frame.Event).Msg("realtime event rejected")
	}
	observability.RealtimeEvents().WithLabelValues(frame.Event, outcome).Inc()
}

func (g *gateway) handleJoin(client *realtimeClient, raw json.RawMessage) error {
	var payload dto.FriendPayload
	chatID, friendID, err := g.chatFor(client, raw, &payload, func() string { return payload.FriendID })
	if err != nil {
		client.enqueue(errorEvent(dto.EventChatError, dto.EventJoinChat, err.Error(), ""))
		return err
	}

	g.hub.join(client, chatID)
	client.enqueue(dto.RealtimeEvent{
		Event: dto.EventChatJoined,
		Data:  dto.ChatRoomEvent{ChatRoomID: chatID, FriendID: friendID},
	})
	return nil
}

func (g *gateway) handleLeave(client *realtimeClient, raw json.RawMessage) error {
	var payload dto.FriendPayload
	chatID, friendID, err := g.chatFor(client, raw, &payload, func() string { return payload.FriendID })
	if err != nil {
		client.enqueue(errorEvent(dto.EventChatError, dto.EventLeaveChat, err.Error(), ""))
		return err
	}

	g.hub.leave(client, chatID)
	client.enqueue(dto.RealtimeEvent{
		Event: dto.EventChatLeft,
		Data:  dto.ChatRoomEvent{ChatRoomID: chatID, FriendID: friendID},
	})
	return nil
}

// handleSend appends to the fast log, bumps metadata, fans the message out to
// the room and notifies the recipient. Durable persistence runs write-behind.
func (g *gateway) handleSend(ctx context.Context, client *realtimeClient, raw json.RawMessage) error {
	var payload dto.SendMessagePayload
	chatID, friendID, err := g.chatFor(client, raw, &payload, func() string { return payload.FriendID })
	if err != nil {
		client.enqueue(errorEvent(dto.EventMessageError, dto.EventSendMessage, err.Error(), payload.TempID))
		return err
	}

	body := strings.TrimSpace(html.UnescapeString(g.sanitizer.Sanitize(payload.Message)))
	if body == "" {
		err := fmt.Errorf("%w: message empty after sanitization", ErrInvalidInput)
		client.enqueue(errorEvent(dto.EventMessageError, dto.EventSendMessage, err.Error(), payload.TempID))
		return err
	}

	ctx, span := g.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.String("chat.id", chatID),
		attribute.String("chat.sender_id", client.userID),
	))
	defer span.End()

	timestamp := g.now().UnixMilli()
	id, err := g.deps.Streams.Append(ctx, chatID, repository.StreamEntry{
		SentBy:    client.userID,
		Message:   body,
		Timestamp: timestamp,
	})
	if err != nil {
		span.RecordError(err)
		g.logger.Error().Err(err).Str("chat_id", chatID).Msg("failed to append message")
		client.enqueue(errorEvent(dto.EventMessageError, dto.EventSendMessage, "message could not be delivered", payload.TempID))
		return err
	}

	g.deps.Metadata.RecordMessage(ctx, chatID, friendID, client.userID)

	message := dto.ChatMessage{
		ID:         id,
		ChatRoomID: chatID,
		SentBy:     client.userID,
		Message:    body,
		Timestamp:  timestamp,
		TempID:     payload.TempID,
	}
	event := dto.RealtimeEvent{Event: dto.EventNewMessage, Data: message}
	g.deliverRoom(ctx, chatID, event)
	if !g.hub.inRoom(client, chatID) {
		client.enqueue(event)
	}

	g.deliverUser(ctx, friendID, dto.RealtimeEvent{
		Event: dto.EventMessageNotification,
		Data: dto.MessageNotification{
			SenderID:   client.userID,
			ChatRoomID: chatID,
			Message:    preview(body, g.cfg.PreviewLength),
			Timestamp:  timestamp,
		},
	})

	durable := message
	durable.TempID = ""
	if g.deps.Queue != nil && g.deps.History != nil {
		g.deps.Queue.Enqueue(BackgroundTask{
			Name: "persist_message",
			Run: func(taskCtx context.Context) error {
				return g.deps.History.Persist(taskCtx, durable)
			},
		})
	}

	observability.ChatMessagesSent().WithLabelValues("local").Inc()
	return nil
}

func (g *gateway) handleSeen(ctx context.Context, client *realtimeClient, raw json.RawMessage) error {
	var payload dto.FriendPayload
	chatID, friendID, err := g.chatFor(client, raw, &payload, func() string { return payload.FriendID })
	if err != nil {
		client.enqueue(errorEvent(dto.EventChatError, dto.EventMessagesSeen, err.Error(), ""))
		return err
	}

	g.deps.Metadata.Reset(ctx, chatID, client.userID)
	g.deliverUser(ctx, friendID, dto.RealtimeEvent{
		Event: dto.EventMessagesSeen,
		Data:  dto.SeenReceipt{SeenBy: client.userID, ChatRoomID: chatID},
	})
	return nil
}

func (g *gateway) handleTyping(ctx context.Context, client *realtimeClient, raw json.RawMessage, outbound string) error {
	var payload dto.FriendPayload
	chatID, friendID, err := g.chatFor(client, raw, &payload, func() string { return payload.FriendID })
	if err != nil {
		return err
	}

	g.deliverUser(ctx, friendID, dto.RealtimeEvent{
		Event: outbound,
		Data:  dto.TypingEvent{UserID: client.userID, ChatID: chatID},
	})
	return nil
}

// chatFor decodes and validates a payload addressed to a friend and returns
// the shared chat id with the trimmed friend id.
func (g *gateway) chatFor(client *realtimeClient, raw json.RawMessage, payload interface{}, friendID func() string) (string, string, error) {
	if err := g.decode(raw, payload); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	friend := strings.TrimSpace(friendID())
	if friend == client.userID {
		return "", "", fmt.Errorf("%w: cannot chat with yourself", ErrInvalidInput)
	}
	chatID, err := chatid.Canonical(client.userID, friend)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return chatID, friend, nil
}

func (g *gateway) decode(raw json.RawMessage, payload interface{}) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return err
	}
	if g.deps.Validator == nil {
		return nil
	}
	return g.deps.Validator.Struct(payload)
}

func (g *gateway) deliverRoom(ctx context.Context, room string, event dto.RealtimeEvent) {
	g.hub.broadcastRoom(room, event)
	g.publish(ctx, realtimeEnvelope{Kind: envelopeRoom, Target: room, Event: event})
}

func (g *gateway) deliverUser(ctx context.Context, userID string, event dto.RealtimeEvent) {
	g.hub.sendUser(userID, event)
	g.publish(ctx, realtimeEnvelope{Kind: envelopeUser, Target: userID, Event: event})
}

// announcePresence pushes a presence change to the user's friends without
// holding up the connection.
func (g *gateway) announcePresence(userID, status string, lastSeen *int64) {
	if g.deps.Friends == nil {
		return
	}

	g.fanout.Add(1)
	go func() {
		defer g.fanout.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.FanoutTimeout)
		defer cancel()

		event := dto.RealtimeEvent{
			Event: dto.EventPresenceUpdate,
			Data:  dto.PresenceUpdate{UserID: userID, Status: status, LastSeen: lastSeen},
		}
		for _, friendID := range g.deps.Friends.FriendIDs(ctx, userID) {
			g.deliverUser(ctx, friendID, event)
		}
	}()
}

func (g *gateway) publish(ctx context.Context, envelope realtimeEnvelope) {
	if g.deps.Bridge == nil {
		return
	}
	envelope.Source = g.nodeID
	envelope.SentAt = g.now().UTC()

	payload, err := json.Marshal(envelope)
	if err != nil {
		g.logger.Warn().Err(err).Msg("failed to encode realtime envelope")
		return
	}
	if err := g.deps.Bridge.Publish(ctx, payload); err != nil {
		g.logger.Warn().Err(err).Str("kind", envelope.Kind).Msg("failed to publish realtime envelope")
	}
}

func (g *gateway) handleEnvelope(data []byte) {
	var envelope realtimeEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		g.logger.Warn().Err(err).Msg("invalid realtime envelope")
		return
	}
	if envelope.Source == g.nodeID {
		return
	}

	switch envelope.Kind {
	case envelopeRoom:
		g.hub.broadcastRoom(envelope.Target, envelope.Event)
		if envelope.Event.Event == dto.EventNewMessage {
			observability.ChatMessagesSent().WithLabelValues("remote").Inc()
		}
	case envelopeUser:
		g.hub.sendUser(envelope.Target, envelope.Event)
	case envelopeClaim:
		if holder := g.hub.displaceOlder(envelope.Target, envelope.Epoch); holder != nil {
			holder.displace(sessionReplacedReason)
			observability.ForcedDisconnects().WithLabelValues("remote").Inc()
		}
	default:
		g.logger.Debug().Str("kind", envelope.Kind).Msg("ignoring unknown realtime envelope")
	}
}

func errorEvent(name, source, message, tempID string) dto.RealtimeEvent {
	return dto.RealtimeEvent{
		Event: name,
		Data:  dto.ErrorEvent{Error: message, Event: source, TempID: tempID},
	}
}

func preview(body string, length int) string {
	if utf8.RuneCountInString(body) <= length {
		return body
	}
	runes := []rune(body)
	return string(runes[:length]) + "..."
}
