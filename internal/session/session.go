package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/realtime"
	"github.com/damoang/angple-chat/pkg/cache"
	pkglogger "github.com/damoang/angple-chat/pkg/logger"
	"github.com/google/uuid"
)

// ErrClosed is returned by Submit once the session has stopped
var ErrClosed = errors.New("session closed")

// Source provides the live streams a session watches
type Source interface {
	SubscribeConversation(ctx context.Context, selfID string, key domain.ConversationKey) *realtime.Subscription[domain.Message]
	SubscribeInbound(ctx context.Context, selfID string, since int64) *realtime.Subscription[domain.Message]
	SubscribeRequests(ctx context.Context, selfID string) *realtime.Subscription[domain.AccessRequest]
	ResolveUser(ctx context.Context, userID string) (*domain.User, error)
}

// Sender persists a message on behalf of the session owner
type Sender interface {
	Send(ctx context.Context, authorID string, req *domain.SendMessageRequest) (*domain.Message, error)
}

// Options tunes a session
type Options struct {
	MessageCacheTTL time.Duration
	Now             func() time.Time
}

type sendResult struct {
	id  string
	err error
}

// Session is one connected client. All of its state is owned by the Run loop.
type Session struct {
	selfID string
	source Source
	sender Sender
	store  cache.Store
	now    func() time.Time

	router *Router
	rec    *Reconciler

	commands chan Command
	events   chan Event
	results  chan sendResult
	done     chan struct{}

	conversation *realtime.Subscription[domain.Message]
	live         []domain.Message
	pending      []domain.Message
	requests     []domain.AccessRequest
	haveRequests bool
}

// New creates a session for selfID
func New(selfID string, source Source, sender Sender, store cache.Store, opts Options) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		selfID:   selfID,
		source:   source,
		sender:   sender,
		store:    store,
		now:      now,
		router:   NewRouter(selfID, store, opts.MessageCacheTTL),
		commands: make(chan Command, 16),
		events:   make(chan Event, 64),
		results:  make(chan sendResult, 16),
		done:     make(chan struct{}),
	}
}

// Events is the stream of pushes for the client. It is closed when Run returns.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Submit queues a client command
func (s *Session) Submit(ctx context.Context, cmd Command) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.commands <- cmd:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the session until ctx is done
func (s *Session) Run(ctx context.Context) {
	defer close(s.events)
	defer close(s.done)

	activeSessions.Inc()
	defer activeSessions.Dec()

	watermark := s.now().UnixMilli()
	s.rec = NewReconciler(s.selfID, watermark, s.loadMuted(ctx))

	active := s.router.Restore(ctx, s.source.ResolveUser)
	s.rec.SetActive(active)
	s.emitCached(ctx, active)

	s.conversation = s.source.SubscribeConversation(ctx, s.selfID, active)
	inbound := s.source.SubscribeInbound(ctx, s.selfID, watermark)
	requests := s.source.SubscribeRequests(ctx, s.selfID)
	defer func() {
		s.conversation.Close()
		inbound.Close()
		requests.Close()
	}()

	for {
		select {
		case snap, ok := <-s.conversation.C:
			if !ok {
				return
			}
			s.onConversation(ctx, snap)

		case snap, ok := <-inbound.C:
			if !ok {
				return
			}
			s.onInbound(ctx, snap)

		case snap, ok := <-requests.C:
			if !ok {
				return
			}
			s.onRequests(ctx, snap)

		case cmd := <-s.commands:
			s.onCommand(ctx, cmd)

		case res := <-s.results:
			s.onSendResult(ctx, res)

		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) loadMuted(ctx context.Context) []domain.ConversationKey {
	ids, err := s.store.GetMutedChats(ctx, s.selfID)
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		pkglogger.Warn("session %s: load muted chats failed: %v", s.selfID, err)
	}
	keys := make([]domain.ConversationKey, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, domain.ParseConversationKey(id))
	}
	return keys
}

func (s *Session) onConversation(ctx context.Context, snap realtime.Snapshot[domain.Message]) {
	active := s.router.Active()
	if snap.Err != nil {
		subscriptionErrorsTotal.WithLabelValues("conversation").Inc()
		pkglogger.GetLogger().Warn().Err(snap.Err).
			Str("user_id", s.selfID).
			Str("conversation", active.String()).
			Msg("conversation stream failed, serving cached snapshot")
		cached, _ := s.router.Cached(ctx, active)
		s.emitMessages(ctx, active, cached, true)
		return
	}

	s.live = snap.Items
	s.settlePending()
	s.router.Remember(ctx, active, s.live)
	s.emitMessages(ctx, active, s.live, false)
}

func (s *Session) onInbound(ctx context.Context, snap realtime.Snapshot[domain.Message]) {
	if snap.Err != nil {
		subscriptionErrorsTotal.WithLabelValues("inbound").Inc()
		pkglogger.GetLogger().Warn().Err(snap.Err).Str("user_id", s.selfID).Msg("inbound stream failed")
		return
	}
	s.emitAlerts(ctx, s.rec.ObserveMessages(snap.Items))
}

func (s *Session) onRequests(ctx context.Context, snap realtime.Snapshot[domain.AccessRequest]) {
	if snap.Err != nil {
		subscriptionErrorsTotal.WithLabelValues("requests").Inc()
		pkglogger.GetLogger().Warn().Err(snap.Err).Str("user_id", s.selfID).Msg("request stream failed")
		return
	}

	s.requests = snap.Items
	s.haveRequests = true
	responses := make([]*domain.AccessRequestResponse, len(s.requests))
	for i := range s.requests {
		responses[i] = s.requests[i].ToResponse()
	}
	s.emit(ctx, Event{Type: EventRequests, Payload: RequestsPayload{
		Requests:     responses,
		PendingCount: domain.CountPendingFor(s.requests, s.selfID),
	}})
	s.emitAlerts(ctx, s.rec.ObserveRequests(s.requests))
	s.emitAccess(ctx)
}

func (s *Session) onCommand(ctx context.Context, cmd Command) {
	switch cmd.Type {
	case CommandSelect:
		s.selectConversation(ctx, domain.ParseConversationKey(cmd.Conversation))
	case CommandMute:
		s.toggleMute(ctx, domain.ParseConversationKey(cmd.Conversation))
	case CommandSend:
		s.send(ctx, cmd)
	case CommandPing:
		s.emit(ctx, Event{Type: EventPong})
	default:
		s.emitError(ctx, "unknown command: "+cmd.Type, "")
	}
}

func (s *Session) selectConversation(ctx context.Context, key domain.ConversationKey) {
	if !key.IsGlobal() {
		if key.PeerID() == s.selfID {
			s.emitError(ctx, "cannot open a conversation with yourself", "")
			return
		}
		if _, err := s.source.ResolveUser(ctx, key.PeerID()); err != nil {
			s.emitError(ctx, "user not found", "")
			return
		}
	}

	if err := s.router.Select(ctx, key); err != nil {
		pkglogger.Warn("session %s: persist selection failed: %v", s.selfID, err)
	}
	if s.rec.SetActive(key) {
		s.emitUnread(ctx)
	}

	s.conversation.Close()
	s.live = nil
	s.emitCached(ctx, key)
	s.conversation = s.source.SubscribeConversation(ctx, s.selfID, key)
	s.emitAccess(ctx)
}

func (s *Session) toggleMute(ctx context.Context, key domain.ConversationKey) {
	s.rec.ToggleMute(key)
	muted := s.rec.Muted()
	ids := make([]string, len(muted))
	for i, k := range muted {
		ids[i] = k.String()
	}
	if err := s.store.SetMutedChats(ctx, s.selfID, ids); err != nil {
		pkglogger.Warn("session %s: persist muted chats failed: %v", s.selfID, err)
	}
	s.emit(ctx, Event{Type: EventMuted, Payload: MutedPayload{Conversations: muted}})
}

// send shows the message as sending right away and persists it in the background.
// A failed send stays in place as sending and is reported with an error event.
func (s *Session) send(ctx context.Context, cmd Command) {
	if strings.TrimSpace(cmd.Text) == "" {
		s.emitError(ctx, "message is empty", cmd.ID)
		return
	}

	to := cmd.ToUserID
	if to == "" && cmd.Conversation != "" {
		to = domain.ParseConversationKey(cmd.Conversation).PeerID()
	}
	id := cmd.ID
	if id == "" {
		id = uuid.NewString()
	}

	msg := domain.Message{
		ID:         id,
		AuthorID:   s.selfID,
		CreatedAt:  s.now().UnixMilli(),
		Visibility: domain.VisibilityGlobal,
		Status:     domain.StatusSending,
	}
	if to != "" {
		msg.Visibility = domain.VisibilityPrivate
		msg.RecipientID = to
		msg.SetParticipants(s.selfID, to)
	}
	msg.SetContent(domain.ClassifyText(cmd.Text))
	s.pending = append(s.pending, msg)

	if active := s.router.Active(); msg.ConversationFor(s.selfID) == active {
		s.emitMessages(ctx, active, s.live, false)
	}

	req := &domain.SendMessageRequest{ID: id, ToUserID: to, Text: cmd.Text, CreatedAt: msg.CreatedAt}
	go func() {
		_, err := s.sender.Send(ctx, s.selfID, req)
		select {
		case s.results <- sendResult{id: id, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) onSendResult(ctx context.Context, res sendResult) {
	if res.err == nil {
		return
	}
	pkglogger.GetLogger().Warn().Err(res.err).Str("user_id", s.selfID).Str("message_id", res.id).Msg("send failed")
	s.emitError(ctx, res.err.Error(), res.id)
}

// settlePending drops optimistic messages the store now holds
func (s *Session) settlePending() {
	if len(s.pending) == 0 {
		return
	}
	stored := make(map[string]struct{}, len(s.live))
	for i := range s.live {
		stored[s.live[i].ID] = struct{}{}
	}
	kept := s.pending[:0]
	for _, m := range s.pending {
		if _, ok := stored[m.ID]; !ok {
			kept = append(kept, m)
		}
	}
	s.pending = kept
}

func (s *Session) emitCached(ctx context.Context, key domain.ConversationKey) {
	if cached, ok := s.router.Cached(ctx, key); ok {
		s.emitMessages(ctx, key, cached, true)
	}
}

func (s *Session) emitMessages(ctx context.Context, key domain.ConversationKey, base []domain.Message, stale bool) {
	all := make([]domain.Message, 0, len(base)+len(s.pending))
	all = append(all, base...)
	known := make(map[string]struct{}, len(base))
	for i := range base {
		known[base[i].ID] = struct{}{}
	}
	for _, m := range s.pending {
		if _, ok := known[m.ID]; !ok {
			all = append(all, m)
		}
	}
	s.emit(ctx, Event{Type: EventMessages, Payload: MessagesPayload{
		Conversation: key,
		Messages:     domain.ToResponses(domain.FilterConversation(s.selfID, all, key)),
		Stale:        stale,
	}})
}

func (s *Session) emitAlerts(ctx context.Context, alerts []Alert) {
	if len(alerts) == 0 {
		return
	}
	for _, a := range alerts {
		alertsTotal.WithLabelValues("unread").Inc()
		if a.Chime {
			alertsTotal.WithLabelValues("chime").Inc()
			s.emit(ctx, Event{Type: EventChime, Payload: ConversationPayload{Conversation: a.Conversation}})
		}
	}
	s.emitUnread(ctx)
}

func (s *Session) emitUnread(ctx context.Context) {
	s.emit(ctx, Event{Type: EventUnread, Payload: UnreadPayload{Conversations: s.rec.Unread()}})
}

// emitAccess reports whether the active private conversation is open
func (s *Session) emitAccess(ctx context.Context) {
	active := s.router.Active()
	if active.IsGlobal() || !s.haveRequests {
		return
	}
	payload := AccessPayload{Conversation: active}
	if req := domain.LatestForPair(s.requests, s.selfID, active.PeerID()); req != nil {
		payload.CanCommunicate = req.Status == domain.RequestAccepted
		payload.RevokedByMe = req.RevokedBy == s.selfID
	}
	s.emit(ctx, Event{Type: EventAccess, Payload: payload})
}

func (s *Session) emitError(ctx context.Context, msg, id string) {
	s.emit(ctx, Event{Type: EventError, Payload: ErrorPayload{Message: msg, ID: id}})
}

func (s *Session) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}
