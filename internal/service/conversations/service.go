package conversations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradeloop/convocore/internal/directory"
	"github.com/tradeloop/convocore/internal/hub"
	"github.com/tradeloop/convocore/internal/store"
)

// Common errors for conversation operations.
var (
	// ErrNoSupportAvailable is returned when no admin identity exists to
	// resolve a contact-support request against.
	ErrNoSupportAvailable = errors.New("no support identity available")
	// ErrStorageUnavailable is returned after the single internal retry of a
	// durable operation has also failed.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNotAViewer is returned when an identity that is neither a
	// participant nor an admin asks to observe a conversation.
	ErrNotAViewer = errors.New("not a viewer of this conversation")
)

// Summary is a conversation as rendered in a dashboard list: the record
// itself, the other participant's profile, and the viewer's unread count.
// Peer is nil when the directory no longer knows the identity.
type Summary struct {
	Conversation *store.Conversation
	Peer         *directory.Identity
	Unread       int64
}

// Service orchestrates the store, the delivery hub, and the participant
// directory. One instance serves all connections.
type Service struct {
	store store.Store
	hub   *hub.Hub
	dir   directory.Directory
	log   *zerolog.Logger

	storageTimeout time.Duration
	retryBackoff   time.Duration

	// sendLocks serializes append+publish per conversation so live delivery
	// order always matches durable append order.
	sendLocks sync.Map // conversation id -> *sync.Mutex
}

// New creates a conversation service.
func New(st store.Store, h *hub.Hub, dir directory.Directory, logger *zerolog.Logger, storageTimeout, retryBackoff time.Duration) *Service {
	if storageTimeout <= 0 {
		storageTimeout = 3 * time.Second
	}
	if retryBackoff <= 0 {
		retryBackoff = 150 * time.Millisecond
	}
	return &Service{
		store:          st,
		hub:            h,
		dir:            dir,
		log:            logger,
		storageTimeout: storageTimeout,
		retryBackoff:   retryBackoff,
	}
}

// OpenWith returns the conversation between selfID and targetID, creating it
// on first contact. The target must be a known identity. Safe when both sides
// open at the same instant: the store collapses the race into a single
// conversation.
func (s *Service) OpenWith(ctx context.Context, selfID, targetID string) (*store.Conversation, error) {
	if targetID == "" || targetID == selfID {
		return nil, store.ErrInvalidParticipants
	}
	if _, err := s.dir.ResolveIdentity(ctx, targetID); err != nil {
		if errors.Is(err, directory.ErrIdentityNotFound) {
			return nil, fmt.Errorf("target %s: %w", targetID, store.ErrInvalidParticipants)
		}
		return nil, fmt.Errorf("resolve target identity: %w", err)
	}

	var conv *store.Conversation
	err := s.withRetry(ctx, "find or create conversation", func(ctx context.Context) error {
		var err error
		conv, err = s.store.FindOrCreateConversation(ctx, selfID, targetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ContactSupport resolves the support identity and opens a conversation with
// it. With an unchanged admin roster, repeated calls land in the same
// conversation.
func (s *Service) ContactSupport(ctx context.Context, selfID string) (*store.Conversation, error) {
	admins, err := s.dir.FindByRole(ctx, directory.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("find support identities: %w", err)
	}

	// Sort locally in case the directory backend returns an unordered set;
	// the lowest id is the stable choice.
	sort.Strings(admins)

	supportID := ""
	for _, id := range admins {
		if id != selfID {
			supportID = id
			break
		}
	}
	if supportID == "" {
		return nil, ErrNoSupportAvailable
	}

	return s.OpenWith(ctx, selfID, supportID)
}

// Send appends a message and fans it out to live viewers. The hub is only
// published to after a durable append, so nothing undelivered to storage is
// ever delivered live.
func (s *Service) Send(ctx context.Context, selfID, conversationID, content string) (*store.Message, error) {
	mu := s.sendLock(conversationID)
	mu.Lock()
	defer mu.Unlock()

	var msg *store.Message
	err := s.withRetry(ctx, "append message", func(ctx context.Context) error {
		var err error
		msg, err = s.store.AppendMessage(ctx, conversationID, selfID, content)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.hub.Publish(conversationID, msg)
	return msg, nil
}

// Subscribe attaches a live view to a conversation. Participants and admins
// may subscribe; anyone else is rejected. The caller owns the returned
// subscription and must close it when the view goes away.
func (s *Service) Subscribe(ctx context.Context, selfID, conversationID string) (*hub.Subscription, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if !conv.HasParticipant(selfID) {
		ident, err := s.dir.ResolveIdentity(ctx, selfID)
		if err != nil || ident.Role != directory.RoleAdmin {
			return nil, ErrNotAViewer
		}
	}

	return s.hub.Subscribe(conversationID, selfID), nil
}

// ListConversations returns the viewer's conversations, most recently active
// first, each with the peer profile and unread count dashboards render.
func (s *Service) ListConversations(ctx context.Context, selfID string) ([]*Summary, error) {
	convs, err := s.store.ListConversations(ctx, selfID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	summaries := make([]*Summary, 0, len(convs))
	for _, conv := range convs {
		summary := &Summary{Conversation: conv}

		peer, err := s.dir.ResolveIdentity(ctx, conv.Peer(selfID))
		if err == nil {
			summary.Peer = peer
		} else if !errors.Is(err, directory.ErrIdentityNotFound) {
			s.log.Warn().Err(err).Str("peer_id", conv.Peer(selfID)).Msg("failed to resolve peer identity")
		}

		unread, err := s.store.CountUnread(ctx, conv.ID, selfID)
		if err != nil {
			s.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to count unread messages")
		} else {
			summary.Unread = unread
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// ListMessages returns the full history of a conversation in send order.
// This is also the catch-up path after a live-channel reconnect.
func (s *Service) ListMessages(ctx context.Context, selfID, conversationID string) ([]*store.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(selfID) {
		ident, err := s.dir.ResolveIdentity(ctx, selfID)
		if err != nil || ident.Role != directory.RoleAdmin {
			return nil, ErrNotAViewer
		}
	}

	return s.store.ListMessages(ctx, conversationID, true)
}

// MarkRead flags the peer's messages as read. Best-effort: a storage failure
// is logged, not surfaced, since the next history read repairs the state.
func (s *Service) MarkRead(ctx context.Context, selfID, conversationID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(selfID) {
		return store.ErrNotAParticipant
	}

	if err := s.store.MarkRead(ctx, conversationID, selfID); err != nil {
		s.log.Warn().Err(err).Str("conversation_id", conversationID).Str("viewer_id", selfID).Msg("mark read failed")
	}
	return nil
}

func (s *Service) sendLock(conversationID string) *sync.Mutex {
	mu, _ := s.sendLocks.LoadOrStore(conversationID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// withRetry runs op with the storage timeout, retrying exactly once after a
// backoff when the failure is not a validation error. Validation errors are
// terminal and returned as-is.
func (s *Service) withRetry(ctx context.Context, what string, op func(ctx context.Context) error) error {
	run := func() error {
		opCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
		defer cancel()
		return op(opCtx)
	}

	err := run()
	if err == nil || isValidationError(err) {
		return err
	}

	s.log.Warn().Err(err).Str("op", what).Msg("storage operation failed, retrying once")

	select {
	case <-time.After(s.retryBackoff):
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", what, ErrStorageUnavailable)
	}

	if err := run(); err != nil {
		if isValidationError(err) {
			return err
		}
		s.log.Error().Err(err).Str("op", what).Msg("storage operation failed after retry")
		return fmt.Errorf("%s: %w", what, ErrStorageUnavailable)
	}
	return nil
}

func isValidationError(err error) bool {
	return errors.Is(err, store.ErrInvalidParticipants) ||
		errors.Is(err, store.ErrEmptyContent) ||
		errors.Is(err, store.ErrNotAParticipant) ||
		errors.Is(err, store.ErrConversationNotFound)
}
