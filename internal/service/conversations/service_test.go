package conversations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tradeloop/convocore/internal/directory"
	"github.com/tradeloop/convocore/internal/directory/dirsqlite"
	"github.com/tradeloop/convocore/internal/hub"
	"github.com/tradeloop/convocore/internal/log"
	"github.com/tradeloop/convocore/internal/store"
	"github.com/tradeloop/convocore/internal/store/sqlite"
)

func newTestService(t *testing.T) (*Service, *dirsqlite.Adapter) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	dir := dirsqlite.New(st.DB())
	h := hub.New(8, log.Nop())
	svc := New(st, h, dir, log.Nop(), time.Second, 10*time.Millisecond)

	return svc, dir
}

func seedIdentity(t *testing.T, dir *dirsqlite.Adapter, id string, role directory.Role) {
	t.Helper()

	err := dir.PutIdentity(context.Background(), &directory.Identity{
		ID:          id,
		DisplayName: id,
		Role:        role,
	})
	if err != nil {
		t.Fatalf("failed to seed identity %s: %v", id, err)
	}
}

func TestOpenWithConcurrentBothOrders(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	seedIdentity(t, dir, "u1", directory.RoleCustomer)
	seedIdentity(t, dir, "u2", directory.RoleSeller)

	const attempts = 10

	var wg sync.WaitGroup
	ids := make(chan string, attempts*2)
	for i := 0; i < attempts; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			conv, err := svc.OpenWith(ctx, "u1", "u2")
			if err != nil {
				t.Errorf("OpenWith(u1,u2) failed: %v", err)
				return
			}
			ids <- conv.ID
		}()
		go func() {
			defer wg.Done()
			conv, err := svc.OpenWith(ctx, "u2", "u1")
			if err != nil {
				t.Errorf("OpenWith(u2,u1) failed: %v", err)
				return
			}
			ids <- conv.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{})
	for id := range ids {
		seen[id] = struct{}{}
	}
	if len(seen) != 1 {
		t.Errorf("expected exactly one conversation, got %d", len(seen))
	}
}

func TestOpenWithRejectsInvalidTargets(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	seedIdentity(t, dir, "u1", directory.RoleCustomer)

	cases := []struct {
		name   string
		target string
	}{
		{"empty", ""},
		{"self", "u1"},
		{"unknown identity", "ghost"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.OpenWith(ctx, "u1", tc.target); !errors.Is(err, store.ErrInvalidParticipants) {
				t.Errorf("expected ErrInvalidParticipants, got %v", err)
			}
		})
	}
}

func TestContactSupportDeterministic(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	seedIdentity(t, dir, "admin-zoe", directory.RoleAdmin)
	seedIdentity(t, dir, "admin-ann", directory.RoleAdmin)
	seedIdentity(t, dir, "customer-1", directory.RoleCustomer)

	first, err := svc.ContactSupport(ctx, "customer-1")
	if err != nil {
		t.Fatalf("ContactSupport failed: %v", err)
	}

	// Lowest admin id wins.
	if !first.HasParticipant("admin-ann") {
		t.Errorf("expected conversation with admin-ann, got %s/%s", first.ParticipantA, first.ParticipantB)
	}

	// Same roster, same conversation.
	second, err := svc.ContactSupport(ctx, "customer-1")
	if err != nil {
		t.Fatalf("ContactSupport (second call) failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected the same conversation, got %s and %s", first.ID, second.ID)
	}
}

func TestContactSupportNoAdmin(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	seedIdentity(t, dir, "customer-1", directory.RoleCustomer)

	if _, err := svc.ContactSupport(ctx, "customer-1"); !errors.Is(err, ErrNoSupportAvailable) {
		t.Errorf("expected ErrNoSupportAvailable, got %v", err)
	}
}

func TestContactSupportSkipsSelf(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	seedIdentity(t, dir, "admin-ann", directory.RoleAdmin)
	seedIdentity(t, dir, "admin-zoe", directory.RoleAdmin)

	// The lowest admin asking for support reaches the next one, not itself.
	conv, err := svc.ContactSupport(ctx, "admin-ann")
	if err != nil {
		t.Fatalf("ContactSupport failed: %v", err)
	}
	if !conv.HasParticipant("admin-zoe") {
		t.Errorf("expected conversation with admin-zoe, got %s/%s", conv.ParticipantA, conv.ParticipantB)
	}
}

func TestContactSupportOnlyAdminIsSelf(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	seedIdentity(t, dir, "admin-ann", directory.RoleAdmin)

	if _, err := svc.ContactSupport(ctx, "admin-ann"); !errors.Is(err, ErrNoSupportAvailable) {
		t.Errorf("expected ErrNoSupportAvailable, got %v", err)
	}
}

func TestSendDeliversLiveAndDurably(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	seedIdentity(t, dir, "u2", directory.RoleSeller)

	conv, err := svc.OpenWith(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("OpenWith failed: %v", err)
	}

	// u2 is watching before the send.
	sub, err := svc.Subscribe(ctx, "u2", conv.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	msg, err := svc.Send(ctx, "u1", conv.ID, "hi")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if msg.Content != "hi" {
		t.Errorf("expected content %q, got %q", "hi", msg.Content)
	}

	select {
	case live := <-sub.Messages():
		if live.ID != msg.ID || live.Content != "hi" {
			t.Errorf("unexpected live message: %+v", live)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive the message live")
	}

	history, err := svc.ListMessages(ctx, "u1", conv.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(history) != 1 || history[0].ID != msg.ID {
		t.Errorf("expected history [%d], got %d messages", msg.ID, len(history))
	}
}

func TestSendValidationFailuresAppendNothing(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	seedIdentity(t, dir, "u2", directory.RoleSeller)

	conv, err := svc.OpenWith(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("OpenWith failed: %v", err)
	}

	sub, err := svc.Subscribe(ctx, "u2", conv.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	if _, err := svc.Send(ctx, "u1", conv.ID, "   "); !errors.Is(err, store.ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
	if _, err := svc.Send(ctx, "u3", conv.ID, "hello"); !errors.Is(err, store.ErrNotAParticipant) {
		t.Errorf("expected ErrNotAParticipant, got %v", err)
	}

	history, err := svc.ListMessages(ctx, "u1", conv.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected empty history after failed sends, got %d", len(history))
	}

	// A failed append must never reach live subscribers.
	select {
	case msg := <-sub.Messages():
		t.Fatalf("subscriber received message from failed send: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAuthorization(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	seedIdentity(t, dir, "admin-ann", directory.RoleAdmin)
	seedIdentity(t, dir, "u2", directory.RoleSeller)
	seedIdentity(t, dir, "u3", directory.RoleCustomer)

	conv, err := svc.OpenWith(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("OpenWith failed: %v", err)
	}

	// An uninvolved customer may not observe.
	if _, err := svc.Subscribe(ctx, "u3", conv.ID); !errors.Is(err, ErrNotAViewer) {
		t.Errorf("expected ErrNotAViewer, got %v", err)
	}

	// An admin may.
	sub, err := svc.Subscribe(ctx, "admin-ann", conv.ID)
	if err != nil {
		t.Fatalf("Subscribe (admin) failed: %v", err)
	}
	sub.Close()

	if _, err := svc.Subscribe(ctx, "u1", "no-such-conv"); !errors.Is(err, store.ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestListConversationsSummaries(t *testing.T) {
	svc, dir := newTestService(t)
	ctx := context.Background()

	seedIdentity(t, dir, "u2", directory.RoleSeller)

	conv, err := svc.OpenWith(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("OpenWith failed: %v", err)
	}
	if _, err := svc.Send(ctx, "u2", conv.ID, "hello there"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	summaries, err := svc.ListConversations(ctx, "u1")
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}

	s := summaries[0]
	if s.Conversation.ID != conv.ID {
		t.Errorf("unexpected conversation: %s", s.Conversation.ID)
	}
	if s.Peer == nil || s.Peer.ID != "u2" || s.Peer.Role != directory.RoleSeller {
		t.Errorf("unexpected peer profile: %+v", s.Peer)
	}
	if s.Unread != 1 {
		t.Errorf("expected 1 unread, got %d", s.Unread)
	}

	if err := svc.MarkRead(ctx, "u1", conv.ID); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}

	summaries, err = svc.ListConversations(ctx, "u1")
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if summaries[0].Unread != 0 {
		t.Errorf("expected 0 unread after MarkRead, got %d", summaries[0].Unread)
	}
}

// flakyStore fails every operation a fixed number of times, then delegates.
type flakyStore struct {
	store.Store
	mu        sync.Mutex
	failures  int
	attempted int
}

func (f *flakyStore) AppendMessage(ctx context.Context, conversationID, senderID, content string) (*store.Message, error) {
	f.mu.Lock()
	f.attempted++
	fail := f.attempted <= f.failures
	f.mu.Unlock()

	if fail {
		return nil, errors.New("disk on fire")
	}
	return f.Store.AppendMessage(ctx, conversationID, senderID, content)
}

func (f *flakyStore) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempted
}

func TestSendRetriesOnceThenStorageUnavailable(t *testing.T) {
	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	dir := dirsqlite.New(st.DB())
	h := hub.New(8, log.Nop())

	ctx := context.Background()
	conv, err := st.FindOrCreateConversation(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("FindOrCreateConversation failed: %v", err)
	}

	// Persistent failure: both the first attempt and the retry fail.
	flaky := &flakyStore{Store: st, failures: 2}
	svc := New(flaky, h, dir, log.Nop(), time.Second, time.Millisecond)

	if _, err := svc.Send(ctx, "u1", conv.ID, "hi"); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("expected ErrStorageUnavailable, got %v", err)
	}
	if got := flaky.attempts(); got != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", got)
	}

	// Transient failure: the single retry succeeds.
	flaky = &flakyStore{Store: st, failures: 1}
	svc = New(flaky, h, dir, log.Nop(), time.Second, time.Millisecond)

	msg, err := svc.Send(ctx, "u1", conv.ID, "hi again")
	if err != nil {
		t.Fatalf("Send after transient failure failed: %v", err)
	}
	if msg.Content != "hi again" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if got := flaky.attempts(); got != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", got)
	}
}

func TestSendValidationErrorNotRetried(t *testing.T) {
	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	dir := dirsqlite.New(st.DB())
	h := hub.New(8, log.Nop())

	ctx := context.Background()
	conv, err := st.FindOrCreateConversation(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("FindOrCreateConversation failed: %v", err)
	}

	counting := &countingStore{Store: st}
	svc := New(counting, h, dir, log.Nop(), time.Second, time.Millisecond)

	if _, err := svc.Send(ctx, "u3", conv.ID, "hi"); !errors.Is(err, store.ErrNotAParticipant) {
		t.Errorf("expected ErrNotAParticipant, got %v", err)
	}
	if counting.attempts != 1 {
		t.Errorf("validation error must not be retried, got %d attempts", counting.attempts)
	}
}

type countingStore struct {
	store.Store
	attempts int
}

func (c *countingStore) AppendMessage(ctx context.Context, conversationID, senderID, content string) (*store.Message, error) {
	c.attempts++
	return c.Store.AppendMessage(ctx, conversationID, senderID, content)
}
