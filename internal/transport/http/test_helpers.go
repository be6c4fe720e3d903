package http

import (
	stdhttp "net/http"
	"testing"
	"time"

	"github.com/tradeloop/convocore/internal/auth"
	"github.com/tradeloop/convocore/internal/config"
	"github.com/tradeloop/convocore/internal/directory"
	"github.com/tradeloop/convocore/internal/directory/dirsqlite"
	"github.com/tradeloop/convocore/internal/hub"
	"github.com/tradeloop/convocore/internal/log"
	"github.com/tradeloop/convocore/internal/service/conversations"
	"github.com/tradeloop/convocore/internal/store/sqlite"
)

// testEnv bundles everything a handler test needs.
type testEnv struct {
	server *stdhttp.Server
	dir    *dirsqlite.Adapter
	auth   *auth.Service
	svc    *conversations.Service
}

// newTestEnv builds a server over an in-memory store.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	dir := dirsqlite.New(st.DB())

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	authService := auth.NewService(dir, jwtConfig)

	h := hub.New(8, log.Nop())
	svc := conversations.New(st, h, dir, log.Nop(), time.Second, 10*time.Millisecond)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"

	server := NewServer(svc, authService, &cfg, log.Nop())

	return &testEnv{server: server, dir: dir, auth: authService, svc: svc}
}

// seedIdentityWithKey registers an identity and returns a bearer token for it.
func (e *testEnv) seedIdentityWithKey(t *testing.T, id string, role directory.Role) string {
	t.Helper()

	hash, err := auth.HashAccessKey("key-" + id)
	if err != nil {
		t.Fatalf("failed to hash access key: %v", err)
	}

	err = e.dir.PutIdentity(t.Context(), &directory.Identity{
		ID:            id,
		DisplayName:   id,
		Role:          role,
		AccessKeyHash: hash,
	})
	if err != nil {
		t.Fatalf("failed to seed identity %s: %v", id, err)
	}

	token, err := e.auth.IssueToken(t.Context(), id, "key-"+id)
	if err != nil {
		t.Fatalf("failed to issue token for %s: %v", id, err)
	}
	return token
}
