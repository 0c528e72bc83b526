package egress

import (
	"context"
	"os"
	"testing"

	"github.com/harunnryd/heike/internal/store"
)

type fakeAdapter struct {
	name    string
	sent    []string
	sendErr error
	healthy bool
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) Send(ctx context.Context, sessionID, content string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, content)
	return nil
}
func (f *fakeAdapter) Health(ctx context.Context) error {
	if f.healthy {
		return nil
	}
	return context.DeadlineExceeded
}

func setupWorker(t *testing.T) *store.Worker {
	tmpDir := t.TempDir()
	os.Setenv("HOME", tmpDir)
	worker, err := store.NewWorker("test", "", store.RuntimeConfig{})
	if err != nil {
		t.Fatalf("Failed to create store worker: %v", err)
	}
	worker.Start()
	return worker
}

func TestDefaultNotifier_RegisterUnregister(t *testing.T) {
	n := New(nil)
	slack := &fakeAdapter{name: "slack", healthy: true}

	if err := n.Register(slack); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := n.Register(slack); err == nil {
		t.Error("expected error registering duplicate adapter name")
	}
	if len(n.ListAdapters()) != 1 {
		t.Errorf("ListAdapters: got %d, want 1", len(n.ListAdapters()))
	}

	if err := n.Unregister("slack"); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}
	if err := n.Unregister("slack"); err == nil {
		t.Error("expected error unregistering missing adapter")
	}
}

func TestDefaultNotifier_SendNoStore(t *testing.T) {
	n := New(nil)
	n.Register(&fakeAdapter{name: "slack", healthy: true})

	if n.Send(context.Background(), "user1", "", "hi", "gentle") {
		t.Error("Send should fail without a store to resolve the session")
	}
}

func TestDefaultNotifier_SendResolvesSessionSource(t *testing.T) {
	worker := setupWorker(t)
	defer worker.Stop()

	session := &store.SessionMeta{
		ID:       "user1",
		Status:   "active",
		Metadata: map[string]string{"source": "slack"},
	}
	if err := worker.SaveSession(session); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	slack := &fakeAdapter{name: "slack", healthy: true}
	n := New(func() *store.Worker { return worker })
	if err := n.Register(slack); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if !n.Send(context.Background(), "user1", "", "hello there", "gentle") {
		t.Fatal("Send should have delivered through the resolved slack adapter")
	}
	if len(slack.sent) != 1 || slack.sent[0] != "hello there" {
		t.Errorf("slack adapter received %v", slack.sent)
	}
}

func TestDefaultNotifier_SendChannelOverridesSession(t *testing.T) {
	worker := setupWorker(t)
	defer worker.Stop()

	telegram := &fakeAdapter{name: "telegram", healthy: true}
	n := New(func() *store.Worker { return worker })
	n.Register(telegram)

	if !n.Send(context.Background(), "user-no-session", "telegram", "ping", "urgent") {
		t.Fatal("Send should route via the explicit channel without needing a session")
	}
}

func TestDefaultNotifier_SendUnknownAdapter(t *testing.T) {
	worker := setupWorker(t)
	defer worker.Stop()

	n := New(func() *store.Worker { return worker })
	if n.Send(context.Background(), "user1", "discord", "hi", "gentle") {
		t.Error("Send should fail when no adapter is registered for the source")
	}
}

func TestDefaultNotifier_SendDeliveryFailure(t *testing.T) {
	worker := setupWorker(t)
	defer worker.Stop()

	slack := &fakeAdapter{name: "slack", sendErr: context.DeadlineExceeded}
	n := New(func() *store.Worker { return worker })
	n.Register(slack)

	if n.Send(context.Background(), "user1", "slack", "hi", "gentle") {
		t.Error("Send should report failure when the adapter returns an error")
	}
}

func TestDefaultNotifier_Health(t *testing.T) {
	n := New(nil)
	if err := n.Health(context.Background()); err == nil {
		t.Error("Health should fail with no adapters registered")
	}

	healthy := &fakeAdapter{name: "slack", healthy: true}
	n.Register(healthy)
	if err := n.Health(context.Background()); err != nil {
		t.Errorf("Health should pass with a healthy adapter: %v", err)
	}

	unhealthy := &fakeAdapter{name: "telegram", healthy: false}
	n.Register(unhealthy)
	if err := n.Health(context.Background()); err == nil {
		t.Error("Health should fail when an adapter is unhealthy")
	}
}
