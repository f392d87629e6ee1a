package compact

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/nugget/lifeline/internal/checkpoint"
	"github.com/nugget/lifeline/internal/events"
	"github.com/nugget/lifeline/internal/hook"
	"github.com/nugget/lifeline/internal/mode"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore counts checkpoint creations. Save blocks for sessions that
// have a gate until the gate is closed.
type fakeStore struct {
	mu      sync.Mutex
	creates int
	saved   []*checkpoint.Checkpoint
	gates   map[string]chan struct{}
	entered chan string

	createErr error
	saveErr   error
	latest    *checkpoint.Checkpoint
	latestErr error
	panicMsg  string
}

func (f *fakeStore) Create(sessionID string, trigger checkpoint.Trigger, b checkpoint.Bundle) (*checkpoint.Checkpoint, error) {
	f.mu.Lock()
	f.creates++
	f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &checkpoint.Checkpoint{
		ID:            uuid.Must(uuid.NewV7()),
		SessionID:     sessionID,
		Trigger:       trigger,
		CreatedAt:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		ModeStates:    b.ModeStates,
		WorkflowState: b.WorkflowState,
		MemoryContext: b.MemoryContext,
	}, nil
}

func (f *fakeStore) Save(_ context.Context, cp *checkpoint.Checkpoint) error {
	if f.entered != nil {
		f.entered <- cp.SessionID
	}
	if gate, ok := f.gates[cp.SessionID]; ok {
		<-gate
	}
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	f.saved = append(f.saved, cp)
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) Latest(_ context.Context, _ string) (*checkpoint.Checkpoint, error) {
	return f.latest, f.latestErr
}

func (f *fakeStore) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

type fakeModes struct {
	ids []mode.ID
	err error
}

func (f fakeModes) ActiveModes(context.Context, string) ([]mode.ID, error) {
	return f.ids, f.err
}

type fakeState struct {
	workflow, memory json.RawMessage
	err              error
}

func (f fakeState) WorkflowState(context.Context, string) (json.RawMessage, error) {
	return f.workflow, f.err
}

func (f fakeState) MemoryContext(context.Context, string) (json.RawMessage, error) {
	return f.memory, f.err
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHandlePreCompact_ConcurrentSameDirectory(t *testing.T) {
	store := &fakeStore{
		gates:   map[string]chan struct{}{"s1": make(chan struct{})},
		entered: make(chan string, 1),
	}
	c := New(Config{
		Store:  store,
		Modes:  fakeModes{ids: []mode.ID{mode.Ralph}},
		Format: checkpoint.FormatRecoveryMessage,
		Logger: quietLogger(),
	})

	const n = 6
	ev := hook.PreCompactEvent{SessionID: "s1", CWD: "/work/proj/", Trigger: hook.CompactAuto}
	outs := make([]hook.RecoveryOutput, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			outs[i] = c.HandlePreCompact(context.Background(), ev)
			return nil
		})
	}

	<-store.entered
	waitFor(t, "all waiters", func() bool { return c.flights.Waiters("/work/proj") == n-1 })
	close(store.gates["s1"])
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if got := store.createCount(); got != 1 {
		t.Errorf("checkpoint created %d times, want 1", got)
	}
	first, _ := json.Marshal(outs[0])
	for i, out := range outs {
		if !out.Continue {
			t.Errorf("output %d: Continue = false", i)
		}
		b, _ := json.Marshal(out)
		if string(b) != string(first) {
			t.Errorf("output %d differs:\n%s\n%s", i, b, first)
		}
	}
	if !strings.Contains(outs[0].SystemMessage, "Trigger: compact") {
		t.Errorf("message = %q", outs[0].SystemMessage)
	}
	if c.flights.Len() != 0 {
		t.Errorf("registry still holds %d entries", c.flights.Len())
	}
}

func TestHandlePreCompact_DifferentDirectoriesIndependent(t *testing.T) {
	store := &fakeStore{
		gates:   map[string]chan struct{}{"a": make(chan struct{})},
		entered: make(chan string, 2),
	}
	c := New(Config{Store: store, Logger: quietLogger()})

	done := make(chan hook.RecoveryOutput, 1)
	go func() {
		done <- c.HandlePreCompact(context.Background(), hook.PreCompactEvent{SessionID: "a", CWD: "/work/a"})
	}()
	if sid := <-store.entered; sid != "a" {
		t.Fatalf("entered %q, want a", sid)
	}

	// /work/a is blocked inside Save; /work/b must still complete.
	out := c.HandlePreCompact(context.Background(), hook.PreCompactEvent{SessionID: "b", CWD: "/work/b"})
	<-store.entered
	if !out.Continue || !strings.Contains(out.SystemMessage, "Session: b") {
		t.Errorf("b output = %+v", out)
	}

	close(store.gates["a"])
	select {
	case out := <-done:
		if !strings.Contains(out.SystemMessage, "Session: a") {
			t.Errorf("a output = %+v", out)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("a never completed")
	}
	if got := store.createCount(); got != 2 {
		t.Errorf("creates = %d, want 2", got)
	}
}

func TestHandlePreCompact_TriggerMapping(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	store, err := checkpoint.NewStore(db)
	if err != nil {
		t.Fatal(err)
	}

	c := New(Config{Store: store, Format: checkpoint.FormatRecoveryMessage, Logger: quietLogger()})
	ctx := context.Background()

	tests := []struct {
		session string
		trigger hook.CompactTrigger
		want    checkpoint.Trigger
	}{
		{"manual", hook.CompactManual, checkpoint.TriggerManual},
		{"auto", hook.CompactAuto, checkpoint.TriggerCompact},
		{"missing", "", checkpoint.TriggerCompact},
		{"upper", "MANUAL", checkpoint.TriggerManual},
	}
	for _, tt := range tests {
		t.Run(tt.session, func(t *testing.T) {
			out := c.HandlePreCompact(ctx, hook.PreCompactEvent{SessionID: tt.session, CWD: "/p/" + tt.session, Trigger: tt.trigger})
			if !out.Continue {
				t.Fatal("Continue = false")
			}
			cp := c.CheckRecovery(ctx, tt.session)
			if cp == nil {
				t.Fatal("CheckRecovery() = nil")
			}
			if cp.Trigger != tt.want {
				t.Errorf("Trigger = %q, want %q", cp.Trigger, tt.want)
			}
		})
	}
}

func TestHandlePreCompact_BundleContents(t *testing.T) {
	store := &fakeStore{}
	bus := events.New()
	ch := bus.Subscribe(4)
	defer bus.Unsubscribe(ch)

	c := New(Config{
		Store:  store,
		Modes:  fakeModes{ids: []mode.ID{mode.Team, mode.Ultrawork}},
		State:  fakeState{workflow: json.RawMessage(`[{"id":"WFS-1"}]`), memory: json.RawMessage(`{"go":true}`)},
		Bus:    bus,
		Logger: quietLogger(),
	})
	at := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return at }

	c.HandlePreCompact(context.Background(), hook.PreCompactEvent{SessionID: "s1", CWD: "/p"})

	if len(store.saved) != 1 {
		t.Fatalf("saved %d checkpoints, want 1", len(store.saved))
	}
	cp := store.saved[0]
	for _, id := range []string{"team", "ultrawork"} {
		st, ok := cp.ModeStates[id]
		if !ok || !st.Active || !st.ActivatedAt.Equal(at) {
			t.Errorf("ModeStates[%s] = %+v", id, st)
		}
	}
	if string(cp.WorkflowState) != `[{"id":"WFS-1"}]` || string(cp.MemoryContext) != `{"go":true}` {
		t.Errorf("opaque state = %s / %s", cp.WorkflowState, cp.MemoryContext)
	}

	select {
	case ev := <-ch:
		if ev.Kind != events.KindCheckpointCreated || ev.Data["session_id"] != "s1" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}

func TestHandlePreCompact_StateProviderFailureIsSoft(t *testing.T) {
	store := &fakeStore{}
	c := New(Config{
		Store:  store,
		State:  fakeState{err: errors.New("parse .workflow: bad json")},
		Logger: quietLogger(),
	})

	out := c.HandlePreCompact(context.Background(), hook.PreCompactEvent{SessionID: "s1", CWD: "/p"})
	if strings.Contains(out.SystemMessage, "WARNING") {
		t.Errorf("state failure should not fail the checkpoint: %q", out.SystemMessage)
	}
	if len(store.saved) != 1 {
		t.Errorf("saved = %d, want 1", len(store.saved))
	}
}

func TestHandlePreCompact_Failures(t *testing.T) {
	tests := []struct {
		name  string
		store Store
		modes ModeRegistry
		want  string
	}{
		{name: "no store", want: "no checkpoint store configured"},
		{name: "create error", store: &fakeStore{createErr: errors.New("clock skew")}, want: "clock skew"},
		{name: "save error", store: &fakeStore{saveErr: errors.New("disk full")}, want: "disk full"},
		{name: "mode registry error", store: &fakeStore{}, modes: fakeModes{err: errors.New("locked")}, want: "locked"},
		{name: "panic", store: &fakeStore{panicMsg: "boom"}, want: "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := events.New()
			ch := bus.Subscribe(4)
			defer bus.Unsubscribe(ch)

			c := New(Config{Store: tt.store, Modes: tt.modes, Bus: bus, Logger: quietLogger()})
			out := c.HandlePreCompact(context.Background(), hook.PreCompactEvent{SessionID: "s1", CWD: "/p"})
			if !out.Continue {
				t.Fatal("Continue = false")
			}
			if !strings.Contains(out.SystemMessage, "CHECKPOINT WARNING") || !strings.Contains(out.SystemMessage, tt.want) {
				t.Errorf("message = %q, want warning mentioning %q", out.SystemMessage, tt.want)
			}
			if c.flights.Len() != 0 {
				t.Error("registry entry leaked")
			}
		})
	}
}

func TestHandlePreCompact_CanceledWaiter(t *testing.T) {
	store := &fakeStore{
		gates:   map[string]chan struct{}{"s1": make(chan struct{})},
		entered: make(chan string, 1),
	}
	c := New(Config{Store: store, Logger: quietLogger()})
	ev := hook.PreCompactEvent{SessionID: "s1", CWD: "/p"}

	leader := make(chan hook.RecoveryOutput, 1)
	go func() { leader <- c.HandlePreCompact(context.Background(), ev) }()
	<-store.entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := c.HandlePreCompact(ctx, ev)
	if !out.Continue || !strings.Contains(out.SystemMessage, "context canceled") {
		t.Errorf("canceled waiter output = %+v", out)
	}

	close(store.gates["s1"])
	if out := <-leader; strings.Contains(out.SystemMessage, "WARNING") {
		t.Errorf("leader output = %+v", out)
	}
	if got := store.createCount(); got != 1 {
		t.Errorf("creates = %d, want 1", got)
	}
}

func TestCheckRecovery(t *testing.T) {
	cp := &checkpoint.Checkpoint{ID: uuid.Must(uuid.NewV7()), SessionID: "s1"}
	ctx := context.Background()

	if got := New(Config{Logger: quietLogger()}).CheckRecovery(ctx, "s1"); got != nil {
		t.Errorf("no store: got %v", got)
	}
	c := New(Config{Store: &fakeStore{latest: cp}, Logger: quietLogger()})
	if got := c.CheckRecovery(ctx, ""); got != nil {
		t.Errorf("empty session: got %v", got)
	}
	if got := c.CheckRecovery(ctx, "s1"); got != cp {
		t.Errorf("CheckRecovery() = %v, want %v", got, cp)
	}
	c = New(Config{Store: &fakeStore{latestErr: errors.New("gone")}, Logger: quietLogger()})
	if got := c.CheckRecovery(ctx, "s1"); got != nil {
		t.Errorf("store error: got %v", got)
	}
}

func TestFormatRecoveryMessage_Fallback(t *testing.T) {
	cp := &checkpoint.Checkpoint{
		ID:        uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057"),
		SessionID: "s1",
		Trigger:   checkpoint.TriggerManual,
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	failing := func(*checkpoint.Checkpoint) (string, error) { return "", errors.New("template missing") }

	for name, c := range map[string]*Coordinator{
		"no formatter":      New(Config{Logger: quietLogger()}),
		"failing formatter": New(Config{Format: failing, Logger: quietLogger()}),
	} {
		t.Run(name, func(t *testing.T) {
			msg := c.FormatRecoveryMessage(cp)
			for _, want := range []string{"01890a5d-ac96-774b-bcce-b302099a8057", "2026-03-01T09:00:00Z", "Trigger: manual", "Session: s1"} {
				if !strings.Contains(msg, want) {
					t.Errorf("fallback missing %q:\n%s", want, msg)
				}
			}
		})
	}

	if got := New(Config{}).FormatRecoveryMessage(nil); got != "" {
		t.Errorf("FormatRecoveryMessage(nil) = %q", got)
	}
}
