package bot

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	kit "calbot/internal/transport"
	logx "calbot/pkg/logx"
)

type sentText struct {
	to   kit.ChatTarget
	text string
}

// routerAdapter records outgoing traffic and signals it on channels so
// tests can wait for the dispatch goroutine without sleeping.
type routerAdapter struct {
	mu    sync.Mutex
	sent  []sentText
	acks  []string
	menus [][]kit.BotCommand

	sentCh chan sentText
	ackCh  chan string
}

func newRouterAdapter() *routerAdapter {
	return &routerAdapter{
		sentCh: make(chan sentText, 8),
		ackCh:  make(chan string, 8),
	}
}

func (a *routerAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *routerAdapter) Stop(ctx context.Context) error                         { return nil }

func (a *routerAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	a.sent = append(a.sent, sentText{to: to, text: text})
	a.mu.Unlock()
	a.sentCh <- sentText{to: to, text: text}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (a *routerAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	return nil
}

func (a *routerAdapter) EditMarkup(ctx context.Context, ref kit.MessageRef, markup any) error {
	return nil
}

func (a *routerAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	a.mu.Lock()
	a.acks = append(a.acks, text)
	a.mu.Unlock()
	a.ackCh <- text
	return nil
}

func (a *routerAdapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.mu.Lock()
	a.menus = append(a.menus, cmds)
	a.mu.Unlock()
	return nil
}

func (a *routerAdapter) sentCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sent)
}

func startDispatch(t *testing.T, r *Router) (chan kit.Update, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.DispatchLoop(ctx, updates)
	}()
	stop := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("dispatch loop did not stop")
		}
	}
	return updates, stop
}

func msgUpdate(text string, fromID int64, group bool) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID:      1,
		ChatID:  7,
		FromID:  fromID,
		Text:    text,
		IsGroup: group,
	}}
}

func cbUpdate(data string, fromID int64) kit.Update {
	return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID:        "cb1",
		FromID:    fromID,
		ChatID:    7,
		MessageID: 3,
		Data:      data,
	}}
}

func waitReq(t *testing.T, ch <-chan *Request) *Request {
	t.Helper()
	select {
	case req := <-ch:
		return req
	case <-time.After(2 * time.Second):
		t.Fatalf("handler was not invoked")
		return nil
	}
}

func TestRegisterNormalizes(t *testing.T) {
	t.Parallel()

	h := func(ctx context.Context, req *Request) error { return nil }
	r := NewRouter(logx.Nop(), newRouterAdapter(), nil)
	r.Register(
		Command{Name: " Today ", Handle: h},
		Command{Name: "today", Handle: h}, // duplicate after normalization
		Command{Name: "", Handle: h},      // no name
		Command{Name: "broken"},           // no handler
		Command{Name: "WEEK", Handle: h},
	)

	if _, ok := r.cmds["today"]; !ok {
		t.Fatalf("today not registered")
	}
	if _, ok := r.cmds["week"]; !ok {
		t.Fatalf("week not registered")
	}
	if len(r.cmds) != 2 {
		t.Fatalf("len(cmds) = %d, want 2", len(r.cmds))
	}
	if want := []string{"today", "week"}; !reflect.DeepEqual(r.order, want) {
		t.Fatalf("order = %v, want %v", r.order, want)
	}
}

func TestAllowed(t *testing.T) {
	t.Parallel()

	r := NewRouter(logx.Nop(), newRouterAdapter(), nil)
	if !r.allowed(99) {
		t.Fatalf("empty owner list must allow everyone")
	}

	r.SetOwners([]int64{1, 2})
	if r.allowed(99) {
		t.Fatalf("non-owner allowed")
	}
	if !r.allowed(2) {
		t.Fatalf("owner rejected")
	}

	r.SetOwners(nil)
	if !r.allowed(99) {
		t.Fatalf("clearing owners must allow everyone again")
	}
}

func TestPublishMenu(t *testing.T) {
	t.Parallel()

	h := func(ctx context.Context, req *Request) error { return nil }
	ad := newRouterAdapter()
	r := NewRouter(logx.Nop(), ad, nil)
	r.Register(
		Command{Name: "start", Description: "What this bot does", Menu: true, Handle: h},
		Command{Name: "today", Menu: true, Handle: h},
		Command{Name: "reload", Description: "hidden", Handle: h},
	)

	r.PublishMenu(context.Background())

	if len(ad.menus) != 1 {
		t.Fatalf("menu updates = %d, want 1", len(ad.menus))
	}
	want := []kit.BotCommand{
		{Command: "start", Description: "What this bot does"},
		{Command: "today", Description: "today"},
	}
	if !reflect.DeepEqual(ad.menus[0], want) {
		t.Fatalf("menu = %+v, want %+v", ad.menus[0], want)
	}
}

func TestDispatchRoutesCommand(t *testing.T) {
	t.Parallel()

	ad := newRouterAdapter()
	r := NewRouter(logx.Nop(), ad, nil)
	handled := make(chan *Request, 1)
	r.Register(Command{Name: "ping", Handle: func(ctx context.Context, req *Request) error {
		handled <- req
		return nil
	}})

	updates, stop := startDispatch(t, r)
	defer stop()

	updates <- msgUpdate("/Ping@MyBot arg1 arg2", 5, false)

	req := waitReq(t, handled)
	if req.Command != "ping" {
		t.Fatalf("Command = %q, want %q", req.Command, "ping")
	}
	if want := []string{"arg1", "arg2"}; !reflect.DeepEqual(req.Args, want) {
		t.Fatalf("Args = %v, want %v", req.Args, want)
	}
	if req.Chat.ChatID != 7 {
		t.Fatalf("ChatID = %d, want 7", req.Chat.ChatID)
	}
	if req.FromID != 5 {
		t.Fatalf("FromID = %d, want 5", req.FromID)
	}
	if req.ReqID == "" {
		t.Fatalf("ReqID is empty")
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	t.Parallel()

	ad := newRouterAdapter()
	r := NewRouter(logx.Nop(), ad, nil)

	updates, stop := startDispatch(t, r)

	// Updates are routed in order by the same goroutine, so once the
	// private reply arrives the group update is known to have been
	// processed silently.
	updates <- msgUpdate("/wat", 5, true)
	updates <- msgUpdate("/wat", 5, false)

	select {
	case got := <-ad.sentCh:
		if got.text != "Unknown command. Try /start." {
			t.Fatalf("reply = %q", got.text)
		}
		if got.to.ChatID != 7 {
			t.Fatalf("reply chat = %d, want 7", got.to.ChatID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no reply to unknown command")
	}

	stop()
	if n := ad.sentCount(); n != 1 {
		t.Fatalf("sends = %d, want 1 (group chat must stay silent)", n)
	}
}

func TestDispatchIgnoresPlainText(t *testing.T) {
	t.Parallel()

	ad := newRouterAdapter()
	r := NewRouter(logx.Nop(), ad, nil)
	handled := make(chan *Request, 1)
	r.Register(Command{Name: "ping", Handle: func(ctx context.Context, req *Request) error {
		handled <- req
		return nil
	}})

	updates, stop := startDispatch(t, r)

	updates <- msgUpdate("hello there", 5, false)
	updates <- msgUpdate("/ping", 5, false)

	req := waitReq(t, handled)
	if req.Command != "ping" {
		t.Fatalf("Command = %q, want %q", req.Command, "ping")
	}

	stop()
	if n := ad.sentCount(); n != 0 {
		t.Fatalf("sends = %d, want 0", n)
	}
}

func TestDispatchOwnerGate(t *testing.T) {
	t.Parallel()

	ad := newRouterAdapter()
	r := NewRouter(logx.Nop(), ad, []int64{1})
	handled := make(chan *Request, 2)
	r.Register(Command{Name: "ping", Handle: func(ctx context.Context, req *Request) error {
		handled <- req
		return nil
	}})

	updates, stop := startDispatch(t, r)

	updates <- msgUpdate("/ping", 99, false)
	updates <- msgUpdate("/ping", 1, false)

	req := waitReq(t, handled)
	if req.FromID != 1 {
		t.Fatalf("FromID = %d, want 1", req.FromID)
	}

	stop()
	if len(handled) != 0 {
		t.Fatalf("non-owner command was handled")
	}
	if n := ad.sentCount(); n != 0 {
		t.Fatalf("sends = %d, want 0 (drop must be silent)", n)
	}
}

type cbRecorder struct {
	ch chan *kit.Callback
}

func (c *cbRecorder) HandleCallback(ctx context.Context, cb *kit.Callback) error {
	c.ch <- cb
	return nil
}

func TestDispatchCallback(t *testing.T) {
	t.Parallel()

	ad := newRouterAdapter()
	r := NewRouter(logx.Nop(), ad, []int64{1})
	rec := &cbRecorder{ch: make(chan *kit.Callback, 1)}
	r.SetCallbacks(rec)

	updates, stop := startDispatch(t, r)
	defer stop()

	// Button taps bypass the owner gate: controls live in the notify
	// chat, and whoever sees them may use them.
	updates <- cbUpdate("confirm:abc123", 99)

	select {
	case cb := <-rec.ch:
		if cb.Data != "confirm:abc123" {
			t.Fatalf("Data = %q", cb.Data)
		}
		if cb.FromID != 99 {
			t.Fatalf("FromID = %d, want 99", cb.FromID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("callback handler was not invoked")
	}
}

func TestDispatchCallbackWithoutHandler(t *testing.T) {
	t.Parallel()

	ad := newRouterAdapter()
	r := NewRouter(logx.Nop(), ad, nil)

	updates, stop := startDispatch(t, r)
	defer stop()

	updates <- cbUpdate("confirm:abc123", 5)

	select {
	case text := <-ad.ackCh:
		if text != "" {
			t.Fatalf("ack = %q, want empty", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("orphan callback was not answered")
	}
}

func TestNewReqIDUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		id := newReqID()
		if id == "" {
			t.Fatalf("empty request id")
		}
		if seen[id] {
			t.Fatalf("duplicate request id %q", id)
		}
		seen[id] = true
	}
}
