package bot

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"calbot/internal/runtime/supervisor"
	kit "calbot/internal/transport"
	logx "calbot/pkg/logx"
)

// Command is a single slash command. The command surface is flat, so a
// command is matched by its (lowercase) name only.
type Command struct {
	Name        string
	Description string
	Timeout     time.Duration
	Menu        bool // advertise in the platform command menu
	Handle      HandlerFunc
}

// Request carries one update through the middleware chain into a handler.
type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Adapter kit.Adapter
	Log     logx.Logger
}

// CallbackHandler consumes inline-button callbacks. The reminder flow
// implements it; the router stays ignorant of callback verbs and answers.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, cb *kit.Callback) error
}

const callbackTimeout = 15 * time.Second

type Router struct {
	log     logx.Logger
	adapter kit.Adapter

	mu     sync.RWMutex
	cmds   map[string]Command
	order  []string // registration order, for menu + help
	owners []int64

	callbacks CallbackHandler

	jobs chan func()
}

func NewRouter(log logx.Logger, adapter kit.Adapter, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		log:     log,
		adapter: adapter,
		cmds:    map[string]Command{},
		owners:  append([]int64(nil), owners...),
		jobs:    make(chan func(), 64),
	}
}

// Register installs commands, replacing any previous registration.
func (r *Router) Register(cmds ...Command) {
	m := make(map[string]Command, len(cmds))
	order := make([]string, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		if _, dup := m[name]; dup {
			continue
		}
		c.Name = name
		m[name] = c
		order = append(order, name)
	}
	r.mu.Lock()
	r.cmds = m
	r.order = order
	r.mu.Unlock()
}

// SetCallbacks installs the inline-button callback consumer.
func (r *Router) SetCallbacks(h CallbackHandler) {
	r.mu.Lock()
	r.callbacks = h
	r.mu.Unlock()
}

// SetOwners updates the allow-list used for incoming commands.
// Safe to call during hot-reload. An empty list allows everyone.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) allowed(fromID int64) bool {
	r.mu.RLock()
	owners := r.owners
	r.mu.RUnlock()
	if len(owners) == 0 {
		return true
	}
	for _, o := range owners {
		if o == fromID {
			return true
		}
	}
	return false
}

// PublishMenu pushes the command list to the platform menu (Telegram
// setMyCommands). Best-effort: adapters without menu support are skipped.
func (r *Router) PublishMenu(ctx context.Context) {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	r.mu.RLock()
	menu := make([]kit.BotCommand, 0, len(r.order))
	for _, name := range r.order {
		c := r.cmds[name]
		if !c.Menu {
			continue
		}
		desc := strings.TrimSpace(c.Description)
		if desc == "" {
			desc = name
		}
		menu = append(menu, kit.BotCommand{Command: name, Description: desc})
	}
	r.mu.RUnlock()

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := up.UpdateMenuCommands(cctx, menu); err != nil {
		r.log.Warn("command menu update failed", logx.Err(err))
		return
	}
	r.log.Debug("command menu updated", logx.Int("commands", len(menu)))
}

// tryEnqueue is a panic-safe enqueue (handles the jobs channel being closed).
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes adapter updates until ctx is done or the channel
// closes. Handlers run on a small worker pool so one slow calendar listing
// cannot stall button callbacks.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	if workers > 4 {
		workers = 4
	}

	sup := supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(r.log.With(logx.String("comp", "bot.router"))),
		supervisor.WithCancelOnError(false),
	)

	var closeOnce sync.Once
	closeJobs := func() { closeOnce.Do(func() { close(r.jobs) }) }

	for i := 0; i < workers; i++ {
		name := "bot.worker." + strconv.Itoa(i)
		sup.GoRestart(name, func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					if job != nil {
						job()
					}
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithStopOnCleanExit(true),
		)
	}

	r.log.Info("update dispatcher started", logx.Int("workers", workers))
	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("update dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			switch up.Kind {
			case kit.UpdateMessage:
				r.routeMessage(ctx, up)
			case kit.UpdateCallback:
				r.routeCallback(ctx, up)
			}
		}
	}
}

func (r *Router) routeMessage(root context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	fields := strings.Fields(text)
	word := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	args := fields[1:]

	r.mu.RLock()
	cmd, ok := r.cmds[word]
	r.mu.RUnlock()

	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if !ok {
		// Group chats see every slash command; stay quiet there.
		if !msg.IsGroup {
			_, _ = r.adapter.SendText(root, chat, "Unknown command. Try /start.", nil)
		}
		return
	}
	if !r.allowed(msg.FromID) {
		r.log.Debug("command from non-owner dropped",
			logx.Int64("from_id", msg.FromID), logx.String("cmd", word))
		return
	}

	rid := newReqID()
	req := &Request{
		Update:  up,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: word,
		Args:    args,
		ReqID:   rid,
		Adapter: r.adapter,
		Log:     r.log.With(logx.String("rid", rid), logx.String("cmd", word)),
	}

	final := Chain(cmd.Handle, MWPanicRecover(r.log), MWRequestLog(), MWTimeout(cmd.Timeout))
	if !r.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = r.adapter.SendText(root, chat, "Busy, try again.", nil)
	}
}

func (r *Router) routeCallback(root context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	r.mu.RLock()
	h := r.callbacks
	r.mu.RUnlock()
	if h == nil {
		_ = r.adapter.AnswerCallback(root, cb.ID, "")
		return
	}

	verb := cb.Data
	if i := strings.IndexByte(verb, ':'); i >= 0 {
		verb = verb[:i]
	}
	rid := newReqID()
	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:  cb.FromID,
		Command: "cb:" + verb,
		ReqID:   rid,
		Adapter: r.adapter,
		Log:     r.log.With(logx.String("rid", rid), logx.String("cb", verb)),
	}

	handle := func(ctx context.Context, _ *Request) error { return h.HandleCallback(ctx, cb) }
	final := Chain(handle, MWPanicRecover(r.log), MWRequestLog(), MWTimeout(callbackTimeout))
	if !r.tryEnqueue(func() { _ = final(root, req) }) {
		_ = r.adapter.AnswerCallback(root, cb.ID, "busy")
	}
}

var ridSeq atomic.Uint64

func newReqID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return ts + "-" + strconv.FormatUint(ridSeq.Add(1), 36)
}
