package bot

import (
	"context"
	"runtime/debug"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "steamwatch/internal/runtime/supervisor"
	kit "steamwatch/internal/transport"
	logx "steamwatch/pkg/logx"
	"steamwatch/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

// Command is a slash command. Args is the rest of the line after the name.
type Command struct {
	Name        string
	Description string // shown in the Telegram menu; empty hides it
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

// CallbackRoute handles inline buttons "ns:action[:payload]". By default the
// message carrying the button is deleted before the handler runs, so every
// screen replaces the previous one.
type CallbackRoute struct {
	Action      string
	Access      Access
	Timeout     time.Duration
	KeepMessage bool
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string // command name or "cb:<action>"
	Args    string
	Payload string
	ReqID   string
	Logger  logx.Logger
}

const (
	textUnknownCommand = "Неизвестная команда. Используйте /help"
	textForbidden      = "Недостаточно прав"
	textBusy           = "Бот перегружен, попробуйте позже"
)

// Telegram drops inline answers that arrive later than this.
const inlineTimeout = 10 * time.Second

// Router parses updates and runs handlers on a bounded worker pool.
type Router struct {
	ns      string
	adapter kit.Adapter
	log     logx.Logger
	workers int

	mu        sync.RWMutex
	commands  map[string]Command
	callbacks map[string]CallbackRoute
	inline    HandlerFunc
	owners    []int64

	runMu sync.Mutex
	sup   *rtsup.Supervisor

	jobs chan func()
}

func NewRouter(ns string, adapter kit.Adapter, log logx.Logger, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		ns:        ns,
		adapter:   adapter,
		log:       log.With(logx.String("comp", "bot.router")),
		workers:   4,
		commands:  map[string]Command{},
		callbacks: map[string]CallbackRoute{},
		owners:    slices.Clone(owners),
		jobs:      make(chan func(), 256),
	}
}

func (r *Router) Handle(c Command) {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Name), "/"))
	if name == "" || c.Handle == nil {
		return
	}
	c.Name = name
	r.mu.Lock()
	r.commands[name] = c
	r.mu.Unlock()
}

func (r *Router) HandleCallback(cb CallbackRoute) {
	if cb.Action == "" || cb.Handle == nil {
		return
	}
	r.mu.Lock()
	r.callbacks[cb.Action] = cb
	r.mu.Unlock()
}

// HandleInline installs the inline query handler. The query text is
// Request.Args; replies go through transport.InlineAnswerer.
func (r *Router) HandleInline(h HandlerFunc) {
	r.mu.Lock()
	r.inline = h
	r.mu.Unlock()
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
// Safe to call during hot-reload.
func (r *Router) SetOwners(owners []int64) {
	r.mu.Lock()
	r.owners = slices.Clone(owners)
	r.mu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.owners, id)
}

// MenuCommands lists public commands with a description, sorted by name.
func (r *Router) MenuCommands() []kit.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]kit.BotCommand, 0, len(r.commands))
	for _, c := range r.commands {
		if c.Description == "" || c.Access == AccessOwnerOnly {
			continue
		}
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// PublishMenu pushes MenuCommands to the adapter when it supports it.
func (r *Router) PublishMenu(ctx context.Context) {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := up.UpdateMenuCommands(cctx, r.MenuCommands()); err != nil {
		r.log.Warn("menu update failed", logx.Err(err))
	}
}

// Supervisor returns the worker pool supervisor (nil when not running).
func (r *Router) Supervisor() *rtsup.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.sup
}

// tryEnqueue tolerates a closed jobs channel during shutdown.
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if recover() != nil {
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

// Run dispatches updates until ctx is done or updates is closed.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	r.runMu.Lock()
	r.sup = sup
	r.runMu.Unlock()
	r.log.Info("dispatcher started", logx.Int("workers", r.workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					r.runJob(idx, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		close(r.jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.runMu.Lock()
		r.sup = nil
		r.runMu.Unlock()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) runJob(worker int, job func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in job", logx.Int("worker", worker), logx.Any("panic", p), logx.Stack(string(debug.Stack())))
		}
	}()
	job()
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(ctx, up)
	case kit.UpdateCallback:
		r.routeCallback(ctx, up)
	case kit.UpdateInline:
		r.routeInline(ctx, up)
	}
}

// parseCommand splits "/name@bot rest of line" into name and args.
func parseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	word, rest, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", "", false
	}
	return strings.ToLower(word), strings.TrimSpace(rest), true
}

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, from int64, command string) *Request {
	rid := uuid.NewString()[:8]
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: command,
		ReqID:   rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", command),
		),
	}
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	r.mu.RLock()
	cmd, found := r.commands[name]
	r.mu.RUnlock()
	if !found {
		// in groups the command may be meant for another bot
		if !msg.IsGroup {
			_, _ = r.adapter.SendText(ctx, chat, textUnknownCommand, nil)
		}
		return
	}
	if cmd.Access == AccessOwnerOnly && !r.isOwner(msg.FromID) {
		_, _ = r.adapter.SendText(ctx, chat, textForbidden, nil)
		return
	}

	req := r.newRequest(up, chat, msg.FromID, name)
	req.Args = args
	final := Chain(cmd.Handle, MWPanicRecover(), MWRequestLog(), MWTimeout(cmd.Timeout))
	if !r.tryEnqueue(func() { _ = final(ctx, req) }) {
		_, _ = r.adapter.SendText(ctx, chat, textBusy, nil)
	}
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	ns, action, payload, ok := tgui.ParseData(strings.TrimSpace(cb.Data))
	if !ok || ns != r.ns {
		return
	}
	r.mu.RLock()
	route, found := r.callbacks[action]
	r.mu.RUnlock()
	if !found {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	if route.Access == AccessOwnerOnly && !r.isOwner(cb.FromID) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, textForbidden)
		return
	}

	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	req := r.newRequest(up, chat, cb.FromID, "cb:"+action)
	req.Payload = payload
	final := Chain(route.Handle, MWPanicRecover(), MWRequestLog(), MWTimeout(route.Timeout))

	if !r.tryEnqueue(func() {
		if !route.KeepMessage {
			ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
			if err := r.adapter.DeleteMessage(ctx, ref); err != nil {
				req.Logger.Debug("delete message failed", logx.Err(err))
			}
		}
		_ = final(ctx, req)
		// stops the client's loading spinner
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
	}) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, textBusy)
	}
}

func (r *Router) routeInline(ctx context.Context, up kit.Update) {
	q := up.Inline
	if q == nil {
		return
	}
	r.mu.RLock()
	h := r.inline
	r.mu.RUnlock()
	if h == nil {
		return
	}
	req := r.newRequest(up, kit.ChatTarget{ChatID: q.FromID}, q.FromID, "inline")
	req.Args = strings.TrimSpace(q.Text)
	req.Payload = q.Offset
	final := Chain(h, MWPanicRecover(), MWRequestLog(), MWTimeout(inlineTimeout))
	// a dropped query just shows no results; Telegram retries as the user types
	if !r.tryEnqueue(func() { _ = final(ctx, req) }) {
		req.Logger.Debug("inline query dropped; queue full")
	}
}
