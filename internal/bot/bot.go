// Package bot is the chat UI: menus, browsing screens, search and the
// subscribe/unsubscribe flows. A subscriber is identified by chat ID, so
// drop notifications go back to the chat that subscribed.
package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"steamwatch/internal/catalog"
	"steamwatch/internal/notifier"
	"steamwatch/internal/tracker"
	kit "steamwatch/internal/transport"
	"steamwatch/internal/watch"
	logx "steamwatch/pkg/logx"
	"steamwatch/pkg/tgui"
)

// Checker controls the price sweep schedule.
type Checker interface {
	RunNow() error
	Next() time.Time
}

// Deps are the collaborators of the bot. Checker and LastReport may be nil.
type Deps struct {
	Store      *watch.Store
	Catalog    catalog.Client
	Checker    Checker
	LastReport func() (tracker.Report, bool)
	Log        logx.Logger
}

type Options struct {
	Owners  []int64
	Timeout time.Duration // per request; 0 means 30s
}

type Bot struct {
	ad   kit.Adapter
	deps Deps
	r    *Router
	log  logx.Logger
}

const timeLayout = "02.01.2006 15:04"

func New(ad kit.Adapter, deps Deps, opts Options) *Bot {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	b := &Bot{ad: ad, deps: deps, log: log}
	b.r = NewRouter(notifier.CallbackNS, ad, log, opts.Owners)

	for _, c := range []Command{
		{Name: "start", Description: "Главное меню", Handle: b.cmdStart},
		{Name: "help", Description: "Помощь", Handle: b.cmdHelp},
		{Name: "mysubscriptions", Description: "Мои подписки", Handle: b.cmdSubscriptions},
		{Name: "trackgame", Description: "Поиск игры", Handle: b.cmdTrack},
		{Name: "trackgame_select", Handle: b.cmdTrackSelect},
		{Name: "stats", Description: "Статистика", Handle: b.cmdStats},
		{Name: "checknow", Access: AccessOwnerOnly, Handle: b.cmdCheckNow},
	} {
		c.Timeout = timeout
		b.r.Handle(c)
	}

	for _, cb := range []CallbackRoute{
		{Action: actMenu, Handle: b.cbMenu},
		{Action: actSubs, Handle: b.cbSubscriptions},
		{Action: actDeals, Handle: b.cbDeals},
		{Action: actFree, Handle: b.cbFree},
		{Action: actRecs, Handle: b.cbRecs},
		{Action: actStats, Handle: b.cmdStats},
		{Action: actHelp, Handle: b.cmdHelp},
		{Action: actInfo, Handle: b.cbInfo},
		{Action: actSub, Handle: b.cbSubscribe},
		{Action: actSelect, Handle: b.cbSubscribe},
		{Action: actUnsub, Handle: b.cbUnsubscribe},
	} {
		cb.Timeout = timeout
		b.r.HandleCallback(cb)
	}
	b.r.HandleInline(b.inlineSearch)
	return b
}

func (b *Bot) Router() *Router { return b.r }

// Run publishes the command menu and dispatches updates until ctx is done.
func (b *Bot) Run(ctx context.Context, updates <-chan kit.Update) error {
	b.r.PublishMenu(ctx)
	return b.r.Run(ctx, updates)
}

func (b *Bot) reply(ctx context.Context, req *Request, m tgui.Message) error {
	_, err := m.Send(ctx, b.ad, req.Chat)
	if err != nil {
		req.Logger.Warn("reply failed", logx.Err(err))
	}
	return err
}

func (b *Bot) cmdStart(ctx context.Context, req *Request) error {
	return b.reply(ctx, req, welcomeView())
}

func (b *Bot) cmdHelp(ctx context.Context, req *Request) error {
	return b.reply(ctx, req, helpView())
}

func (b *Bot) cbMenu(ctx context.Context, req *Request) error {
	return b.reply(ctx, req, menuView())
}

func (b *Bot) cmdSubscriptions(ctx context.Context, req *Request) error {
	return b.showSubscriptions(ctx, req, 0)
}

func (b *Bot) cbSubscriptions(ctx context.Context, req *Request) error {
	page, _ := strconv.Atoi(req.Payload)
	return b.showSubscriptions(ctx, req, page)
}

func (b *Bot) showSubscriptions(ctx context.Context, req *Request, page int) error {
	recs := b.deps.Store.List(req.Chat.ChatID)
	rows := make([]subRow, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, subRow{ItemID: rec.ItemID, Name: b.deps.Store.DisplayName(rec)})
	}
	return b.reply(ctx, req, subscriptionsView(rows, page))
}

// inlineSearch answers "@bot <query>" with store search hits. Problems are
// shown as the button above the (empty) result list.
func (b *Bot) inlineSearch(ctx context.Context, req *Request) error {
	ia, ok := b.ad.(kit.InlineAnswerer)
	if !ok || req.Update.Inline == nil {
		return nil
	}
	ans := kit.InlineAnswer{Personal: true}
	query := req.Args
	if utf8.RuneCountInString(query) < inlineMinLen {
		ans.StartText = textSearchShort
	} else if results, err := b.deps.Catalog.Search(ctx, query, searchLimit); err != nil {
		req.Logger.Warn("inline search failed", logx.String("query", query), logx.Err(err))
		ans.StartText = textSearchFailed
	} else if len(results) == 0 {
		ans.StartText = textSearchEmpty
	} else {
		ans.Results = inlineResults(results)
	}
	if ans.StartText != "" {
		ans.StartParam = "start"
	}
	return ia.AnswerInline(ctx, req.Update.Inline.ID, ans)
}

func (b *Bot) cmdTrack(ctx context.Context, req *Request) error {
	query := strings.TrimSpace(req.Args)
	if query == "" {
		return b.reply(ctx, req, tgui.New().Line(textSearchPrompt).Build())
	}
	results, err := b.deps.Catalog.Search(ctx, query, searchLimit)
	if err != nil {
		req.Logger.Warn("search failed", logx.String("query", query), logx.Err(err))
		return b.reply(ctx, req, textView(textSearchFailed, actMenu))
	}
	return b.reply(ctx, req, searchView(query, results))
}

func (b *Bot) cmdTrackSelect(ctx context.Context, req *Request) error {
	id := strings.TrimSpace(req.Args)
	if id == "" {
		return b.reply(ctx, req, tgui.New().Line(textSearchPrompt).Build())
	}
	if m := req.Update.Message; m != nil {
		ref := kit.MessageRef{ChatID: m.ChatID, ThreadID: m.ThreadID, MessageID: m.ID}
		if err := b.ad.DeleteMessage(ctx, ref); err != nil {
			req.Logger.Debug("delete command message failed", logx.Err(err))
		}
	}
	return b.subscribe(ctx, req, id)
}

func (b *Bot) cbSubscribe(ctx context.Context, req *Request) error {
	return b.subscribe(ctx, req, req.Payload)
}

func (b *Bot) subscribe(ctx context.Context, req *Request, itemID string) error {
	if _, err := b.deps.Store.Subscribe(ctx, req.Chat.ChatID, itemID); err != nil {
		if errors.Is(err, watch.ErrItemNotFound) {
			return b.reply(ctx, req, textView(textItemNotFound, actSubs))
		}
		req.Logger.Warn("subscribe failed", logx.String("item", itemID), logx.Err(err))
		return b.reply(ctx, req, textView(textSubscribeFailed, actSubs))
	}
	return b.showItem(ctx, req, itemID)
}

func (b *Bot) cbUnsubscribe(ctx context.Context, req *Request) error {
	if !b.deps.Store.Unsubscribe(ctx, req.Chat.ChatID, req.Payload) {
		return nil
	}
	kb := tgui.NewInline().Row(tgui.Btn(textBackSubs, cbData(actSubs, "")))
	return b.reply(ctx, req, tgui.New().Line(textUnsubscribed).Inline(kb).Build())
}

func (b *Bot) cbInfo(ctx context.Context, req *Request) error {
	return b.showItem(ctx, req, req.Payload)
}

func (b *Bot) showItem(ctx context.Context, req *Request, itemID string) error {
	it, err := b.deps.Catalog.FetchDetails(ctx, itemID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return b.reply(ctx, req, textView(textItemNotFound, actSubs))
		}
		req.Logger.Warn("item details failed", logx.String("item", itemID), logx.Err(err))
		return b.reply(ctx, req, textView(textItemError, actSubs))
	}
	_, subscribed := b.deps.Store.Get(req.Chat.ChatID, itemID)
	return b.reply(ctx, req, itemView(it, subscribed))
}

func (b *Bot) featured(ctx context.Context, req *Request) (catalog.Featured, bool) {
	f, err := b.deps.Catalog.Featured(ctx)
	if err != nil {
		req.Logger.Warn("featured failed", logx.Err(err))
		return nil, false
	}
	return f, true
}

func (b *Bot) cbDeals(ctx context.Context, req *Request) error {
	f, ok := b.featured(ctx, req)
	if !ok {
		return b.reply(ctx, req, textView(textDealsError, actMenu))
	}
	return b.reply(ctx, req, dealsView(f[catalog.SectionSpecials]))
}

func (b *Bot) cbFree(ctx context.Context, req *Request) error {
	f, ok := b.featured(ctx, req)
	if !ok {
		return b.reply(ctx, req, textView(textFreeError, actMenu))
	}
	return b.reply(ctx, req, freeView(pickFree(f)))
}

func (b *Bot) cbRecs(ctx context.Context, req *Request) error {
	f, ok := b.featured(ctx, req)
	if !ok {
		return b.reply(ctx, req, textView(textRecsError, actMenu))
	}
	return b.reply(ctx, req, recsView(pickRecs(f)))
}

func (b *Bot) cmdStats(ctx context.Context, req *Request) error {
	info := statsInfo{Stats: b.deps.Store.Stats()}
	if b.deps.LastReport != nil {
		if rep, ok := b.deps.LastReport(); ok {
			info.LastSweep = rep.StartedAt.Format(timeLayout)
		}
	}
	if b.deps.Checker != nil {
		if next := b.deps.Checker.Next(); !next.IsZero() {
			info.NextSweep = next.Format(timeLayout)
		}
	}
	return b.reply(ctx, req, statsView(info))
}

func (b *Bot) cmdCheckNow(ctx context.Context, req *Request) error {
	if b.deps.Checker == nil {
		return b.reply(ctx, req, tgui.New().Line(textCheckUnavailable).Build())
	}
	text := textCheckStarted
	if err := b.deps.Checker.RunNow(); err != nil {
		if !errors.Is(err, tracker.ErrSweepRunning) {
			req.Logger.Error("manual sweep failed", logx.Err(err))
			return b.reply(ctx, req, tgui.New().Line(textCheckUnavailable).Build())
		}
		text = textCheckRunning
	}
	b.log.Info("manual sweep requested", logx.Int64("by", req.FromID))
	return b.reply(ctx, req, tgui.New().Line(text).Build())
}
