package storage

import (
	"context"
	"strconv"

	"steamwatch/internal/tracker"
	"steamwatch/internal/watch"
)

// Journal turns subscription changes and price drops into audit entries.
// A nil Store makes every call a no-op.
type Journal struct {
	st Store
}

var (
	_ watch.Auditor   = (*Journal)(nil)
	_ tracker.Journal = (*Journal)(nil)
)

func NewJournal(st Store) *Journal { return &Journal{st: st} }

func (j *Journal) append(ctx context.Context, e AuditEntry) error {
	if j == nil || j.st == nil {
		return nil
	}
	return j.st.AppendAudit(ctx, e)
}

func (j *Journal) Subscribed(ctx context.Context, sub int64, rec watch.WatchRecord) error {
	return j.append(ctx, AuditEntry{
		At:           rec.SubscribedAt,
		SubscriberID: sub,
		Action:       ActionSubscribe,
		ItemID:       rec.ItemID,
		ItemName:     rec.DisplayName,
		NewPrice:     rec.BaselinePrice,
	})
}

func (j *Journal) Unsubscribed(ctx context.Context, sub int64, itemID string) error {
	return j.append(ctx, AuditEntry{SubscriberID: sub, Action: ActionUnsubscribe, ItemID: itemID})
}

func (j *Journal) PriceDropped(ctx context.Context, sub int64, p tracker.Payload) error {
	return j.append(ctx, AuditEntry{
		SubscriberID: sub,
		Action:       ActionPriceDrop,
		ItemID:       p.ItemID,
		ItemName:     p.Name,
		OldPrice:     p.OldPrice,
		NewPrice:     p.NewPrice,
		Meta:         "discount=" + strconv.Itoa(p.DiscountPercent),
	})
}
