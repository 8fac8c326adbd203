package notify

import (
	"context"
	"errors"
	"time"

	kit "calbot/internal/transport"
	logx "calbot/pkg/logx"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

// Delivery is a thin façade over the transport adapter for the notify chat:
// one target, HTML defaults, an outbound rate limiter, and the "not
// modified" condition swallowed so redundant edits behave as no-ops.
//
// It never decides whether to send, only how.
type Delivery struct {
	ad      kit.Adapter
	chat    kit.ChatTarget
	limiter *rate.Limiter
	log     logx.Logger
}

func NewDelivery(ad kit.Adapter, chat kit.ChatTarget, log logx.Logger) *Delivery {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Delivery{
		ad:   ad,
		chat: chat,
		log:  log,
		// Telegram allows roughly one message per second per chat sustained.
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

func (d *Delivery) opts(markup *tele.ReplyMarkup) *kit.SendOptions {
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if markup != nil {
		opt.ReplyMarkupAdapter = markup
	}
	return opt
}

// Send posts a new message to the notify chat.
func (d *Delivery) Send(ctx context.Context, text string, markup *tele.ReplyMarkup) (kit.MessageRef, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	return d.ad.SendText(ctx, d.chat, text, d.opts(markup))
}

// EditText replaces the text (and markup) of an existing message.
// A "not modified" outcome is success.
func (d *Delivery) EditText(ctx context.Context, ref kit.MessageRef, text string, markup *tele.ReplyMarkup) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	err := d.ad.EditText(ctx, ref, text, d.opts(markup))
	if errors.Is(err, kit.ErrEditNotModified) {
		return nil
	}
	return err
}

// EditControls replaces the inline keyboard; nil strips it.
// A "not modified" outcome is success.
func (d *Delivery) EditControls(ctx context.Context, ref kit.MessageRef, markup *tele.ReplyMarkup) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	var m any
	if markup != nil {
		m = markup
	}
	err := d.ad.EditMarkup(ctx, ref, m)
	if errors.Is(err, kit.ErrEditNotModified) {
		return nil
	}
	return err
}

// Ack answers a callback query (stops the client-side spinner).
func (d *Delivery) Ack(ctx context.Context, callbackID, text string) error {
	return d.ad.AnswerCallback(ctx, callbackID, text)
}
