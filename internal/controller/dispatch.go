package controller

import (
	"context"
	"unicode/utf8"

	"github.com/zajavka/zajavka-bot/internal/model"
	"github.com/zajavka/zajavka-bot/internal/repository"
	"github.com/zajavka/zajavka-bot/internal/whatsapp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditedDispatch wraps the WhatsApp client so that every outbound attempt
// lands in the message log, success or failure. Audit write errors are logged
// and swallowed: losing an audit row must not fail a send that already
// happened, and must not block one that is about to.
type AuditedDispatch struct {
	client *whatsapp.Client
	log    *repository.MessageLogRepository
	logger *zap.Logger
}

func NewAuditedDispatch(client *whatsapp.Client, log *repository.MessageLogRepository, logger *zap.Logger) *AuditedDispatch {
	return &AuditedDispatch{client: client, log: log, logger: logger}
}

func (d *AuditedDispatch) audit(ctx context.Context, messageID, to, kind, summary string, sendErr error) {
	entry := &model.MessageLog{
		ProviderEventID: messageID,
		Peer:            to,
		Kind:            kind,
		Summary:         summary,
		Status:          model.MessageStatusSent,
	}
	if sendErr != nil {
		// No provider id exists for a failed send; key the row locally.
		entry.ProviderEventID = "local-" + uuid.NewString()
		entry.Status = model.MessageStatusFailed
		entry.Error = sendErr.Error()
	}

	if err := d.log.InsertOutbound(ctx, entry); err != nil {
		d.logger.Error("Outbound audit write failed", zap.Error(err), zap.String("to", to))
	}
}

// truncate caps s at n bytes without splitting a multi-byte rune; summaries
// land in a TEXT column that rejects invalid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (d *AuditedDispatch) SendText(ctx context.Context, to, body string) (string, error) {
	id, err := d.client.SendText(ctx, to, body)
	d.audit(ctx, id, to, "text", truncate(body, 120), err)
	return id, err
}

func (d *AuditedDispatch) SendList(ctx context.Context, to, header, body string, sections []whatsapp.Section) (string, error) {
	id, err := d.client.SendList(ctx, to, header, body, sections)
	d.audit(ctx, id, to, "list", truncate(header+": "+body, 120), err)
	return id, err
}

func (d *AuditedDispatch) SendButtons(ctx context.Context, to, body string, buttons []whatsapp.Button) (string, error) {
	id, err := d.client.SendButtons(ctx, to, body, buttons)
	d.audit(ctx, id, to, "button", truncate(body, 120), err)
	return id, err
}

func (d *AuditedDispatch) SendTemplate(ctx context.Context, to, name, lang string, params []string) (string, error) {
	id, err := d.client.SendTemplate(ctx, to, name, lang, params)
	d.audit(ctx, id, to, "template", name, err)
	return id, err
}
