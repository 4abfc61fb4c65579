package controller

import (
	"context"
	"encoding/json"
	"time"

	"github.com/zajavka/zajavka-bot/internal/controller/conversation"
	"github.com/zajavka/zajavka-bot/internal/model"
	"github.com/zajavka/zajavka-bot/internal/repository"
	"github.com/zajavka/zajavka-bot/internal/service"
	"github.com/zajavka/zajavka-bot/internal/whatsapp"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// processTimeout bounds one event's processing after the webhook has already
// been acknowledged.
const processTimeout = 30 * time.Second

// WebhookController owns the inbound surface. The provider expects a fast
// 200 on every delivery: the handler acknowledges as soon as the envelope is
// parsed and processes events on its own context, so reply latency never
// triggers a provider-side redelivery storm.
type WebhookController struct {
	verifyToken string
	directory   *service.DirectoryService
	handler     *conversation.Handler
	messageLog  *repository.MessageLogRepository
	logger      *zap.Logger
}

func NewWebhookController(
	verifyToken string,
	directory *service.DirectoryService,
	handler *conversation.Handler,
	messageLog *repository.MessageLogRepository,
	logger *zap.Logger,
) *WebhookController {
	return &WebhookController{
		verifyToken: verifyToken,
		directory:   directory,
		handler:     handler,
		messageLog:  messageLog,
		logger:      logger,
	}
}

func (c *WebhookController) Register(app *fiber.App) {
	app.Get("/healthz", func(ctx *fiber.Ctx) error {
		return ctx.SendString("ok")
	})
	app.Get("/webhook", c.Verify)
	app.Post("/webhook", c.Receive)
}

// Verify answers the provider's subscription handshake.
func (c *WebhookController) Verify(ctx *fiber.Ctx) error {
	if ctx.Query("hub.mode") == "subscribe" && ctx.Query("hub.verify_token") == c.verifyToken {
		return ctx.SendString(ctx.Query("hub.challenge"))
	}
	return ctx.SendStatus(fiber.StatusForbidden)
}

// Receive handles one pushed batch: parse, acknowledge, then process each
// message event asynchronously.
func (c *WebhookController) Receive(ctx *fiber.Ctx) error {
	var envelope whatsapp.Envelope
	if err := json.Unmarshal(ctx.Body(), &envelope); err != nil {
		c.logger.Warn("Unparseable webhook body", zap.Error(err))
		// Still acknowledge: the provider would only redeliver the same
		// payload.
		return ctx.SendStatus(fiber.StatusOK)
	}

	events := envelope.Flatten()
	for _, in := range events {
		go c.process(in)
	}

	return ctx.SendStatus(fiber.StatusOK)
}

// process runs one event end to end: idempotency gate, sender resolution,
// conversation dispatch. Failures are logged and the event is dropped; the
// provider got its 200 and will not redeliver.
func (c *WebhookController) process(in whatsapp.Inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	if in.EventID == "" {
		// The dedupe key must never be empty.
		in.EventID = "local-" + uuid.NewString()
	}

	summary := in.Text
	if in.Kind == whatsapp.KindList || in.Kind == whatsapp.KindButton {
		summary = in.ReplyID
		if in.ReplyTitle != "" {
			summary = in.ReplyID + " (" + in.ReplyTitle + ")"
		}
	}

	first, err := c.messageLog.InsertInbound(ctx, &model.MessageLog{
		ProviderEventID: in.EventID,
		Peer:            in.From,
		Kind:            string(in.Kind),
		Summary:         truncate(summary, 120),
	})
	if err != nil {
		c.logger.Error("Inbound audit insert failed, dropping event",
			zap.Error(err), zap.String("event_id", in.EventID))
		return
	}
	if !first {
		c.logger.Info("Duplicate delivery skipped", zap.String("event_id", in.EventID))
		return
	}

	sender, err := c.directory.ResolveSender(ctx, in.From)
	if err != nil {
		c.logger.Error("Sender resolution failed, dropping event",
			zap.Error(err), zap.String("event_id", in.EventID), zap.String("from", in.From))
		return
	}

	c.handler.Handle(ctx, in, sender)
}
