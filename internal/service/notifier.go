package service

import (
	"context"
	"fmt"
	"time"

	"github.com/zajavka/zajavka-bot/internal/model"
	"github.com/zajavka/zajavka-bot/internal/repository"
	"go.uber.org/zap"
)

// AbsenceNotice is emitted after an absence commits so the class's instructor
// hears about it. Delivery is best effort: a failure here is logged and
// dropped, never propagated into the operation that produced it.
type AbsenceNotice struct {
	InstructorID int64
	MemberName   string
	GroupName    string
	TimeLabel    string
	Date         time.Time
}

// noticeTemplate is the pre-approved message template for instructor pings.
// Business-initiated messages outside the 24-hour service window must use a
// template, and an absence report can land at any hour.
const (
	noticeTemplate = "absence_notice"
	noticeLang     = "pl"
)

// TemplateSender is the slice of the outbound dispatch the notifier needs.
type TemplateSender interface {
	SendTemplate(ctx context.Context, to, name, lang string, params []string) (string, error)
}

// Notifier consumes notices on a buffered channel in its own goroutine,
// keeping instructor pings off the webhook's critical path.
type Notifier struct {
	ch           chan AbsenceNotice
	participants *repository.ParticipantRepository
	sender       TemplateSender
	logger       *zap.Logger
}

func NewNotifier(participants *repository.ParticipantRepository, sender TemplateSender, logger *zap.Logger) *Notifier {
	return &Notifier{
		ch:           make(chan AbsenceNotice, 64),
		participants: participants,
		sender:       sender,
		logger:       logger,
	}
}

// Publish enqueues a notice without blocking. When the buffer is full the
// notice is dropped; the absence itself is already committed and auditable.
func (n *Notifier) Publish(notice AbsenceNotice) {
	select {
	case n.ch <- notice:
	default:
		n.logger.Warn("Notification queue full, dropping notice",
			zap.Int64("instructor_id", notice.InstructorID))
	}
}

// Start runs the consumer loop until ctx is canceled.
func (n *Notifier) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case notice := <-n.ch:
				if err := n.deliver(ctx, notice); err != nil {
					n.logger.Error("Instructor notification failed",
						zap.Error(err),
						zap.Int64("instructor_id", notice.InstructorID))
				}
			}
		}
	}()
}

func (n *Notifier) deliver(ctx context.Context, notice AbsenceNotice) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	instructor, err := n.participants.GetByID(ctx, notice.InstructorID)
	if err != nil {
		return fmt.Errorf("load instructor: %w", err)
	}
	if instructor == nil || instructor.Role != model.RoleInstructor {
		return fmt.Errorf("instructor %d not found", notice.InstructorID)
	}

	params := []string{
		notice.MemberName,
		notice.Date.Format("02.01.2006"),
		notice.TimeLabel,
		notice.GroupName,
	}

	if _, err := n.sender.SendTemplate(ctx, instructor.Phone, noticeTemplate, noticeLang, params); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	return nil
}
