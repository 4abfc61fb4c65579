package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/zajavka/zajavka-bot/internal/model"
	"github.com/zajavka/zajavka-bot/internal/repository"
	"go.uber.org/zap"
)

// countryPrefix is the studio's home country code; the provider always
// delivers full international numbers, historical roster imports often stored
// the national part only.
const countryPrefix = "48"

// DirectoryService resolves an inbound phone identifier to a roster
// participant. Pure reads, no side effects.
type DirectoryService struct {
	participants *repository.ParticipantRepository
	logger       *zap.Logger
}

func NewDirectoryService(participants *repository.ParticipantRepository, logger *zap.Logger) *DirectoryService {
	return &DirectoryService{participants: participants, logger: logger}
}

// phoneForms returns the candidate spellings of one identifier: as delivered,
// with the country prefix stripped, and with it prepended.
func phoneForms(phone string) []string {
	phone = strings.TrimPrefix(strings.TrimSpace(phone), "+")

	forms := []string{phone}
	if strings.HasPrefix(phone, countryPrefix) && len(phone) > len(countryPrefix) {
		forms = append(forms, phone[len(countryPrefix):])
	} else {
		forms = append(forms, countryPrefix+phone)
	}
	return forms
}

// ResolveSender maps a phone identifier to {member, instructor, unknown}.
// Member roster is checked first, first match wins.
func (s *DirectoryService) ResolveSender(ctx context.Context, phone string) (*model.Sender, error) {
	forms := phoneForms(phone)

	member, err := s.participants.GetByPhone(ctx, model.RoleMember, forms...)
	if err != nil {
		return nil, fmt.Errorf("resolve sender: %w", err)
	}
	if member != nil {
		return &model.Sender{Role: model.RoleMember, Participant: member}, nil
	}

	instructor, err := s.participants.GetByPhone(ctx, model.RoleInstructor, forms...)
	if err != nil {
		return nil, fmt.Errorf("resolve sender: %w", err)
	}
	if instructor != nil {
		return &model.Sender{Role: model.RoleInstructor, Participant: instructor}, nil
	}

	s.logger.Info("Unknown sender", zap.String("phone", phone))
	return &model.Sender{Role: model.RoleUnknown}, nil
}
