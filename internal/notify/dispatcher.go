// Package notify turns scheduling events into Telegram messages and links
// chats to users through the bot.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/Freeeeeet/tutorbook/internal/events"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageSender is the part of *bot.Bot the notifier uses.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// UserLookup resolves recipients. It returns nil, nil for unknown users.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type role int

const (
	toStudent role = iota
	toTutor
)

// Dispatcher renders each event for its recipients and sends it.
type Dispatcher struct {
	users  UserLookup
	sender MessageSender
	logger *zap.Logger
}

func NewDispatcher(users UserLookup, sender MessageSender, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{users: users, sender: sender, logger: logger}
}

// Handle is an events.Handler. Recipients without a linked chat are skipped;
// send failures are joined into the returned error.
func (d *Dispatcher) Handle(ctx context.Context, ev events.Event) error {
	var errs []error
	for _, r := range recipients(ev) {
		id := ev.StudentID
		if r == toTutor {
			id = ev.TutorID
		}
		if id == nil {
			continue
		}
		if err := d.send(ctx, *id, render(ev, r)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, userID uuid.UUID, text string) error {
	user, err := d.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user %s: %w", userID, err)
	}
	if user == nil || user.TelegramChatID == nil {
		d.logger.Debug("Recipient has no linked chat", zap.String("user_id", userID.String()))
		return nil
	}

	_, err = d.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    *user.TelegramChatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send to %s: %w", userID, err)
	}

	d.logger.Info("Notification sent",
		zap.String("user_id", userID.String()),
		zap.Int64("chat_id", *user.TelegramChatID))
	return nil
}

// recipients lists who hears about ev. Students of a cancelled class get
// their own booking.cancelled events.
func recipients(ev events.Event) []role {
	switch ev.Type {
	case events.BookingCreated, events.BookingCancelled:
		return []role{toStudent, toTutor}
	case events.BookingConfirmed, events.BookingCompleted, events.BookingNoShow:
		return []role{toStudent}
	case events.ClassCancelled:
		return []role{toTutor}
	default:
		return nil
	}
}

func render(ev events.Event, r role) string {
	var sb strings.Builder

	switch ev.Type {
	case events.BookingCreated:
		if r == toTutor {
			sb.WriteString("🆕 <b>Новая запись на занятие</b>\n\n")
		} else {
			sb.WriteString("📝 <b>Вы записаны на занятие</b>\n\n")
		}
	case events.BookingConfirmed:
		sb.WriteString("✅ <b>Запись подтверждена</b>\n\n")
	case events.BookingCancelled:
		sb.WriteString("❌ <b>Запись отменена</b>\n\n")
	case events.BookingCompleted:
		sb.WriteString("✔️ <b>Занятие завершено</b>\n\n")
	case events.BookingNoShow:
		sb.WriteString("🚫 <b>Отмечена неявка на занятие</b>\n\n")
	case events.ClassCancelled:
		sb.WriteString("❌ <b>Занятие отменено</b>\n\n")
	}

	if ev.Title != "" {
		fmt.Fprintf(&sb, "📚 %s\n", html.EscapeString(ev.Title))
	}
	fmt.Fprintf(&sb, "📅 Дата: %s\n", FormatDate(ev.Date))
	fmt.Fprintf(&sb, "🕐 Время: %s\n", FormatTimeRange(ev.StartTime, ev.EndTime))
	if minutes := windowMinutes(ev.StartTime, ev.EndTime); minutes > 0 {
		fmt.Fprintf(&sb, "⏱ Длительность: %s\n", FormatDuration(minutes))
	}

	if strings.HasPrefix(string(ev.Type), "booking.") {
		status := BookingStatusDisplay(model.BookingStatus(ev.Status))
		fmt.Fprintf(&sb, "%s Статус: %s\n", status.Emoji, status.Text)
	} else {
		status := ClassStatusDisplay(model.ClassStatus(ev.Status))
		fmt.Fprintf(&sb, "%s Статус: %s\n", status.Emoji, status.Text)
	}

	if ev.Reason != "" {
		fmt.Fprintf(&sb, "💬 Причина: %s\n", html.EscapeString(ev.Reason))
	}
	if ev.Type == events.BookingCreated && r == toTutor {
		sb.WriteString("\nПодтвердите запись в приложении.")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// windowMinutes returns 0 when either bound does not parse.
func windowMinutes(start, end string) int {
	s, err := model.ParseTimeOfDay(start)
	if err != nil {
		return 0
	}
	e, err := model.ParseTimeOfDay(end)
	if err != nil {
		return 0
	}
	return int(e - s)
}
