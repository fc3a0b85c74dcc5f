package notify

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/tutorbook/internal/model"
)

// StatusDisplay pairs an emoji with a label for chat messages.
type StatusDisplay struct {
	Emoji string
	Text  string
}

func BookingStatusDisplay(status model.BookingStatus) StatusDisplay {
	displays := map[model.BookingStatus]StatusDisplay{
		model.BookingStatusPending:   {"⏳", "Ожидает подтверждения"},
		model.BookingStatusConfirmed: {"✅", "Подтверждена"},
		model.BookingStatusCompleted: {"✔️", "Завершена"},
		model.BookingStatusCancelled: {"❌", "Отменена"},
		model.BookingStatusNoShow:    {"🚫", "Неявка"},
	}

	if display, ok := displays[status]; ok {
		return display
	}
	return StatusDisplay{"❓", "Неизвестно"}
}

func ClassStatusDisplay(status model.ClassStatus) StatusDisplay {
	displays := map[model.ClassStatus]StatusDisplay{
		model.ClassStatusScheduled:  {"🗓", "Запланировано"},
		model.ClassStatusInProgress: {"▶️", "Идёт"},
		model.ClassStatusCompleted:  {"✔️", "Завершено"},
		model.ClassStatusCancelled:  {"❌", "Отменено"},
	}

	if display, ok := displays[status]; ok {
		return display
	}
	return StatusDisplay{"❓", "Неизвестно"}
}

// FormatDate renders a day as 02.01.2006 (Пн).
func FormatDate(d model.Date) string {
	t := d.In(time.UTC)
	return fmt.Sprintf("%s (%s)", t.Format("02.01.2006"), WeekdayShortName(t.Weekday()))
}

// FormatTimeRange renders "10:00-11:00".
func FormatTimeRange(start, end string) string {
	return fmt.Sprintf("%s-%s", start, end)
}

// FormatDuration renders minutes as "45 мин", "2 ч" or "1 ч 30 мин".
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d мин", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%d ч", hours)
	}
	return fmt.Sprintf("%d ч %d мин", hours, mins)
}

func WeekdayShortName(weekday time.Weekday) string {
	names := []string{"Вс", "Пн", "Вт", "Ср", "Чт", "Пт", "Сб"}
	if weekday >= 0 && int(weekday) < len(names) {
		return names[weekday]
	}
	return "?"
}
