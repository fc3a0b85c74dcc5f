package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/Freeeeeet/tutorbook/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChatLinker stores the chat a user is notified in.
type ChatLinker interface {
	LinkTelegram(ctx context.Context, id uuid.UUID, chatID int64) error
}

type BotController struct {
	bot    *bot.Bot
	linker ChatLinker
	logger *zap.Logger
}

func NewBotController(botInstance *bot.Bot, linker ChatLinker, logger *zap.Logger) *BotController {
	return &BotController{
		bot:    botInstance,
		linker: linker,
		logger: logger,
	}
}

// RegisterHandlers registers the commands and the command menu.
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, c.HandleStart)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, c.HandleHelp)

	return c.setCommands(ctx)
}

func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "start", Description: "🚀 Подключить уведомления"},
		{Command: "help", Description: "❓ Справка"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})
	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("✅ Bot commands menu set")
	return nil
}

// Start polls for updates until ctx is done.
func (c *BotController) Start(ctx context.Context) error {
	c.logger.Info("Starting bot...")
	c.bot.Start(ctx)
	return nil
}

func (c *BotController) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	c.handleStart(ctx, b, update)
}

func (c *BotController) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	c.handleHelp(ctx, b, update)
}

// handleStart links the chat to the user id passed as the deep-link payload:
// /start <user-id>.
func (c *BotController) handleStart(ctx context.Context, sender MessageSender, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	fields := strings.Fields(update.Message.Text)
	if len(fields) < 2 {
		c.reply(ctx, sender, chatID, "👋 Привет!\n\n"+
			"Чтобы получать уведомления о записях, откройте ссылку на бота из приложения "+
			"или отправьте /start <b>ваш ID пользователя</b>.")
		return
	}

	userID, err := uuid.Parse(fields[1])
	if err != nil {
		c.reply(ctx, sender, chatID, "❌ Неверный ID пользователя.")
		return
	}

	if err := c.linker.LinkTelegram(ctx, userID, chatID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.reply(ctx, sender, chatID, "❌ Пользователь не найден.")
			return
		}
		c.logger.Error("Failed to link chat", zap.String("user_id", userID.String()), zap.Error(err))
		c.reply(ctx, sender, chatID, "❌ Произошла ошибка. Попробуйте позже.")
		return
	}

	c.reply(ctx, sender, chatID, "✅ <b>Уведомления подключены!</b>\n\n"+
		"Сюда будут приходить новости о ваших записях и занятиях.")
}

func (c *BotController) handleHelp(ctx context.Context, sender MessageSender, update *models.Update) {
	if update.Message == nil {
		return
	}
	c.reply(ctx, sender, update.Message.Chat.ID, "📚 Справка по командам:\n\n"+
		"/start &lt;ID&gt; - Подключить уведомления\n"+
		"/help - Показать эту справку\n\n"+
		"Записаться на занятие можно в приложении.")
}

func (c *BotController) reply(ctx context.Context, sender MessageSender, chatID int64, text string) {
	_, err := sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		c.logger.Warn("Failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
