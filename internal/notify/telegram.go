package notify

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Telegram delivers alerts to a single configured chat. With no token or
// chat id it stays disabled and Notify becomes a logged no-op.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *logrus.Logger
}

// NewTelegram never fails: an unconfigured or unreachable bot simply
// disables notifications, which must not keep the watcher from running.
func NewTelegram(token string, chatID int64, log *logrus.Logger) *Telegram {
	t := &Telegram{chatID: chatID, log: log}
	if token == "" || chatID == 0 {
		log.Info("telegram token or chat id not configured, notifications disabled")
		return t
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.WithError(err).Warn("telegram bot init failed, notifications disabled")
		return t
	}
	t.bot = bot
	log.WithField("bot", bot.Self.UserName).Info("telegram notifications enabled")
	return t
}

// Notify sends the text message and then, when imagePath is non-empty, the
// image as a photo attachment. The two sends are independent: a failed
// photo does not undo the text, and neither failure reaches the caller.
func (t *Telegram) Notify(text, imagePath string) {
	if t.bot == nil {
		t.log.Info("telegram not configured, skipping notification")
		return
	}

	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		t.log.WithError(err).Warn("error sending telegram message")
	} else {
		t.log.Info("telegram message sent")
	}

	if imagePath == "" {
		return
	}
	photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FilePath(imagePath))
	if _, err := t.bot.Send(photo); err != nil {
		t.log.WithError(err).WithField("image", imagePath).Warn("error sending telegram image")
	} else {
		t.log.Info("telegram image sent")
	}
}
