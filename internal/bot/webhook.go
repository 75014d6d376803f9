package bot

import (
	"context"
	"encoding/json"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxUpdateBytes bounds a single webhook body.
const maxUpdateBytes = 1 << 20

// WebhookHandler accepts Telegram updates pushed over HTTP. The update is
// handled in the background under ctx and Telegram gets 200 right away.
func (b *Bot) WebhookHandler(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBytes)).Decode(&update); err != nil {
			b.logger.Warn("Invalid webhook payload", "error", err)
			http.Error(w, "invalid update", http.StatusBadRequest)
			return
		}

		b.Dispatch(ctx, update)
		w.WriteHeader(http.StatusOK)
	}
}
