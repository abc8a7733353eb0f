package telegram

import (
	"fmt"

	"github.com/go-telegram/bot/models"
)

// NoopCallback is the data of buttons that only display state.
const NoopCallback = "cur"

func InlineButton(text, callbackData string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{
		Text:         text,
		CallbackData: callbackData,
	}
}

func InlineKeyboard(rows ...[]models.InlineKeyboardButton) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: rows,
	}
}

// PaginationRow builds prev / position / next buttons. Page is zero-based and
// the callbacks carry prefix + "_" + target page.
func PaginationRow(page, totalPages int, prefix string) []models.InlineKeyboardButton {
	if totalPages < 1 {
		totalPages = 1
	}
	var row []models.InlineKeyboardButton
	if page > 0 {
		row = append(row, InlineButton("⬅️", fmt.Sprintf("%s_%d", prefix, page-1)))
	}
	row = append(row, InlineButton(fmt.Sprintf("%d/%d", page+1, totalPages), NoopCallback))
	if page < totalPages-1 {
		row = append(row, InlineButton("➡️", fmt.Sprintf("%s_%d", prefix, page+1)))
	}
	return row
}
