package models

import "time"

// Статусы лида. Пустой статус означает, что лид ещё не обработан.
const (
	LeadStatusSent = "send"
)

// Lead — получатель сообщения из таблицы лидов аккаунта.
// Статус меняется ровно один раз за попытку обработки.
type Lead struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	TimeStamp time.Time `json:"time_stamp"`
}
