package models

// Account описывает аккаунт Instagram из таблицы accounts.
// Поля прокси хранятся строкой формата host:port[:user:pass],
// разбор выполняется на стороне браузерного модуля.
type Account struct {
	Username            string  `json:"username"`
	Password            string  `json:"password"`
	Proxy               string  `json:"proxy"`
	Port                *int    `json:"port"`
	TableName           string  `json:"table_name"`
	DailyMessageLimit   int     `json:"daily_message_limit"`
	Timezone            string  `json:"timezone"`
	SendIntervalMinutes float64 `json:"send_interval_minutes"`
	Active              bool    `json:"active"`
}
