package models

// CycleResult — итог одного прохода цикла рассылки.
// TempBlock выделен отдельным полем, потому что временная блокировка
// останавливает весь планировщик, а не только текущий лид.
type CycleResult struct {
	Success   bool   `json:"success"`
	TempBlock bool   `json:"temp_block"`
	Message   string `json:"message"`

	// StopLoop — сигнал внешнему циклу завершиться без новых проходов
	// (аккаунт выключен в БД или оператор остановил рассылку).
	StopLoop bool `json:"-"`
}

// QuotaInfo — текущее состояние дневной квоты аккаунта.
// Date — календарный день в часовом поясе аккаунта (YYYY-MM-DD).
type QuotaInfo struct {
	Count int    `json:"count"`
	Limit int    `json:"limit"`
	Date  string `json:"date"`
}
