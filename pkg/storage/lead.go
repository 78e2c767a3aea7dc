package storage

import (
	"fmt"
	"log"
	"regexp"
	"time"

	"dm_go/models"
)

// Имя таблицы лидов приходит из конфигурации аккаунта и подставляется в
// запрос как идентификатор, поэтому пропускаем только буквы, цифры и
// подчёркивание. Это защита от кривой конфигурации, а не от пользователя.
var tableNameRe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// SafeTableName очищает имя таблицы лидов. Пустой результат означает,
// что имя непригодно и нужно взять таблицу по умолчанию.
func SafeTableName(name string) string {
	return tableNameRe.ReplaceAllString(name, "")
}

// GetPendingLeads выбирает пачку необработанных лидов (статус NULL или пустой),
// старые первыми. Размер пачки задаётся конфигурацией цикла.
func (db *DB) GetPendingLeads(table string, limit int) ([]models.Lead, error) {
	safe := SafeTableName(table)
	if safe == "" {
		return nil, fmt.Errorf("некорректное имя таблицы лидов: %q", table)
	}

	query := fmt.Sprintf(
		`SELECT id, username, message FROM %s
                 WHERE status IS NULL OR status = ''
                 ORDER BY id ASC LIMIT $1`, safe)

	rows, err := db.Conn.Query(query, limit)
	if err != nil {
		log.Printf("[DB ERROR] ошибка выборки лидов из %s: %v", safe, err)
		return nil, err
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		var lead models.Lead
		if err := rows.Scan(&lead.ID, &lead.Username, &lead.Message); err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// UpdateLeadStatus записывает итог обработки лида вместе с отметкой времени.
func (db *DB) UpdateLeadStatus(table string, id int, status string, ts time.Time) error {
	safe := SafeTableName(table)
	if safe == "" {
		return fmt.Errorf("некорректное имя таблицы лидов: %q", table)
	}

	query := fmt.Sprintf("UPDATE %s SET status = $1, time_stamp = $2 WHERE id = $3", safe)
	_, err := db.Conn.Exec(query, status, ts, id)
	if err != nil {
		log.Printf("[DB ERROR] ошибка обновления лида %d в %s: %v", id, safe, err)
	}
	return err
}
