package storage

import (
	"database/sql"
	"log"

	"dm_go/models"
)

// Значения по умолчанию на случай, если колонки аккаунта не заполнены.
// Совпадают с боевой конфигурацией первого клиента.
const (
	DefaultDailyLimit = 80
	DefaultTimezone   = "America/Argentina/Buenos_Aires"
)

// GetAccountByUsername возвращает аккаунт целиком. Лимит, часовой пояс и
// интервал отправки нормализуются здесь же, чтобы вызывающий код не
// проверял нулевые значения.
func (db *DB) GetAccountByUsername(username string) (*models.Account, error) {
	var (
		account  models.Account
		password sql.NullString
		proxy    sql.NullString
		port     sql.NullInt64
		table    sql.NullString
		limit    sql.NullInt64
		tz       sql.NullString
		interval sql.NullFloat64
		active   sql.NullBool
	)

	query := `
              SELECT username, password, proxy, port, table_name,
                     daily_message_limit, timezone, send_interval_minutes, active
              FROM accounts
              WHERE username = $1
              LIMIT 1
       `
	err := db.Conn.QueryRow(query, username).Scan(
		&account.Username,
		&password,
		&proxy,
		&port,
		&table,
		&limit,
		&tz,
		&interval,
		&active,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		log.Printf("[DB ERROR] ошибка чтения аккаунта %s: %v", username, err)
		return nil, err
	}

	account.Password = password.String
	account.Proxy = proxy.String
	if port.Valid {
		p := int(port.Int64)
		account.Port = &p
	}
	account.TableName = table.String
	account.DailyMessageLimit = DefaultDailyLimit
	if limit.Valid && limit.Int64 >= 1 {
		account.DailyMessageLimit = int(limit.Int64)
	}
	account.Timezone = DefaultTimezone
	if tz.Valid && tz.String != "" {
		account.Timezone = tz.String
	}
	if interval.Valid && interval.Float64 > 0 {
		account.SendIntervalMinutes = interval.Float64
	}
	// active по умолчанию true: NULL в колонке не должен останавливать рассылку
	account.Active = true
	if active.Valid {
		account.Active = active.Bool
	}

	return &account, nil
}

// GetDailyMessageLimit читает лимит заново при каждом вызове:
// конфигурация аккаунта может измениться посреди цикла.
func (db *DB) GetDailyMessageLimit(username string) int {
	var limit sql.NullInt64
	err := db.Conn.QueryRow(
		"SELECT daily_message_limit FROM accounts WHERE username = $1 LIMIT 1",
		username,
	).Scan(&limit)
	if err != nil || !limit.Valid || limit.Int64 < 1 {
		return DefaultDailyLimit
	}
	return int(limit.Int64)
}

// GetTimezoneByUsername возвращает часовой пояс аккаунта либо пояс по умолчанию.
func (db *DB) GetTimezoneByUsername(username string) string {
	var tz sql.NullString
	err := db.Conn.QueryRow(
		"SELECT timezone FROM accounts WHERE username = $1 LIMIT 1",
		username,
	).Scan(&tz)
	if err != nil || !tz.Valid || tz.String == "" {
		return DefaultTimezone
	}
	return tz.String
}

// GetProxyByUsername возвращает строку прокси host:port[:user:pass] или пустую строку.
func (db *DB) GetProxyByUsername(username string) string {
	var proxy sql.NullString
	err := db.Conn.QueryRow(
		"SELECT proxy FROM accounts WHERE username = $1 LIMIT 1",
		username,
	).Scan(&proxy)
	if err != nil || !proxy.Valid {
		return ""
	}
	return proxy.String
}
