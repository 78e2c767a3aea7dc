package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

type leadTestDriver struct{}

type leadTestConn struct{}

type leadTestRows struct {
	columns []string
	data    [][]driver.Value
	idx     int
}

type leadDummyResult struct{}

// leadQueries накапливает тексты запросов, чтобы тесты могли проверить
// форму SQL после санитизации имени таблицы.
var leadQueries []string

func (leadTestDriver) Open(name string) (driver.Conn, error) { return &leadTestConn{}, nil }

func (c *leadTestConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("not implemented")
}
func (c *leadTestConn) Close() error              { return nil }
func (c *leadTestConn) Begin() (driver.Tx, error) { return nil, errors.New("not implemented") }

func (c *leadTestConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	leadQueries = append(leadQueries, query)
	return &leadTestRows{
		columns: []string{"id", "username", "message"},
		data: [][]driver.Value{
			{int64(1), "first_lead", "hola"},
			{int64(2), "second_lead", "hola"},
		},
	}, nil
}

func (c *leadTestConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	leadQueries = append(leadQueries, query)
	return leadDummyResult{}, nil
}

func (leadDummyResult) LastInsertId() (int64, error) { return 0, nil }
func (leadDummyResult) RowsAffected() (int64, error) { return 1, nil }

func (r *leadTestRows) Columns() []string { return r.columns }
func (r *leadTestRows) Close() error      { return nil }
func (r *leadTestRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.idx])
	r.idx++
	return nil
}

func init() { sql.Register("leadDummy", leadTestDriver{}) }

func TestSafeTableName(t *testing.T) {
	cases := map[string]string{
		"leads":              "leads",
		"leads_arg_2024":     "leads_arg_2024",
		"leads; DROP TABLE":  "leadsDROPTABLE",
		"таблица":            "",
		"lead-table":         "leadtable",
		"":                   "",
	}
	for in, want := range cases {
		if got := SafeTableName(in); got != want {
			t.Errorf("SafeTableName(%q) = %q, ожидали %q", in, got, want)
		}
	}
}

func TestGetPendingLeadsQueryShape(t *testing.T) {
	leadQueries = nil

	conn, err := sql.Open("leadDummy", "")
	if err != nil {
		t.Fatal(err)
	}
	db := NewDB(conn)

	leads, err := db.GetPendingLeads("my_leads", 15)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("ожидали 2 лида, получили %d", len(leads))
	}
	if leads[0].ID != 1 || leads[0].Username != "first_lead" {
		t.Fatalf("первый лид прочитан неверно: %+v", leads[0])
	}

	if len(leadQueries) != 1 {
		t.Fatalf("ожидали один запрос, получили %d", len(leadQueries))
	}
	q := leadQueries[0]
	if !strings.Contains(q, "FROM my_leads") {
		t.Errorf("в запросе нет имени таблицы: %s", q)
	}
	if !strings.Contains(q, "status IS NULL OR status = ''") {
		t.Errorf("в запросе нет фильтра по пустому статусу: %s", q)
	}
	if !strings.Contains(q, "ORDER BY id ASC") {
		t.Errorf("лиды должны выбираться старые первыми: %s", q)
	}
}

func TestGetPendingLeadsRejectsBadTable(t *testing.T) {
	conn, err := sql.Open("leadDummy", "")
	if err != nil {
		t.Fatal(err)
	}
	db := NewDB(conn)

	if _, err := db.GetPendingLeads("плохое имя!", 5); err == nil {
		t.Fatal("ожидали ошибку для имени таблицы без допустимых символов")
	}
}

func TestUpdateLeadStatus(t *testing.T) {
	leadQueries = nil

	conn, err := sql.Open("leadDummy", "")
	if err != nil {
		t.Fatal(err)
	}
	db := NewDB(conn)

	if err := db.UpdateLeadStatus("my_leads", 7, "send", time.Now()); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(leadQueries) != 1 || !strings.Contains(leadQueries[0], "UPDATE my_leads SET status") {
		t.Fatalf("неожиданный запрос обновления: %v", leadQueries)
	}
}
