package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Поддерживаемые драйверы
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// SQLResultStore хранит результаты в SQLite или PostgreSQL.
// Сам результат лежит в колонке result как JSON.
type SQLResultStore struct {
	db     *sql.DB
	driver string
}

// OpenSQLResultStore открывает базу и применяет миграции.
func OpenSQLResultStore(ctx context.Context, driver, dsn string) (*SQLResultStore, error) {
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	// проверка соединения
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[STORE] %s result store ready", driver)
	return &SQLResultStore{db: db, driver: driver}, nil
}

func dialectFor(driver string) (string, error) {
	switch driver {
	case DriverSQLite:
		return "sqlite3", nil
	case DriverPostgres:
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported store driver %q", driver)
	}
}

// Save сохраняет запись, повторное сохранение перезаписывает её
func (s *SQLResultStore) Save(ctx context.Context, record entity.ScanRecord) error {
	payload, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	savedAt := record.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO scan_records (attempt_id, source, primary_label, result, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (attempt_id) DO UPDATE SET
			source = excluded.source,
			primary_label = excluded.primary_label,
			result = excluded.result,
			saved_at = excluded.saved_at`),
		string(record.AttemptID), string(record.Source), record.Result.PrimaryLabel, string(payload), savedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert scan record: %w", err)
	}
	return nil
}

// List возвращает записи, новые первыми
func (s *SQLResultStore) List(ctx context.Context, limit int) ([]entity.ScanRecord, error) {
	query := `SELECT attempt_id, source, result, saved_at FROM scan_records ORDER BY saved_at DESC, attempt_id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query scan records: %w", err)
	}
	defer rows.Close()

	var records []entity.ScanRecord
	for rows.Next() {
		var (
			id, source, payload string
			savedAt             int64
		)
		if err := rows.Scan(&id, &source, &payload, &savedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rec := entity.ScanRecord{
			AttemptID: entity.AttemptID(id),
			Source:    entity.Source(source),
			SavedAt:   time.Unix(0, savedAt),
		}
		if err := json.Unmarshal([]byte(payload), &rec.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result %s: %w", id, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete удаляет запись
func (s *SQLResultStore) Delete(ctx context.Context, id entity.AttemptID) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM scan_records WHERE attempt_id = ?`), string(id))
	if err != nil {
		return fmt.Errorf("delete scan record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete scan record: %w", err)
	}
	if n == 0 {
		return port.ErrRecordNotFound
	}
	return nil
}

// Close закрывает соединение с базой
func (s *SQLResultStore) Close() error {
	if s.db == nil {
		return errors.New("store is not open")
	}
	err := s.db.Close()
	log.Printf("[STORE] %s result store closed", s.driver)
	return err
}

// rebind заменяет ? на $1, $2... для PostgreSQL
func (s *SQLResultStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Проверка реализации интерфейса
var _ port.ResultStore = (*SQLResultStore)(nil)
