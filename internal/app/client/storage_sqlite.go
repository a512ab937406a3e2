package client

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"ledgerkeeper/internal/domain/mutation"
)

type SQLiteStorage struct {
	db     *sql.DB
	logCap int
}

func NewSQLiteStorage(path string, logCap int) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы данных: %w", err)
	}

	if logCap <= 0 {
		logCap = mutation.DefaultLogCap
	}

	storage := &SQLiteStorage{db: db, logCap: logCap}

	// Создаем таблицы
	if err := storage.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка инициализации таблиц: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) initTables() error {
	// Очередь мутаций и журнал синхронизации.
	// Порядок вставки сохраняется через rowid.
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS queue_items (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_attempt DATETIME
		);

		CREATE TABLE IF NOT EXISTS sync_log (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
	`)

	return err
}

func (s *SQLiteStorage) LoadQueue() ([]*mutation.QueueItem, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, payload, created_at, retry_count, last_attempt
		FROM queue_items
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса очереди: %w", err)
	}
	defer rows.Close()

	var items []*mutation.QueueItem
	for rows.Next() {
		var item mutation.QueueItem
		var kindStr, payloadJSON, createdAt string
		var lastAttempt sql.NullString

		if err := rows.Scan(&item.ID, &kindStr, &payloadJSON, &createdAt,
			&item.RetryCount, &lastAttempt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования элемента очереди: %w", err)
		}

		kind, err := mutation.ParseKind(kindStr)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора вида операции: %w", err)
		}
		item.Kind = kind

		if err := json.Unmarshal([]byte(payloadJSON), &item.Payload); err != nil {
			return nil, fmt.Errorf("ошибка парсинга данных операции: %w", err)
		}

		item.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
		if lastAttempt.Valid && lastAttempt.String != "" {
			at, err := time.Parse(time.RFC3339Nano, lastAttempt.String)
			if err == nil {
				item.LastAttempt = &at
			}
		}

		items = append(items, &item)
	}

	return items, rows.Err()
}

func (s *SQLiteStorage) SaveItem(item *mutation.QueueItem) error {
	payloadJSON, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации данных операции: %w", err)
	}

	var lastAttempt interface{}
	if item.LastAttempt != nil {
		lastAttempt = item.LastAttempt.Format(time.RFC3339Nano)
	}

	_, err = s.db.Exec(`
		INSERT INTO queue_items (id, kind, payload, created_at, retry_count, last_attempt)
		VALUES (?, ?, ?, ?, ?, ?)
	`, item.ID, item.Kind.String(), payloadJSON,
		item.Timestamp.Format(time.RFC3339Nano), item.RetryCount, lastAttempt)

	if err != nil {
		return fmt.Errorf("ошибка сохранения элемента очереди: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) UpdateItem(item *mutation.QueueItem) error {
	var lastAttempt interface{}
	if item.LastAttempt != nil {
		lastAttempt = item.LastAttempt.Format(time.RFC3339Nano)
	}

	_, err := s.db.Exec(`
		UPDATE queue_items
		SET retry_count = ?, last_attempt = ?
		WHERE id = ?
	`, item.RetryCount, lastAttempt, item.ID)

	if err != nil {
		return fmt.Errorf("ошибка обновления элемента очереди: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) DeleteItem(id string) error {
	_, err := s.db.Exec("DELETE FROM queue_items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("ошибка удаления элемента очереди: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) AppendLog(entry mutation.LogEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_log (id, item_id, kind, message, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.ID, entry.ItemID, entry.Kind.String(), entry.Message,
		entry.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал: %w", err)
	}

	// Журнал ограничен: старейшие записи вытесняются
	_, err = s.db.Exec(`
		DELETE FROM sync_log
		WHERE rowid NOT IN (SELECT rowid FROM sync_log ORDER BY rowid DESC LIMIT ?)
	`, s.logCap)
	if err != nil {
		return fmt.Errorf("ошибка усечения журнала: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) LoadLog() ([]mutation.LogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, item_id, kind, message, created_at
		FROM sync_log
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса журнала: %w", err)
	}
	defer rows.Close()

	var entries []mutation.LogEntry
	for rows.Next() {
		var entry mutation.LogEntry
		var kindStr, createdAt string

		if err := rows.Scan(&entry.ID, &entry.ItemID, &kindStr, &entry.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи журнала: %w", err)
		}

		kind, err := mutation.ParseKind(kindStr)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора вида операции: %w", err)
		}
		entry.Kind = kind
		entry.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (s *SQLiteStorage) CountItems() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM queue_items").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета элементов очереди: %w", err)
	}

	return count, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
