package mutation

import (
	"encoding/json"
	"time"
)

// Payload данные операции. Заполняются в зависимости от вида:
// Records — для созданий (массив новых записей), ID + Updates — для
// обновлений, только ID — для удалений.
type Payload struct {
	Records json.RawMessage `json:"records,omitempty"`
	ID      string          `json:"id,omitempty"`
	Updates json.RawMessage `json:"updates,omitempty"`
}

// QueueItem отложенная локальная мутация, ожидающая подтверждения сервером
type QueueItem struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Payload     Payload    `json:"payload"`
	Timestamp   time.Time  `json:"timestamp"` // момент локальной мутации, не время попытки
	RetryCount  int        `json:"retry_count"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"` // nil до первой попытки
}

// LogEntry запись журнала синхронизации. Журнал только для оператора,
// процессор его никогда не читает.
type LogEntry struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
