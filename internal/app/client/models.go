package client

import (
	"sort"
	"time"

	"ledgerkeeper/internal/domain/mutation"
)

// Storage - долговременное хранилище очереди мутаций и журнала синхронизации
type Storage interface {
	LoadQueue() ([]*mutation.QueueItem, error)
	SaveItem(item *mutation.QueueItem) error
	UpdateItem(item *mutation.QueueItem) error
	DeleteItem(id string) error
	AppendLog(entry mutation.LogEntry) error
	LoadLog() ([]mutation.LogEntry, error)
	Close() error
}

// SyncState - персистентное состояние процессора синхронизации
type SyncState struct {
	Processing     bool      `json:"processing"`
	ProcessingAt   time.Time `json:"processing_at"`
	LastPass       time.Time `json:"last_pass"`
	TotalPasses    int       `json:"total_passes"`
	TotalSynced    int       `json:"total_synced"`
	TotalConflicts int       `json:"total_conflicts"`
	TotalDropped   int       `json:"total_dropped"`
}

// MemoryStorage - временное in-memory хранилище.
// Используется в тестах и как запасной вариант, если SQLite недоступен.
type MemoryStorage struct {
	items map[string]*mutation.QueueItem
	order map[string]int
	next  int
	log   []mutation.LogEntry
	cap   int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		items: make(map[string]*mutation.QueueItem),
		order: make(map[string]int),
		cap:   mutation.DefaultLogCap,
	}
}

func (m *MemoryStorage) LoadQueue() ([]*mutation.QueueItem, error) {
	items := make([]*mutation.QueueItem, 0, len(m.items))
	for _, item := range m.items {
		copied := *item
		items = append(items, &copied)
	}
	sort.Slice(items, func(i, j int) bool {
		return m.order[items[i].ID] < m.order[items[j].ID]
	})
	return items, nil
}

func (m *MemoryStorage) SaveItem(item *mutation.QueueItem) error {
	copied := *item
	m.items[item.ID] = &copied
	if _, ok := m.order[item.ID]; !ok {
		m.order[item.ID] = m.next
		m.next++
	}
	return nil
}

func (m *MemoryStorage) UpdateItem(item *mutation.QueueItem) error {
	return m.SaveItem(item)
}

func (m *MemoryStorage) DeleteItem(id string) error {
	delete(m.items, id)
	delete(m.order, id)
	return nil
}

func (m *MemoryStorage) AppendLog(entry mutation.LogEntry) error {
	m.log = append(m.log, entry)
	if len(m.log) > m.cap {
		m.log = m.log[len(m.log)-m.cap:]
	}
	return nil
}

func (m *MemoryStorage) LoadLog() ([]mutation.LogEntry, error) {
	out := make([]mutation.LogEntry, len(m.log))
	copy(out, m.log)
	return out, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
