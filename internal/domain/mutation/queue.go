package mutation

import (
	"fmt"
	"time"
)

// Queue упорядоченная очередь отложенных мутаций. Чистая структура данных
// без ввода-вывода: долговременное хранение — забота внешнего хранилища.
// Не потокобезопасна, обращения сериализует владелец.
type Queue struct {
	items []*QueueItem
	index map[string]int
}

// NewQueue создает пустую очередь
func NewQueue() *Queue {
	return &Queue{
		index: make(map[string]int),
	}
}

// Append добавляет элемент в конец очереди. ID должен быть уникален.
func (q *Queue) Append(item *QueueItem) error {
	if item.ID == "" {
		return fmt.Errorf("пустой id элемента очереди")
	}
	if _, ok := q.index[item.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, item.ID)
	}

	q.index[item.ID] = len(q.items)
	q.items = append(q.items, item)
	return nil
}

// Remove удаляет элемент по id. Отсутствующий id — не ошибка.
func (q *Queue) Remove(id string) {
	pos, ok := q.index[id]
	if !ok {
		return
	}

	q.items = append(q.items[:pos], q.items[pos+1:]...)
	delete(q.index, id)

	// Пересчитываем позиции сдвинувшихся элементов
	for i := pos; i < len(q.items); i++ {
		q.index[q.items[i].ID] = i
	}
}

// Get возвращает элемент по id
func (q *Queue) Get(id string) (*QueueItem, bool) {
	pos, ok := q.index[id]
	if !ok {
		return nil, false
	}
	return q.items[pos], true
}

// IncrementRetry увеличивает счетчик попыток элемента
func (q *Queue) IncrementRetry(id string) error {
	item, ok := q.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	item.RetryCount++
	return nil
}

// RecordAttempt отмечает время последней попытки элемента
func (q *Queue) RecordAttempt(id string, at time.Time) error {
	item, ok := q.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	item.LastAttempt = &at
	return nil
}

// Snapshot возвращает копию списка элементов для одного прохода.
// Элементы, добавленные после снимка, в проход не попадают.
func (q *Queue) Snapshot() []*QueueItem {
	snapshot := make([]*QueueItem, len(q.items))
	copy(snapshot, q.items)
	return snapshot
}

// Items возвращает элементы в порядке вставки
func (q *Queue) Items() []*QueueItem {
	return q.Snapshot()
}

// Len возвращает количество элементов в очереди
func (q *Queue) Len() int {
	return len(q.items)
}
