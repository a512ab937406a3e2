// internal/app/client/processor.go
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"ledgerkeeper/internal/domain/mutation"
)

var (
	// ErrProcessing проход уже выполняется
	ErrProcessing = errors.New("синхронизация уже выполняется")

	// ErrOffline сервер недоступен, ручной запуск отклонен
	ErrOffline = errors.New("нет соединения с сервером")
)

// OnlineFunc проверка доступности сервера
type OnlineFunc func(ctx context.Context) bool

// Processor выполняет проходы по очереди мутаций: применяет откат,
// проверяет конфликты, вызывает удаленные операции и ведет журнал.
// Очередь и журнал принадлежат процессору; извне они доступны
// только для чтения.
type Processor struct {
	queue      *mutation.Queue
	logbook    *mutation.Log
	storage    Storage
	stateStore StateStore
	state      *SyncState
	remote     Remote
	detector   *ConflictDetector
	notifier   Notifier
	online     OnlineFunc
	log        *slog.Logger
	now        func() time.Time

	mu           sync.Mutex // защищает queue, logbook, state
	runMu        sync.Mutex // защищает isProcessing
	isProcessing bool
}

// PassResult итог одного прохода по снимку очереди
type PassResult struct {
	Synced    int           `json:"synced"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Conflicts int           `json:"conflicts"`
	Dropped   int           `json:"dropped"`
	Duration  time.Duration `json:"duration"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
}

// NewProcessor создает процессор синхронизации. Очередь и журнал
// загружаются из хранилища, чтобы пережившие перезапуск мутации
// не потерялись.
func NewProcessor(
	storage Storage,
	stateStore StateStore,
	remote Remote,
	notifier Notifier,
	online OnlineFunc,
	log *slog.Logger,
	logCap int,
) (*Processor, error) {
	queue := mutation.NewQueue()

	items, err := storage.LoadQueue()
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки очереди: %w", err)
	}
	for _, item := range items {
		if err := queue.Append(item); err != nil {
			return nil, fmt.Errorf("ошибка восстановления очереди: %w", err)
		}
	}

	logbook := mutation.NewLog(logCap)
	entries, err := storage.LoadLog()
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки журнала: %w", err)
	}
	for _, entry := range entries {
		logbook.Append(entry)
	}

	state, err := stateStore.Load()
	if err != nil {
		log.Warn("Не удалось загрузить состояние синхронизации", "error", err)
		state = &SyncState{}
	}

	return &Processor{
		queue:      queue,
		logbook:    logbook,
		storage:    storage,
		stateStore: stateStore,
		state:      state,
		remote:     remote,
		detector:   NewConflictDetector(remote, log),
		notifier:   notifier,
		online:     online,
		log:        log,
		now:        time.Now,
	}, nil
}

// Enqueue добавляет мутацию в очередь. Идентификатор присваивается
// здесь и не меняется до удаления элемента.
func (p *Processor) Enqueue(kind mutation.Kind, payload mutation.Payload) (*mutation.QueueItem, error) {
	item := &mutation.QueueItem{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		Timestamp: p.now(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.queue.Append(item); err != nil {
		return nil, fmt.Errorf("ошибка добавления в очередь: %w", err)
	}

	if err := p.storage.SaveItem(item); err != nil {
		p.queue.Remove(item.ID)
		return nil, fmt.Errorf("ошибка сохранения элемента очереди: %w", err)
	}

	p.log.Debug("Мутация поставлена в очередь",
		"item_id", item.ID,
		"kind", item.Kind.String(),
	)

	return item, nil
}

// Process выполняет один проход по снимку очереди.
//
// В любой момент активен не более чем один проход, сколько бы
// источников ни дергали процессор одновременно. Пустая очередь и
// недоступный сервер — тихие no-op; при force недоступность сервера
// превращается в явный отказ с сообщением пользователю.
func (p *Processor) Process(ctx context.Context, force bool) (*PassResult, error) {
	result := &PassResult{StartTime: p.now()}

	// Пустая очередь — no-op без единой записи и без обращений к серверу
	if p.QueueLen() == 0 {
		result.EndTime = p.now()
		return result, nil
	}

	if !p.online(ctx) {
		result.EndTime = p.now()
		if force {
			p.notifier.Offline("Нет соединения с сервером, повтор отклонен")
			return result, ErrOffline
		}
		return result, nil
	}

	// Гард взводится синхронно, до первой блокирующей операции,
	// и снимается в defer: упавший проход не заклинит процессор.
	p.runMu.Lock()
	if p.isProcessing || p.processingPersisted() {
		p.runMu.Unlock()
		return nil, ErrProcessing
	}
	p.isProcessing = true
	p.runMu.Unlock()

	p.setProcessingState(true)

	defer func() {
		p.setProcessingState(false)
		p.runMu.Lock()
		p.isProcessing = false
		p.runMu.Unlock()
	}()

	snapshot := p.snapshot()
	p.log.Info("Начало прохода синхронизации",
		"items", len(snapshot),
		"force", force,
	)

	for _, item := range snapshot {
		p.processItem(ctx, item, force, result)
	}

	result.EndTime = p.now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	p.updateStats(result)

	// Уведомления только агрегированные, чтобы не шуметь по каждому элементу
	if result.Synced > 0 {
		p.notifier.SyncedOK(result.Synced)
	}
	if result.Dropped > 0 {
		p.notifier.Dropped(result.Dropped)
	}

	p.log.Info("Проход синхронизации завершен",
		"synced", result.Synced,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"conflicts", result.Conflicts,
		"dropped", result.Dropped,
		"duration", result.Duration,
	)

	return result, nil
}

// processItem обрабатывает один элемент снимка. Ошибки элемента
// никогда не прерывают проход.
func (p *Processor) processItem(ctx context.Context, item *mutation.QueueItem, force bool, result *PassResult) {
	// 1. Исчерпаны попытки: удаляем без обращения к серверу
	if item.RetryCount >= mutation.MaxRetries {
		p.appendLog(item, fmt.Sprintf("операция отброшена после %d неудачных попыток", item.RetryCount))
		p.removeItem(item.ID)
		result.Dropped++
		return
	}

	// 2. Окно отката еще не истекло: пропускаем до следующего прохода.
	// Ручной запуск обходит откат, но не лимит попыток.
	if !force && item.RetryCount > 0 && !mutation.Eligible(item, p.now()) {
		result.Skipped++
		return
	}

	// 3. Обновления проверяем на конфликт с серверной версией
	if item.Kind.IsUpdate() && p.detector.HasConflict(ctx, item.Kind, item.Payload.ID, item.Timestamp) {
		p.appendLog(item, "запись изменена на сервере, локальная мутация отброшена")
		p.removeItem(item.ID)
		result.Conflicts++
		return
	}

	// 4. Вызываем удаленную операцию
	err := p.dispatch(ctx, item)
	if err == nil {
		// 5. Успех: элемент покидает очередь, журнал не трогаем
		p.removeItem(item.ID)
		result.Synced++
		return
	}

	// 6. Неудача: счетчик попыток, отметка времени, запись в журнал
	now := p.now()

	p.mu.Lock()
	if ierr := p.queue.IncrementRetry(item.ID); ierr != nil {
		p.log.Warn("Не удалось увеличить счетчик попыток", "item_id", item.ID, "error", ierr)
	}
	if aerr := p.queue.RecordAttempt(item.ID, now); aerr != nil {
		p.log.Warn("Не удалось отметить попытку", "item_id", item.ID, "error", aerr)
	}
	if current, ok := p.queue.Get(item.ID); ok {
		if serr := p.storage.UpdateItem(current); serr != nil {
			p.log.Warn("Не удалось сохранить состояние элемента", "item_id", item.ID, "error", serr)
		}
	}
	p.mu.Unlock()

	p.appendLog(item, err.Error())
	result.Failed++

	p.log.Debug("Операция не применена, останется в очереди",
		"item_id", item.ID,
		"kind", item.Kind.String(),
		"error", err,
	)
}

// dispatch вызывает удаленную операцию, привязанную к виду мутации.
// Паника внутри привязки гасится и трактуется как неудача попытки.
func (p *Processor) dispatch(ctx context.Context, item *mutation.QueueItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Паника в удаленной операции",
				"item_id", item.ID,
				"kind", item.Kind.String(),
				"panic", r,
			)
			err = fmt.Errorf("внутренняя ошибка синхронизации: %v", r)
		}
	}()

	switch item.Kind {
	case mutation.KindCreateStat:
		return p.remote.CreateStats(ctx, item.Payload.Records)
	case mutation.KindCreateInvoice:
		return p.remote.CreateInvoices(ctx, item.Payload.Records)
	case mutation.KindUpdateInvoice:
		return p.remote.UpdateInvoice(ctx, item.Payload.ID, item.Payload.Updates)
	case mutation.KindUpdateStat:
		return p.remote.UpdateStat(ctx, item.Payload.ID, item.Payload.Updates)
	case mutation.KindDeleteInvoice:
		return p.remote.DeleteInvoice(ctx, item.Payload.ID)
	case mutation.KindDeleteStat:
		return p.remote.DeleteStat(ctx, item.Payload.ID)
	default:
		return fmt.Errorf("%w: %s", mutation.ErrUnknownKind, item.Kind)
	}
}

func (p *Processor) snapshot() []*mutation.QueueItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Snapshot()
}

func (p *Processor) removeItem(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.queue.Remove(id)
	if err := p.storage.DeleteItem(id); err != nil {
		p.log.Warn("Не удалось удалить элемент из хранилища", "item_id", id, "error", err)
	}
}

func (p *Processor) appendLog(item *mutation.QueueItem, message string) {
	entry := mutation.LogEntry{
		ID:        uuid.NewString(),
		ItemID:    item.ID,
		Kind:      item.Kind,
		Message:   message,
		Timestamp: p.now(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.logbook.Append(entry)
	if err := p.storage.AppendLog(entry); err != nil {
		p.log.Warn("Не удалось сохранить запись журнала", "error", err)
	}
}

func (p *Processor) processingPersisted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Processing
}

func (p *Processor) setProcessingState(processing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.Processing = processing
	if processing {
		p.state.ProcessingAt = p.now()
	}
	if err := p.stateStore.Save(p.state); err != nil {
		p.log.Warn("Не удалось сохранить состояние синхронизации", "error", err)
	}
}

func (p *Processor) updateStats(result *PassResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.TotalPasses++
	p.state.TotalSynced += result.Synced
	p.state.TotalConflicts += result.Conflicts
	p.state.TotalDropped += result.Dropped
	p.state.LastPass = result.EndTime

	if err := p.stateStore.Save(p.state); err != nil {
		p.log.Warn("Не удалось сохранить статистику синхронизации", "error", err)
	}
}

// QueueLen возвращает текущую длину очереди
func (p *Processor) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// QueueItems возвращает копию элементов очереди для просмотра
func (p *Processor) QueueItems() []*mutation.QueueItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Items()
}

// LogEntries возвращает копию журнала синхронизации
func (p *Processor) LogEntries() []mutation.LogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logbook.Entries()
}

// Stats возвращает копию накопленной статистики
func (p *Processor) Stats() SyncState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.state
}

// IsProcessing проверяет, идет ли проход
func (p *Processor) IsProcessing() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.isProcessing
}
