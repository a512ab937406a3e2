package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"ledgerkeeper/internal/domain/mutation"
)

// fakeRemote записывает вызовы удаленных операций и позволяет
// управлять их исходом из теста
type fakeRemote struct {
	mu        sync.Mutex
	calls     []string
	failWith  error
	marker    time.Time
	markerErr error
	pingErr   error
	block     chan struct{}
}

func (r *fakeRemote) record(call string) error {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	failWith := r.failWith
	block := r.block
	r.mu.Unlock()

	if block != nil {
		<-block
	}
	return failWith
}

func (r *fakeRemote) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *fakeRemote) CreateStats(ctx context.Context, records json.RawMessage) error {
	return r.record("create_stats")
}

func (r *fakeRemote) CreateInvoices(ctx context.Context, records json.RawMessage) error {
	return r.record("create_invoices")
}

func (r *fakeRemote) UpdateInvoice(ctx context.Context, id string, updates json.RawMessage) error {
	return r.record("update_invoice:" + id)
}

func (r *fakeRemote) UpdateStat(ctx context.Context, id string, updates json.RawMessage) error {
	return r.record("update_stat:" + id)
}

func (r *fakeRemote) DeleteInvoice(ctx context.Context, id string) error {
	return r.record("delete_invoice:" + id)
}

func (r *fakeRemote) DeleteStat(ctx context.Context, id string) error {
	return r.record("delete_stat:" + id)
}

func (r *fakeRemote) FetchMarker(ctx context.Context, table, id string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "fetch_marker:"+table+"/"+id)
	return r.marker, r.markerErr
}

func (r *fakeRemote) Ping(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pingErr
}

// recordNotifier копит агрегированные уведомления
type recordNotifier struct {
	mu      sync.Mutex
	synced  []int
	dropped []int
	offline []string
}

func (n *recordNotifier) SyncedOK(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.synced = append(n.synced, count)
}

func (n *recordNotifier) Dropped(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropped = append(n.dropped, count)
}

func (n *recordNotifier) Offline(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = append(n.offline, message)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	processor *Processor
	remote    *fakeRemote
	notifier  *recordNotifier
	storage   *MemoryStorage
	online    bool
	now       time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		remote:   &fakeRemote{},
		notifier: &recordNotifier{},
		storage:  NewMemoryStorage(),
		online:   true,
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	p, err := NewProcessor(
		env.storage,
		NewMemStateStore(),
		env.remote,
		env.notifier,
		func(ctx context.Context) bool { return env.online },
		testLogger(),
		mutation.DefaultLogCap,
	)
	require.NoError(t, err)

	p.now = func() time.Time { return env.now }
	env.processor = p
	return env
}

func (e *testEnv) enqueue(t *testing.T, kind mutation.Kind, id string) *mutation.QueueItem {
	t.Helper()

	item, err := e.processor.Enqueue(kind, mutation.Payload{
		ID:      id,
		Records: json.RawMessage(`[{"amount":100}]`),
		Updates: json.RawMessage(`{"amount":200}`),
	})
	require.NoError(t, err)
	return item
}

func TestProcessorEnqueue(t *testing.T) {
	env := newTestEnv(t)

	item := env.enqueue(t, mutation.KindCreateInvoice, "")

	assert.NotEmpty(t, item.ID)
	assert.Equal(t, 0, item.RetryCount)
	assert.Nil(t, item.LastAttempt)
	assert.Equal(t, env.now, item.Timestamp)
	assert.Equal(t, 1, env.processor.QueueLen())

	// Элемент сразу попадает в долговременное хранилище
	stored, err := env.storage.LoadQueue()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, item.ID, stored[0].ID)
}

func TestProcessorOfflineEnqueueThenSync(t *testing.T) {
	env := newTestEnv(t)
	env.online = false

	env.enqueue(t, mutation.KindCreateInvoice, "")
	env.enqueue(t, mutation.KindCreateStat, "")

	// Офлайн без force: тихий no-op, к серверу не ходим
	result, err := env.processor.Process(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Synced)
	assert.Equal(t, 0, env.remote.callCount())
	assert.Equal(t, 2, env.processor.QueueLen())

	// Соединение восстановлено: очередь уходит целиком, по порядку
	env.online = true
	result, err = env.processor.Process(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, 0, env.processor.QueueLen())
	assert.Equal(t, []string{"create_invoices", "create_stats"}, env.remote.calls)
	assert.Equal(t, []int{2}, env.notifier.synced)

	// Успешные отправки в журнал не попадают
	assert.Empty(t, env.processor.LogEntries())
}

func TestProcessorOfflineForceRejected(t *testing.T) {
	env := newTestEnv(t)
	env.online = false

	env.enqueue(t, mutation.KindDeleteStat, "s1")

	_, err := env.processor.Process(context.Background(), true)
	require.ErrorIs(t, err, ErrOffline)
	assert.Equal(t, 0, env.remote.callCount())
	assert.Equal(t, 1, env.processor.QueueLen())
	assert.Len(t, env.notifier.offline, 1)
}

func TestProcessorEmptyQueueNoop(t *testing.T) {
	env := newTestEnv(t)

	statsBefore := env.processor.Stats()

	for _, force := range []bool{false, true} {
		result, err := env.processor.Process(context.Background(), force)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Synced+result.Failed+result.Skipped+result.Dropped)
	}

	// Ни счетчиков, ни журнала, ни уведомлений
	assert.Equal(t, statsBefore.TotalPasses, env.processor.Stats().TotalPasses)
	assert.Empty(t, env.processor.LogEntries())
	assert.Empty(t, env.notifier.synced)
	assert.Equal(t, 0, env.remote.callCount())
}

func TestProcessorFailureBookkeeping(t *testing.T) {
	env := newTestEnv(t)
	env.remote.failWith = errors.New("network down")

	item := env.enqueue(t, mutation.KindCreateInvoice, "")

	result, err := env.processor.Process(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	// Элемент остался, счетчик и отметка попытки выставлены
	current, ok := env.processor.queue.Get(item.ID)
	require.True(t, ok)
	assert.Equal(t, 1, current.RetryCount)
	require.NotNil(t, current.LastAttempt)
	assert.Equal(t, env.now, *current.LastAttempt)

	// Сообщение об ошибке дословно попадает в журнал
	entries := env.processor.LogEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "network down", entries[0].Message)
	assert.Equal(t, item.ID, entries[0].ItemID)

	// Новое состояние ушло и в долговременное хранилище
	stored, err := env.storage.LoadQueue()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 1, stored[0].RetryCount)

	// Успехов не было — уведомления об успехе нет
	assert.Empty(t, env.notifier.synced)
}

func TestProcessorBackoffGate(t *testing.T) {
	env := newTestEnv(t)
	env.remote.failWith = errors.New("network down")

	item := env.enqueue(t, mutation.KindUpdateInvoice, "inv1")
	env.remote.markerErr = ErrMarkerNotFound

	_, err := env.processor.Process(context.Background(), false)
	require.NoError(t, err)
	callsAfterFail := env.remote.callCount()

	// Окно отката (4с при retryCount=1) не истекло: пропуск без вызовов
	env.now = env.now.Add(time.Second)
	result, err := env.processor.Process(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, callsAfterFail, env.remote.callCount())

	current, _ := env.processor.queue.Get(item.ID)
	assert.Equal(t, 1, current.RetryCount, "пропуск не считается попыткой")

	// Окно истекло: элемент снова обрабатывается
	env.remote.failWith = nil
	env.now = env.now.Add(mutation.BackoffDelay(1))
	result, err = env.processor.Process(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 0, env.processor.QueueLen())
}

func TestProcessorForceBypassesBackoff(t *testing.T) {
	env := newTestEnv(t)
	env.remote.failWith = errors.New("network down")
	env.remote.markerErr = ErrMarkerNotFound

	env.enqueue(t, mutation.KindUpdateStat, "st1")

	_, err := env.processor.Process(context.Background(), false)
	require.NoError(t, err)

	// Сразу же, без ожидания окна: force пробует снова
	env.remote.failWith = nil
	result, err := env.processor.Process(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 0, result.Skipped)
}

func TestProcessorDeadLetter(t *testing.T) {
	env := newTestEnv(t)

	item := env.enqueue(t, mutation.KindDeleteInvoice, "inv9")
	for i := 0; i < mutation.MaxRetries; i++ {
		require.NoError(t, env.processor.queue.IncrementRetry(item.ID))
	}

	result, err := env.processor.Process(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 0, env.processor.QueueLen())

	// Без единого обращения к серверу
	assert.Equal(t, 0, env.remote.callCount())

	entries := env.processor.LogEntries()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "отброшена после 5")

	assert.Equal(t, []int{1}, env.notifier.dropped)

	// force лимит попыток не обходит
	item2 := env.enqueue(t, mutation.KindDeleteInvoice, "inv10")
	for i := 0; i < mutation.MaxRetries; i++ {
		require.NoError(t, env.processor.queue.IncrementRetry(item2.ID))
	}
	result, err = env.processor.Process(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 0, env.remote.callCount())
}

func TestProcessorConflictDropsUpdate(t *testing.T) {
	env := newTestEnv(t)

	item := env.enqueue(t, mutation.KindUpdateInvoice, "inv1")
	env.remote.marker = env.now.Add(time.Minute) // сервер новее

	result, err := env.processor.Process(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t, 0, env.processor.QueueLen())

	// Удаленная операция не вызывалась, только запрос метки
	assert.Equal(t, []string{"fetch_marker:invoices/inv1"}, env.remote.calls)

	entries := env.processor.LogEntries()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "изменена на сервере")
	assert.Equal(t, item.ID, entries[0].ItemID)

	// Конфликт не считается неудачной попыткой
	assert.Equal(t, 0, result.Failed)
}

func TestProcessorConflictFailOpen(t *testing.T) {
	env := newTestEnv(t)

	env.enqueue(t, mutation.KindUpdateStat, "st1")
	env.remote.markerErr = errors.New("метка недоступна")

	// Ошибка проверки не блокирует мутацию: операция выполняется
	result, err := env.processor.Process(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 0, result.Conflicts)
}

func TestProcessorEqualMarkerNoConflict(t *testing.T) {
	env := newTestEnv(t)

	env.enqueue(t, mutation.KindUpdateInvoice, "inv1")
	env.remote.marker = env.now // ровно момент мутации, не строго новее

	result, err := env.processor.Process(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Conflicts)
	assert.Equal(t, 1, result.Synced)
}

func TestProcessorCreatesAndDeletesSkipConflictCheck(t *testing.T) {
	env := newTestEnv(t)

	env.enqueue(t, mutation.KindCreateInvoice, "")
	env.enqueue(t, mutation.KindDeleteStat, "st1")
	env.remote.marker = env.now.Add(time.Hour)

	result, err := env.processor.Process(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Synced)

	for _, call := range env.remote.calls {
		assert.NotContains(t, call, "fetch_marker")
	}
}

func TestProcessorSingleFlight(t *testing.T) {
	env := newTestEnv(t)
	env.remote.block = make(chan struct{})

	env.enqueue(t, mutation.KindCreateStat, "")

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := env.processor.Process(context.Background(), false)
		done <- err
	}()

	<-started
	// Дожидаемся, пока первый проход возьмет гард и повиснет на remote
	require.Eventually(t, env.processor.IsProcessing, time.Second, time.Millisecond)

	_, err := env.processor.Process(context.Background(), false)
	require.ErrorIs(t, err, ErrProcessing)

	close(env.remote.block)
	require.NoError(t, <-done)

	// Гард снят, повторный запуск возможен
	assert.False(t, env.processor.IsProcessing())
}

func TestProcessorPersistedFlagBlocksPass(t *testing.T) {
	env := newTestEnv(t)
	env.enqueue(t, mutation.KindCreateStat, "")

	env.processor.mu.Lock()
	env.processor.state.Processing = true
	env.processor.mu.Unlock()

	_, err := env.processor.Process(context.Background(), false)
	require.ErrorIs(t, err, ErrProcessing)
	assert.Equal(t, 0, env.remote.callCount())
}

func TestProcessorPanicInDispatchIsFailure(t *testing.T) {
	env := newTestEnv(t)

	panicky := &panicRemote{fakeRemote: env.remote}
	env.processor.remote = panicky
	env.processor.detector = NewConflictDetector(panicky, testLogger())

	item := env.enqueue(t, mutation.KindCreateInvoice, "")

	result, err := env.processor.Process(context.Background(), false)
	require.NoError(t, err, "паника элемента не роняет проход")
	assert.Equal(t, 1, result.Failed)

	current, ok := env.processor.queue.Get(item.ID)
	require.True(t, ok)
	assert.Equal(t, 1, current.RetryCount)

	entries := env.processor.LogEntries()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "внутренняя ошибка синхронизации")
}

type panicRemote struct {
	*fakeRemote
}

func (r *panicRemote) CreateInvoices(ctx context.Context, records json.RawMessage) error {
	panic("boom")
}

func TestProcessorMixedPass(t *testing.T) {
	env := newTestEnv(t)

	// Успех, конфликт и dead-letter в одном проходе
	env.enqueue(t, mutation.KindCreateStat, "")

	env.enqueue(t, mutation.KindUpdateInvoice, "inv1")
	env.remote.marker = env.now.Add(time.Minute)

	dead := env.enqueue(t, mutation.KindDeleteStat, "st1")
	for i := 0; i < mutation.MaxRetries; i++ {
		require.NoError(t, env.processor.queue.IncrementRetry(dead.ID))
	}

	result, err := env.processor.Process(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 0, env.processor.QueueLen())

	// Агрегированные уведомления: по одному на категорию
	assert.Equal(t, []int{1}, env.notifier.synced)
	assert.Equal(t, []int{1}, env.notifier.dropped)

	stats := env.processor.Stats()
	assert.Equal(t, 1, stats.TotalPasses)
	assert.Equal(t, 1, stats.TotalSynced)
	assert.Equal(t, 1, stats.TotalConflicts)
	assert.Equal(t, 1, stats.TotalDropped)
}

func TestProcessorRestoresQueueFromStorage(t *testing.T) {
	storage := NewMemoryStorage()
	stateStore := NewMemStateStore()
	remote := &fakeRemote{}

	attempt := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, storage.SaveItem(&mutation.QueueItem{
			ID:          fmt.Sprintf("item-%d", i),
			Kind:        mutation.KindCreateInvoice,
			Timestamp:   attempt,
			RetryCount:  i,
			LastAttempt: &attempt,
		}))
	}
	require.NoError(t, storage.AppendLog(mutation.LogEntry{
		ID:      "log-1",
		ItemID:  "item-0",
		Kind:    mutation.KindCreateInvoice,
		Message: "network down",
	}))

	p, err := NewProcessor(storage, stateStore, remote, nopNotifier{},
		func(ctx context.Context) bool { return true }, testLogger(), mutation.DefaultLogCap)
	require.NoError(t, err)

	assert.Equal(t, 3, p.QueueLen())
	items := p.QueueItems()
	assert.Equal(t, "item-0", items[0].ID)
	assert.Equal(t, 2, items[2].RetryCount)

	entries := p.LogEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "network down", entries[0].Message)
}
