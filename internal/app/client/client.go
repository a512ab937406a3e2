package client

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	gosync "sync"
	"syscall"
	"time"

	"golang.org/x/exp/slog"

	"ledgerkeeper/internal/app/client/config"
	"ledgerkeeper/internal/domain/mutation"
)

type ctxKey string

// AppContextKey ключ контекста, под которым команды находят приложение
const AppContextKey ctxKey = "app"

// FromContext достает приложение из контекста команды
func FromContext(ctx context.Context) *App {
	app, _ := ctx.Value(AppContextKey).(*App)
	return app
}

// App клиентское приложение: конфигурация, хранилище очереди,
// HTTP клиент, процессор синхронизации и поверхность запуска
type App struct {
	config    *config.Config
	log       *slog.Logger
	remote    Remote
	storage   Storage
	processor *Processor
	triggers  *Triggers
	wg        gosync.WaitGroup
	cancel    context.CancelFunc
}

func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	httpCl, err := NewHTTPClient(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации HTTP клиента: %w", err)
	}

	// Инициализируем локальное хранилище (используем SQLite)
	var storage Storage
	sqliteStorage, err := NewSQLiteStorage(cfg.DataPath, cfg.SyncLogCap)
	if err != nil {
		log.Warn("Не удалось инициализировать SQLite, используем память", "error", err)
		storage = NewMemoryStorage()
	} else {
		storage = sqliteStorage
	}

	online := func(ctx context.Context) bool {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return httpCl.Ping(probeCtx) == nil
	}

	processor, err := NewProcessor(
		storage,
		NewFileStateStore(cfg.StatePath),
		httpCl,
		NewConsoleNotifier(),
		online,
		log,
		cfg.SyncLogCap,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации процессора: %w", err)
	}

	app := &App{
		config:    cfg,
		log:       log,
		remote:    httpCl,
		storage:   storage,
		processor: processor,
	}

	app.triggers = NewTriggers(
		processor,
		httpCl,
		log,
		time.Duration(cfg.SyncInterval)*time.Second,
		time.Duration(cfg.ProbeInterval)*time.Second,
	)

	return app, nil
}

// Run запускает фоновый режим: воркер синхронизации и источники
// запуска. Блокируется до сигнала завершения.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.handleSignals()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.triggers.Run(ctx)
	}()

	a.log.Info("Клиент запущен",
		"server", a.config.ServerAddress,
		"env", a.config.Env,
		"queue", a.processor.QueueLen(),
	)

	// Стартовый толчок: если после перезапуска очередь не пуста,
	// нет смысла ждать первого тика
	if a.processor.QueueLen() > 0 {
		a.triggers.Wake()
	}

	a.wg.Wait()
	return nil
}

func (a *App) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-sigChan
	a.log.Info("Получен сигнал завершения", "signal", sig.String())

	if a.cancel != nil {
		a.cancel()
	}
}

func (a *App) Shutdown() {
	a.log.Info("Завершение работы клиента...")

	if a.cancel != nil {
		a.cancel()
	}

	a.wg.Wait()

	if err := a.storage.Close(); err != nil {
		a.log.Warn("Не удалось закрыть хранилище", "error", err)
	}

	a.log.Info("Клиент завершил работу")
}

// CheckConnection проверяет соединение с сервером
func (a *App) CheckConnection() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return a.remote.Ping(ctx)
}

// Enqueue ставит мутацию в очередь. Запись всегда проходит через
// очередь, даже при доступном сервере; отправкой занимается процессор.
func (a *App) Enqueue(kind mutation.Kind, payload mutation.Payload) (*mutation.QueueItem, error) {
	item, err := a.processor.Enqueue(kind, payload)
	if err != nil {
		return nil, err
	}

	// Будим воркер лучшей попыткой; вне фонового режима канал
	// никто не читает, и запрос просто останется до Run
	a.triggers.Wake()

	return item, nil
}

// Sync запускает проход синхронизации вручную
func (a *App) Sync(ctx context.Context, force bool) (*PassResult, error) {
	return a.triggers.SyncNow(ctx, force)
}

// QueueItems возвращает текущие элементы очереди
func (a *App) QueueItems() []*mutation.QueueItem {
	return a.processor.QueueItems()
}

// QueueLen возвращает длину очереди
func (a *App) QueueLen() int {
	return a.processor.QueueLen()
}

// SyncLog возвращает журнал синхронизации
func (a *App) SyncLog() []mutation.LogEntry {
	return a.processor.LogEntries()
}

// SyncStats возвращает накопленную статистику синхронизации
func (a *App) SyncStats() SyncState {
	return a.processor.Stats()
}
