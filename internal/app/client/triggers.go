// internal/app/client/triggers.go
package client

import (
	"context"
	"errors"
	"time"

	"golang.org/x/exp/slog"
)

// syncRequest запрос на проход синхронизации от одного из источников
type syncRequest struct {
	force  bool
	source string
}

// Triggers сводит все источники запуска синхронизации к одному
// охраняемому входу процессора: наблюдатель соединения, периодический
// таймер, Wake и ручной SyncNow. Лишние запросы схлопываются —
// воркер один, а гард процессора не допускает перекрытия проходов.
type Triggers struct {
	processor     *Processor
	remote        Remote
	log           *slog.Logger
	syncInterval  time.Duration
	probeInterval time.Duration

	requests chan syncRequest
}

// NewTriggers создает поверхность запуска синхронизации
func NewTriggers(processor *Processor, remote Remote, log *slog.Logger, syncInterval, probeInterval time.Duration) *Triggers {
	return &Triggers{
		processor:     processor,
		remote:        remote,
		log:           log,
		syncInterval:  syncInterval,
		probeInterval: probeInterval,
		requests:      make(chan syncRequest, 1),
	}
}

// Run запускает воркер и фоновые источники, блокируется до отмены
// контекста. Воркер единственный: сколько бы источников ни послали
// запрос, проходы выполняются строго по одному.
func (t *Triggers) Run(ctx context.Context) {
	go t.watchConnectivity(ctx)
	go t.runTicker(ctx)

	t.log.Info("Поверхность синхронизации запущена",
		"sync_interval", t.syncInterval,
		"probe_interval", t.probeInterval,
	)

	for {
		select {
		case <-ctx.Done():
			t.log.Info("Поверхность синхронизации остановлена")
			return
		case req := <-t.requests:
			t.runPass(ctx, req)
		}
	}
}

// Wake будит воркер: аналог внешнего сигнала "пора синхронизироваться".
// Если запрос уже стоит в канале, новый не добавляется.
func (t *Triggers) Wake() {
	t.submit(syncRequest{source: "wake"})
}

// SyncNow ручной запуск. Выполняется синхронно, минуя воркер:
// пользователь ждет результат, а гард процессора все равно не даст
// двум проходам пересечься. При недоступном сервере отказ немедленный.
func (t *Triggers) SyncNow(ctx context.Context, force bool) (*PassResult, error) {
	result, err := t.processor.Process(ctx, force)
	if errors.Is(err, ErrProcessing) {
		t.log.Debug("Ручной запуск отклонен: проход уже идет")
	}
	return result, err
}

// submit ставит запрос в канал без блокировки. Переполнение означает,
// что воркер и так будет разбужен — запрос можно отбросить.
func (t *Triggers) submit(req syncRequest) {
	select {
	case t.requests <- req:
	default:
		t.log.Debug("Запрос синхронизации схлопнут", "source", req.source)
	}
}

// runPass выполняет один проход по запросу воркера
func (t *Triggers) runPass(ctx context.Context, req syncRequest) {
	result, err := t.processor.Process(ctx, req.force)
	switch {
	case errors.Is(err, ErrProcessing):
		t.log.Debug("Проход пропущен: предыдущий еще не завершен", "source", req.source)
	case errors.Is(err, ErrOffline):
		t.log.Debug("Проход пропущен: сервер недоступен", "source", req.source)
	case err != nil:
		t.log.Error("Ошибка прохода синхронизации", "source", req.source, "error", err)
	case result != nil && result.Synced+result.Failed+result.Dropped+result.Conflicts > 0:
		t.log.Debug("Проход завершен",
			"source", req.source,
			"synced", result.Synced,
			"failed", result.Failed,
		)
	}
}

// watchConnectivity опрашивает сервер и будит воркер при переходе
// из офлайна в онлайн, если в очереди есть мутации
func (t *Triggers) watchConnectivity(ctx context.Context) {
	ticker := time.NewTicker(t.probeInterval)
	defer ticker.Stop()

	online := t.probe(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			was := online
			online = t.probe(ctx)

			if !was && online {
				t.log.Info("Соединение с сервером восстановлено")
				if t.processor.QueueLen() > 0 {
					t.submit(syncRequest{source: "connectivity"})
				}
			}
		}
	}
}

// runTicker периодический источник: пока очередь не пуста, будит
// воркер на каждом тике. Регистрация таймера лучшей попыткой —
// отказа здесь быть не может, но сам запуск прохода может ничего
// не сделать, и это нормально.
func (t *Triggers) runTicker(ctx context.Context) {
	ticker := time.NewTicker(t.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.processor.QueueLen() > 0 {
				t.submit(syncRequest{source: "interval"})
			}
		}
	}
}

// probe одиночная проверка доступности сервера
func (t *Triggers) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return t.remote.Ping(probeCtx) == nil
}
