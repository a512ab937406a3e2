package client

import (
	"context"
	"errors"
	"time"

	"golang.org/x/exp/slog"

	"ledgerkeeper/internal/domain/mutation"
)

// MarkerFetcher запрашивает метку последнего изменения записи на сервере
type MarkerFetcher interface {
	FetchMarker(ctx context.Context, table, id string) (time.Time, error)
}

// ConflictDetector сравнивает серверную метку изменения записи
// с моментом локальной мутации
type ConflictDetector struct {
	remote MarkerFetcher
	log    *slog.Logger
}

func NewConflictDetector(remote MarkerFetcher, log *slog.Logger) *ConflictDetector {
	return &ConflictDetector{
		remote: remote,
		log:    log,
	}
}

// HasConflict сообщает, была ли запись изменена на сервере после origin.
// Конфликт есть только если серверная метка строго новее момента локальной
// мутации. Любая ошибка запроса трактуется как отсутствие конфликта:
// неоднозначная связность не должна навсегда блокировать мутацию.
func (d *ConflictDetector) HasConflict(ctx context.Context, kind mutation.Kind, id string, origin time.Time) bool {
	if !kind.IsUpdate() {
		return false
	}

	marker, err := d.remote.FetchMarker(ctx, kind.Table(), id)
	if err != nil {
		if !errors.Is(err, ErrMarkerNotFound) {
			d.log.Debug("Не удалось получить метку записи, считаем что конфликта нет",
				"table", kind.Table(),
				"record_id", id,
				"error", err,
			)
		}
		return false
	}

	return marker.After(origin)
}
