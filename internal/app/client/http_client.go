package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/exp/slog"

	"ledgerkeeper/internal/app/client/config"
)

// ErrMarkerNotFound запись не найдена на сервере при запросе метки изменения
var ErrMarkerNotFound = errors.New("record marker not found")

// Remote - удаленные операции сервера, по одной на вид мутации,
// плюс запрос метки изменения записи и проверка доступности
type Remote interface {
	CreateStats(ctx context.Context, records json.RawMessage) error
	CreateInvoices(ctx context.Context, records json.RawMessage) error
	UpdateInvoice(ctx context.Context, id string, updates json.RawMessage) error
	UpdateStat(ctx context.Context, id string, updates json.RawMessage) error
	DeleteInvoice(ctx context.Context, id string) error
	DeleteStat(ctx context.Context, id string) error
	FetchMarker(ctx context.Context, table, id string) (time.Time, error)
	Ping(ctx context.Context) error
}

type httpClient struct {
	client    *http.Client
	config    *config.Config
	log       *slog.Logger
	baseURL   string
	userAgent string
}

func NewHTTPClient(cfg *config.Config, log *slog.Logger) (*httpClient, error) {
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			DisableCompression:  false,
			DisableKeepAlives:   false,
			MaxIdleConnsPerHost: 10,
		},
	}

	// Определяем протокол
	scheme := "http://"
	if cfg.EnableTLS {
		scheme = "https://"
	}
	baseURL := scheme + cfg.ServerAddress

	return &httpClient{
		client:    client,
		config:    cfg,
		log:       log,
		baseURL:   baseURL,
		userAgent: "LedgerKeeper-Client/1.0",
	}, nil
}

// Ping проверяет доступность сервера
func (h *httpClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", h.baseURL+"/api/v1/health", nil)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}

	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("сервер недоступен: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("сервер вернул статус: %d", resp.StatusCode)
	}

	return nil
}

// CreateStats создает пакет записей статистики на сервере
func (h *httpClient) CreateStats(ctx context.Context, records json.RawMessage) error {
	resp, err := h.doRequest(ctx, "POST", "/api/v1/stats/bulk", records)
	if err != nil {
		return err
	}

	return h.parseResponse(resp, nil)
}

// CreateInvoices создает пакет счетов на сервере
func (h *httpClient) CreateInvoices(ctx context.Context, records json.RawMessage) error {
	resp, err := h.doRequest(ctx, "POST", "/api/v1/invoices/bulk", records)
	if err != nil {
		return err
	}

	return h.parseResponse(resp, nil)
}

// UpdateInvoice обновляет счет на сервере
func (h *httpClient) UpdateInvoice(ctx context.Context, id string, updates json.RawMessage) error {
	resp, err := h.doRequest(ctx, "PUT", "/api/v1/invoices/"+id, updates)
	if err != nil {
		return err
	}

	return h.parseResponse(resp, nil)
}

// UpdateStat обновляет запись статистики на сервере
func (h *httpClient) UpdateStat(ctx context.Context, id string, updates json.RawMessage) error {
	resp, err := h.doRequest(ctx, "PUT", "/api/v1/stats/"+id, updates)
	if err != nil {
		return err
	}

	return h.parseResponse(resp, nil)
}

// DeleteInvoice удаляет счет на сервере. Удаление идемпотентно по id.
func (h *httpClient) DeleteInvoice(ctx context.Context, id string) error {
	resp, err := h.doRequest(ctx, "DELETE", "/api/v1/invoices/"+id, nil)
	if err != nil {
		return err
	}

	return h.parseResponse(resp, nil)
}

// DeleteStat удаляет запись статистики на сервере
func (h *httpClient) DeleteStat(ctx context.Context, id string) error {
	resp, err := h.doRequest(ctx, "DELETE", "/api/v1/stats/"+id, nil)
	if err != nil {
		return err
	}

	return h.parseResponse(resp, nil)
}

// FetchMarker запрашивает метку последнего изменения записи на сервере.
// Возвращает ErrMarkerNotFound, если записи нет.
func (h *httpClient) FetchMarker(ctx context.Context, table, id string) (time.Time, error) {
	resp, err := h.doRequest(ctx, "GET", "/api/v1/"+table+"/"+id+"/meta", nil)
	if err != nil {
		return time.Time{}, err
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return time.Time{}, ErrMarkerNotFound
	}

	var markerResp struct {
		UpdatedAt time.Time `json:"updated_at"`
	}

	if err := h.parseResponse(resp, &markerResp); err != nil {
		return time.Time{}, err
	}

	return markerResp.UpdatedAt, nil
}

func (h *httpClient) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ошибка маршалинга тела запроса: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}

	// Добавляем заголовки
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", h.userAgent)

	h.log.Debug("Отправка запроса",
		"method", method,
		"url", req.URL.String(),
	)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}

	return resp, nil
}

func (h *httpClient) parseResponse(resp *http.Response, result interface{}) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	h.log.Debug("Получен ответ",
		"status", resp.StatusCode,
	)

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("ошибка сервера: %s", errResp.Error)
		}
		return fmt.Errorf("ошибка сервера: статус %d", resp.StatusCode)
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("ошибка парсинга ответа: %w", err)
		}
	}

	return nil
}
