package mutation

import "time"

const (
	// MaxRetries число неудачных попыток, после которого элемент
	// удаляется из очереди без успеха
	MaxRetries = 5

	// BaseDelay базовая задержка экспоненциального отката
	BaseDelay = 2 * time.Second

	// BackoffCap показатель, на котором задержка насыщается
	// (2s * 2^6 = 128s)
	BackoffCap = 6
)

// BackoffDelay возвращает обязательную паузу перед следующей попыткой.
// Чистая функция: BaseDelay * 2^min(retryCount, BackoffCap).
func BackoffDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	exp := retryCount
	if exp > BackoffCap {
		exp = BackoffCap
	}
	return BaseDelay * (1 << uint(exp))
}

// Eligible сообщает, пора ли повторять попытку для элемента.
// Элемент без попыток или без счетчика ошибок готов всегда.
func Eligible(item *QueueItem, now time.Time) bool {
	if item.RetryCount == 0 || item.LastAttempt == nil {
		return true
	}
	return now.Sub(*item.LastAttempt) >= BackoffDelay(item.RetryCount)
}
