package client

import (
	"github.com/fatih/color"
)

// Notifier - приемник агрегированных уведомлений о результатах синхронизации.
// Уведомления только суммарные, по элементам ничего не сообщается.
type Notifier interface {
	SyncedOK(count int)
	Dropped(count int)
	Offline(message string)
}

// ConsoleNotifier выводит уведомления в терминал
type ConsoleNotifier struct{}

func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{}
}

func (n *ConsoleNotifier) SyncedOK(count int) {
	color.Green("✅ Синхронизировано записей: %d", count)
}

func (n *ConsoleNotifier) Dropped(count int) {
	color.Red("❌ Отброшено после повторных неудач: %d", count)
}

func (n *ConsoleNotifier) Offline(message string) {
	color.Yellow("⚠️  %s", message)
}

// nopNotifier молчаливый приемник для фоновых режимов и тестов
type nopNotifier struct{}

func (nopNotifier) SyncedOK(int)   {}
func (nopNotifier) Dropped(int)    {}
func (nopNotifier) Offline(string) {}
