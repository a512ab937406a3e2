package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ledgerkeeper/internal/app/client"
	"ledgerkeeper/internal/domain/mutation"
)

var (
	forceSync  bool
	syncStatus bool
	showLog    bool
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Управление синхронизацией",
	Long: `Отправка накопленных локальных изменений на сервер.

Команда запускает один проход по очереди мутаций, показывает статус
очереди или журнал синхронизации.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := client.FromContext(cmd.Context())
		if app == nil {
			return fmt.Errorf("приложение не инициализировано")
		}

		if syncStatus {
			return showSyncStatus(app)
		}

		if showLog {
			return showSyncLog(app)
		}

		return runSync(cmd.Context(), app, forceSync)
	},
}

func runSync(ctx context.Context, app *client.App, force bool) error {
	fmt.Println("=== Синхронизация ===")

	if app.QueueLen() == 0 {
		fmt.Println("Очередь пуста, синхронизировать нечего")
		return nil
	}

	fmt.Printf("В очереди: %d операций\n", app.QueueLen())

	result, err := app.Sync(ctx, force)
	if err != nil {
		return fmt.Errorf("ошибка синхронизации: %w", err)
	}

	fmt.Println()
	fmt.Println("Проход завершен")
	fmt.Printf("Время выполнения: %v\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("Синхронизировано: %d\n", result.Synced)

	if result.Skipped > 0 {
		fmt.Printf("Отложено (окно повтора не истекло): %d\n", result.Skipped)
	}
	if result.Failed > 0 {
		fmt.Printf("Неудачных попыток: %d\n", result.Failed)
	}
	if result.Conflicts > 0 {
		fmt.Printf("Конфликтов (серверная версия новее): %d\n", result.Conflicts)
	}
	if result.Dropped > 0 {
		fmt.Printf("Отброшено после %d попыток: %d\n", mutation.MaxRetries, result.Dropped)
	}

	if remaining := app.QueueLen(); remaining > 0 {
		fmt.Printf("Осталось в очереди: %d\n", remaining)
	}

	return nil
}

func showSyncStatus(app *client.App) error {
	fmt.Println("=== Статус синхронизации ===")

	stats := app.SyncStats()

	fmt.Println("📊 Статистика:")
	fmt.Printf("  Всего проходов: %d\n", stats.TotalPasses)
	fmt.Printf("  Синхронизировано операций: %d\n", stats.TotalSynced)
	fmt.Printf("  Конфликтов: %d\n", stats.TotalConflicts)
	fmt.Printf("  Отброшено: %d\n", stats.TotalDropped)

	if !stats.LastPass.IsZero() {
		fmt.Printf("  Последний проход: %s\n",
			stats.LastPass.Format("2006-01-02 15:04:05"))
	}

	items := app.QueueItems()
	fmt.Printf("\n📦 Очередь: %d операций\n", len(items))
	now := time.Now()
	for _, item := range items {
		line := fmt.Sprintf("  • %s  попыток: %d", item.Kind, item.RetryCount)
		if item.RetryCount > 0 && item.LastAttempt != nil {
			eligible := item.LastAttempt.Add(mutation.BackoffDelay(item.RetryCount))
			if eligible.After(now) {
				line += fmt.Sprintf("  следующая: через %v", eligible.Sub(now).Round(time.Second))
			} else {
				line += "  готова к отправке"
			}
		}
		fmt.Println(line)
	}

	fmt.Printf("\n🌐 Соединение с сервером: ")
	if err := app.CheckConnection(); err != nil {
		color.Red("недоступен: %v", err)
	} else {
		color.Green("OK")
	}

	return nil
}

func showSyncLog(app *client.App) error {
	entries := app.SyncLog()

	fmt.Println("=== Журнал синхронизации ===")
	if len(entries) == 0 {
		fmt.Println("Журнал пуст")
		return nil
	}

	for _, entry := range entries {
		stamp := entry.Timestamp.Format("2006-01-02 15:04:05")
		fmt.Printf("%s  %s  %s\n",
			stamp,
			color.CyanString("%s", entry.Kind),
			entry.Message,
		)
	}

	return nil
}

func init() {
	SyncCmd.Flags().BoolVarP(&forceSync, "force", "f", false, "запустить немедленно, без ожидания окна повтора")
	SyncCmd.Flags().BoolVar(&syncStatus, "status", false, "показать статус очереди и статистику")
	SyncCmd.Flags().BoolVar(&showLog, "log", false, "показать журнал синхронизации")
}
