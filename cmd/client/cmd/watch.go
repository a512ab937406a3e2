// cmd/client/cmd/watch.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Фоновый режим синхронизации",
	Long: `Запуск клиента в фоновом режиме.

Клиент следит за соединением с сервером и периодически отправляет
накопленные мутации: при восстановлении соединения, по таймеру и по
внешнему сигналу. Завершается по Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Фоновый режим запущен, Ctrl+C для выхода")

		if err := app.Run(); err != nil {
			return fmt.Errorf("ошибка фонового режима: %w", err)
		}

		app.Shutdown()
		return nil
	},
}
