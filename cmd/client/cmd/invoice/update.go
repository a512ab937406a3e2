// cmd/client/cmd/invoice/update.go
package invoice

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ledgerkeeper/internal/app/client"
	"ledgerkeeper/internal/domain/mutation"
)

var updateData string

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Обновить счет",
	Long: `Постановка обновления счета в очередь на отправку.

Изменяемые поля передаются JSON-объектом:
  ledgerkeeper invoice update inv-42 --data '{"amount":2000}'

Если к моменту отправки счет окажется изменен на сервере позже,
чем создана эта операция, локальное обновление будет отброшено.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := client.FromContext(cmd.Context())
		if app == nil {
			return fmt.Errorf("приложение не инициализировано")
		}

		if updateData == "" {
			return fmt.Errorf("укажите изменяемые поля через --data")
		}

		var updates map[string]json.RawMessage
		if err := json.Unmarshal([]byte(updateData), &updates); err != nil {
			return fmt.Errorf("ожидается JSON-объект с полями: %w", err)
		}
		if len(updates) == 0 {
			return fmt.Errorf("нет изменяемых полей")
		}

		item, err := app.Enqueue(mutation.KindUpdateInvoice, mutation.Payload{
			ID:      args[0],
			Updates: json.RawMessage(updateData),
		})
		if err != nil {
			return fmt.Errorf("ошибка постановки в очередь: %w", err)
		}

		color.Green("✅ Операция поставлена в очередь: %s", item.ID)
		return nil
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateData, "data", "", "изменяемые поля в формате JSON-объекта")

	InvoiceCmd.AddCommand(updateCmd)
}
