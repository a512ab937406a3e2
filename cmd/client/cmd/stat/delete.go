// cmd/client/cmd/stat/delete.go
package stat

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ledgerkeeper/internal/app/client"
	"ledgerkeeper/internal/domain/mutation"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Удалить показатель",
	Long:  `Постановка удаления показателя в очередь на отправку.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := client.FromContext(cmd.Context())
		if app == nil {
			return fmt.Errorf("приложение не инициализировано")
		}

		item, err := app.Enqueue(mutation.KindDeleteStat, mutation.Payload{
			ID: args[0],
		})
		if err != nil {
			return fmt.Errorf("ошибка постановки в очередь: %w", err)
		}

		color.Green("✅ Операция поставлена в очередь: %s", item.ID)
		return nil
	},
}

func init() {
	StatCmd.AddCommand(deleteCmd)
}
