// cmd/client/cmd/queue.go
package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ledgerkeeper/internal/domain/mutation"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Показать очередь мутаций",
	Long: `Список операций, ожидающих отправки на сервер.

Для каждой операции выводится вид, число неудачных попыток и момент,
когда она снова станет доступной для отправки.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		items := app.QueueItems()

		if len(items) == 0 {
			fmt.Println("Очередь пуста")
			return nil
		}

		fmt.Printf("Операций в очереди: %d\n\n", len(items))
		now := time.Now()

		for i, item := range items {
			fmt.Printf("%d. %s  %s\n", i+1, color.CyanString("%s", item.Kind), item.ID)
			if item.Payload.ID != "" {
				fmt.Printf("   запись: %s\n", item.Payload.ID)
			}
			fmt.Printf("   создана: %s\n", item.Timestamp.Format("2006-01-02 15:04:05"))

			if item.RetryCount == 0 {
				fmt.Println("   попыток: 0, готова к отправке")
				continue
			}

			if item.RetryCount >= mutation.MaxRetries {
				color.Red("   попыток: %d, будет отброшена при следующем проходе", item.RetryCount)
				continue
			}

			line := fmt.Sprintf("   попыток: %d", item.RetryCount)
			if item.LastAttempt != nil {
				eligible := item.LastAttempt.Add(mutation.BackoffDelay(item.RetryCount))
				if eligible.After(now) {
					line += fmt.Sprintf(", следующая через %v", eligible.Sub(now).Round(time.Second))
				} else {
					line += ", готова к отправке"
				}
			}
			fmt.Println(line)
		}

		return nil
	},
}
