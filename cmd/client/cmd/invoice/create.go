// cmd/client/cmd/invoice/create.go
package invoice

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ledgerkeeper/internal/app/client"
	"ledgerkeeper/internal/domain/mutation"
)

var (
	createData string
	createFile string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Создать счета",
	Long: `Постановка новых счетов в очередь на отправку.

Данные передаются как JSON-массив записей через --data или --file:
  ledgerkeeper invoice create --data '[{"amount":1500,"customer":"ООО Ромашка"}]'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := client.FromContext(cmd.Context())
		if app == nil {
			return fmt.Errorf("приложение не инициализировано")
		}

		records, err := readRecords(createData, createFile)
		if err != nil {
			return err
		}

		item, err := app.Enqueue(mutation.KindCreateInvoice, mutation.Payload{
			Records: records,
		})
		if err != nil {
			return fmt.Errorf("ошибка постановки в очередь: %w", err)
		}

		color.Green("✅ Операция поставлена в очередь: %s", item.ID)
		return nil
	},
}

// readRecords читает массив записей из флага или файла
func readRecords(data, file string) (json.RawMessage, error) {
	var raw []byte

	switch {
	case data != "":
		raw = []byte(data)
	case file != "":
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения файла: %w", err)
		}
		raw = content
	default:
		return nil, fmt.Errorf("укажите данные через --data или --file")
	}

	// Принимаем только массив: операция создания пакетная
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("ожидается JSON-массив записей: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("массив записей пуст")
	}

	return json.RawMessage(raw), nil
}

func init() {
	createCmd.Flags().StringVar(&createData, "data", "", "записи в формате JSON-массива")
	createCmd.Flags().StringVar(&createFile, "file", "", "путь к файлу с JSON-массивом записей")

	InvoiceCmd.AddCommand(createCmd)
}
