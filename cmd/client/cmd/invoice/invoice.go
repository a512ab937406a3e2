package invoice

import (
	"github.com/spf13/cobra"
)

// InvoiceCmd - родительская команда для операций со счетами
var InvoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Управление счетами",
	Long: `Создание, обновление и удаление счетов.

Операции не требуют соединения с сервером: изменение попадает в
локальную очередь и будет отправлено при ближайшей синхронизации.`,
}
