package stat

import (
	"github.com/spf13/cobra"
)

// StatCmd - родительская команда для операций с показателями
var StatCmd = &cobra.Command{
	Use:   "stat",
	Short: "Управление показателями",
	Long: `Создание, обновление и удаление показателей.

Операции не требуют соединения с сервером: изменение попадает в
локальную очередь и будет отправлено при ближайшей синхронизации.`,
}
