// cmd/client/cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"golang.org/x/exp/slog"
	"os"
	"path/filepath"

	"ledgerkeeper/cmd/client/cmd/invoice"
	"ledgerkeeper/cmd/client/cmd/stat"
	"ledgerkeeper/cmd/client/cmd/sync"
	"ledgerkeeper/internal/app/client"
	"ledgerkeeper/internal/app/client/config"
	"ledgerkeeper/internal/utils/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	cfg       *config.Config
	log       *slog.Logger
	app       *client.App
	debug     bool
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "ledgerkeeper",
	Short: "LedgerKeeper - офлайн-клиент учета счетов и показателей",
	Long: `LedgerKeeper — клиентское приложение для работы со счетами и
показателями без постоянного соединения с сервером.

Все изменения сначала попадают в локальную очередь мутаций и
отправляются на сервер, когда соединение доступно. Неудачные
отправки повторяются с нарастающей задержкой.`,
	PersistentPreRunE: setupApp,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	// Загружаем конфигурацию
	var err error
	cfg, err = loadConfig()
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	// Переопределяем настройки из флагов командной строки
	if serverURL != "" {
		cfg.ServerAddress = serverURL
	}
	if debug {
		cfg.Env = config.EnvLocal
		cfg.LogLevel = "debug"
	}

	// Настраиваем логгер
	log = logger.New(cfg.Env)

	// Создаем приложение
	app, err = client.New(cfg, log)
	if err != nil {
		return fmt.Errorf("ошибка инициализации приложения: %w", err)
	}

	// Передаем приложение подкомандам через контекст
	cmd.SetContext(context.WithValue(cmd.Context(), client.AppContextKey, app))

	return nil
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Ищем конфиг в стандартных местах
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}

		configDir := filepath.Join(home, ".ledgerkeeper")
		viper.AddConfigPath(configDir)
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Конфиг не найден, используем значения по умолчанию
	}

	// Загружаем конфигурацию через стандартный метод
	return config.MustLoad(), nil
}

func init() {
	cobra.OnInitialize()

	// Глобальные флаги
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "конфигурационный файл")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "включить отладочный режим")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "адрес сервера LedgerKeeper")

	rootCmd.AddCommand(invoice.InvoiceCmd)
	rootCmd.AddCommand(stat.StatCmd)
	rootCmd.AddCommand(sync.SyncCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(watchCmd)
}
