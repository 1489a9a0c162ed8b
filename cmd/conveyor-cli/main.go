// Conveyor CLI — создание графов и управление node.
//
// Использование:
//
//	conveyor [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	dag       Создание, остановка и удаление графов
//	model     Подключение и запуск моделей
//	node      Остановка и удаление node
//	dispatch  Прямая отправка node на машину
//	project   Управление проектами
//	migrate   Применение схемы БД
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/cli"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var jsonOutput bool
	var settings *config.Config

	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor CLI — distributed pipeline orchestrator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			settings = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	envFn := func() *cli.Env {
		return cli.NewEnv(settings, telemetry.SetupLoggerTo(os.Stderr, "conveyor-cli"))
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewDagCmd(envFn, outputFn),
		cli.NewModelCmd(envFn, outputFn),
		cli.NewNodeCmd(envFn, outputFn),
		cli.NewDispatchCmd(envFn, outputFn),
		cli.NewProjectCmd(envFn, outputFn),
		cli.NewMigrateCmd(envFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
