package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/catalog-module/internal/config"
	"github.com/bigkaa/goartstore/catalog-module/internal/database"
	"github.com/bigkaa/goartstore/catalog-module/internal/marc"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Утилита обслуживания Catalog Module",
		Version:       config.Version,
		SilenceUsage:  true,
	}
	root.AddCommand(newMARCCmd(), newMigrateCmd())
	return root
}

func newMARCCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "marc",
		Short: "Преобразование библиографических записей",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "encode [файл]",
		Short: "JSON-запись → строковый формат (без файла читается stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			var rec marc.Record
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("некорректный JSON записи: %w", err)
			}
			text, err := marc.Encode(rec)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "decode [файл]",
		Short: "Строковый формат → JSON-запись (без файла читается stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			rec, err := marc.Decode(string(data))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(rec)
		},
	})

	return cmd
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Миграции БД (параметры подключения из переменных CM_DB_*)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Применить все миграции",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return database.Migrate(cfg, config.SetupLogger(cfg))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Откатить все миграции",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return database.Rollback(cfg, config.SetupLogger(cfg))
		},
	})

	return cmd
}

// readInput читает файл из аргумента или stdin команды.
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", args[0], err)
	}
	return data, nil
}
