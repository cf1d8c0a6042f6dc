package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"token_renewer/internal/logger"
	"token_renewer/internal/usecase"
)

func newImportCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Add accounts from an exported JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configs, err := readAccountFile(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Close()

			a, err := buildApp(context.Background(), cfg, false)
			if err != nil {
				return err
			}
			defer a.close()

			added, err := a.manager.Import(configs)
			if err != nil {
				return err
			}
			if added > 0 {
				a.activity.Info("", fmt.Sprintf("imported %d accounts", added))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d accounts\n", added, len(configs))
			return nil
		},
	}
}

func newExportCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file.json]",
		Short: "Write the account configuration as JSON to a file or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Close()

			a, err := buildApp(context.Background(), cfg, false)
			if err != nil {
				return err
			}
			defer a.close()

			configs, err := a.control.ExportAccounts()
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(configs, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode accounts: %w", err)
			}
			data = append(data, '\n')

			if len(args) == 0 {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(args[0], data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d accounts to %s\n", len(configs), args[0])
			return nil
		},
	}
}

func readAccountFile(path string) ([]usecase.AccountConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var configs []usecase.AccountConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return configs, nil
}
