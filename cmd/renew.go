package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"token_renewer/internal/logger"
	"token_renewer/internal/usecase"
)

func newRenewCommand(configPath *string) *cobra.Command {
	var (
		all         bool
		withBrowser bool
	)

	cmd := &cobra.Command{
		Use:   "renew [account-id]",
		Short: "Renew one account, or every enabled account with --all, and exit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("pass either an account id or --all")
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RenewTimeout)
			defer cancel()

			a, err := buildApp(ctx, cfg, withBrowser)
			if err != nil {
				return err
			}
			defer a.close()

			var results []usecase.Result
			if all {
				results, err = a.control.RenewAll(ctx)
				if err != nil {
					return err
				}
			} else {
				if _, err := a.control.GetAccount(args[0]); err != nil {
					return err
				}
				results = append(results, a.control.RenewAccount(ctx, args[0]))
			}
			return printResults(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "renew every enabled account")
	cmd.Flags().BoolVar(&withBrowser, "browser", false, "inject renewed tokens into open browser tabs")
	return cmd
}

func printResults(w io.Writer, results []usecase.Result) error {
	failed := 0
	for _, r := range results {
		if r.Success {
			fmt.Fprintf(w, "%s\tok\n", r.AccountID)
			continue
		}
		failed++
		fmt.Fprintf(w, "%s\tfailed\t%s\n", r.AccountID, r.Error)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d renewals failed", failed, len(results))
	}
	return nil
}
