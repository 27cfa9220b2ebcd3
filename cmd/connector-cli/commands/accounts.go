package commands

import (
	"log/slog"
	"os"

	"instconnect/internal/connector"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(accountsCmd)
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Logs in and lists the accounts the institution shows.",
	Run: func(cmd *cobra.Command, args []string) {
		env := setup(cmd.Context())

		accounts, err := discoverAccounts(cmd, env)
		env.close()
		if err != nil {
			cerr := connector.AsError(err)
			slog.Error("failed to list accounts", "kind", cerr.Kind.String(), "err", cerr)
			os.Exit(1)
		}

		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Nickname", "Official name", "Type", "Mask", "Balance"})
		for _, account := range accounts {
			t.AppendRow(table.Row{
				account.Nickname,
				account.OfficialName,
				account.Type,
				account.Mask,
				account.CurrentBalance.StringFixed(2),
			})
		}
		t.AppendFooter(table.Row{"", "", "", "Count", len(accounts)})
		t.Render()
	},
}

// discoverAccounts only runs login and account discovery.
func discoverAccounts(cmd *cobra.Command, env environment) ([]connector.Account, error) {
	session, err := env.extractor.Login(cmd.Context(), env.config.creds)
	if err != nil {
		return nil, err
	}
	discovered, err := env.extractor.ExtractAccounts(cmd.Context(), session)
	if err != nil {
		return nil, err
	}

	accounts := make([]connector.Account, len(discovered))
	for i, account := range discovered {
		accounts[i] = account.Sanitize()
	}
	return accounts, nil
}
