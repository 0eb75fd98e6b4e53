package cli

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/grasp-labs/ds-keyproxy-go-sdk/keyproxy"
)

const SecretCmdExample = `# Store a secret, reading the value from stdin
printf '%s' "$DB_PASSWORD" | keyproxyctl secret create db-password --value-stdin

# Store a value held in AWS SSM
keyproxyctl secret create api-key --value ssm:/acme/api-key

# List and fetch
keyproxyctl secret list
keyproxyctl secret get db-password`

func newSecretCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "secret",
		Short:   "Create, list and fetch secrets",
		Example: SecretCmdExample,
	}
	cmd.AddCommand(newSecretCreateCmd(a), newSecretListCmd(a), newSecretGetCmd(a))
	return cmd
}

func newSecretCreateCmd(a *app) *cobra.Command {
	var (
		email, value string
		valueStdin         bool
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Store a new secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.gate(keyproxy.ViewAddSecret); err != nil {
				return err
			}
			acct, err := a.email(email)
			if err != nil {
				return err
			}
			switch {
			case valueStdin && value != "":
				return errors.New("--value and --value-stdin are mutually exclusive")
			case valueStdin:
				if value, err = a.prompt.All(); err != nil {
					return err
				}
			}
			if value, err = a.resolve(cmd.Context(), value); err != nil {
				return err
			}
			if err := a.client.CreateSecret(cmd.Context(), acct, args[0], value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Secret %q stored\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (default account.email)")
	cmd.Flags().StringVar(&value, "value", "", "secret value (or ssm:<parameter>)")
	cmd.Flags().BoolVar(&valueStdin, "value-stdin", false, "read the secret value from stdin")
	return cmd
}

func newSecretListCmd(a *app) *cobra.Command {
	var (
		email      string
		showValues bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the account's secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.gate(keyproxy.ViewDashboard); err != nil {
				return err
			}
			acct, err := a.email(email)
			if err != nil {
				return err
			}
			secrets, err := a.client.ListSecrets(cmd.Context(), acct)
			if err != nil {
				return err
			}
			if len(secrets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No secrets stored")
				return nil
			}
			rows := make([][]string, 0, len(secrets))
			for _, s := range secrets {
				v := mask(s.Value)
				if showValues {
					v = s.Value
				}
				rows = append(rows, []string{s.ID, s.Name, s.Type, v, s.CreatedAt, s.UpdatedAt})
			}
			return printTable(cmd.OutOrStdout(), []string{"ID", "NAME", "TYPE", "VALUE", "CREATED", "UPDATED"}, rows)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (default account.email)")
	cmd.Flags().BoolVar(&showValues, "show-values", false, "print secret values unmasked")
	return cmd
}

func newSecretGetCmd(a *app) *cobra.Command {
	var (
		email               string
		toClipboard, silent bool
	)
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Fetch one secret value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if silent && !toClipboard {
				return errors.New("--silent requires --clipboard")
			}
			tok, err := a.token()
			if err != nil {
				return err
			}
			acct, err := a.email(email)
			if err != nil {
				return err
			}
			v, err := a.client.FetchSecret(cmd.Context(), acct, args[0], tok)
			if err != nil {
				return err
			}
			if toClipboard {
				if err := clipboard.WriteAll(v); err != nil {
					return fmt.Errorf("copy to clipboard: %w", err)
				}
				if silent {
					return nil
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (default account.email)")
	cmd.Flags().BoolVarP(&toClipboard, "clipboard", "c", false, "copy the secret to the clipboard")
	cmd.Flags().BoolVar(&silent, "silent", false, "with --clipboard, do not print the secret")
	return cmd
}
