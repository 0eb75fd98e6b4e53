package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/grasp-labs/ds-keyproxy-go-sdk/keyproxy"
)

func newKMSCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kms",
		Short: "Inspect the account's KMS configuration",
	}
	cmd.AddCommand(newKMSShowCmd(a), newKMSStatusCmd(a))
	return cmd
}

func newKMSShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored KMS provider and masked credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := a.token()
			if err != nil {
				return err
			}
			kms, err := a.client.GetKMS(cmd.Context(), tok)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "provider: %s\n", kms.Provider)
			keys := make([]string, 0, len(kms.Credentials))
			for k := range kms.Credentials {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			rows := make([][]string, 0, len(keys))
			for _, k := range keys {
				rows = append(rows, []string{k, mask(kms.Credentials[k])})
			}
			if len(rows) == 0 {
				return nil
			}
			return printTable(out, []string{"FIELD", "VALUE"}, rows)
		},
	}
}

func newKMSStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check that the stored AWS credentials reach KMS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tok, err := a.token()
			if err != nil {
				return err
			}
			kms, err := a.client.GetKMS(ctx, tok)
			if err != nil {
				return err
			}
			creds, ok := kms.AWS()
			if kms.Provider != string(keyproxy.ProviderAWS) || !ok {
				return fmt.Errorf("%w: %s", keyproxy.ErrProbeUnsupported, kms.Provider)
			}
			if creds, err = a.resolveAWS(ctx, creds); err != nil {
				return err
			}
			client, err := a.newKMS(ctx, creds)
			if err != nil {
				return err
			}
			probe := keyproxy.NewKMSProbe(client, awsCacheSize, a.cfg.AWS.CacheTTL)
			st, err := probe.Check(ctx, keyproxy.ProbeID(creds))
			fmt.Fprintf(cmd.OutOrStdout(), "kms: %s\n", st)
			if err != nil {
				a.log.WarnContext(ctx, "kms probe failed", "region", creds.Region, "error", err)
				return err
			}
			return nil
		},
	}
}
