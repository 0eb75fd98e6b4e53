package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grasp-labs/ds-keyproxy-go-sdk/keyproxy"
)

const (
	LoginCmdExample = `# Log in, prompting for the password
keyproxyctl login --email ada@acme.io

# Read the password from stdin
printf '%s\n' "$PW" | keyproxyctl login --email ada@acme.io --password-stdin`

	SignupCmdExample = `# Register an account backed by AWS KMS
keyproxyctl signup --company Acme --contact Ada --phone +4712345678 \
  --email ada@acme.io --kms aws --aws-access-key-id AKIA... \
  --aws-secret-access-key ssm:/acme/kms/secret --aws-region eu-north-1 \
  --encryption-algorithm AES-256-GCM --access-control rbac`
)

func newLoginCmd(a *app) *cobra.Command {
	var (
		email         string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:     "login",
		Short:   "Log in and store the session token",
		Example: LoginCmdExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if email == "" {
				email = a.cfg.Account.Email
			}
			if email == "" {
				if email, err = a.prompt.Line("Email: "); err != nil {
					return err
				}
			}
			var password string
			if passwordStdin {
				password, err = a.prompt.Line("")
			} else {
				password, err = a.prompt.Password("Password: ")
			}
			if err != nil {
				return err
			}

			ctrl := keyproxy.NewAuthController(a.client, a.session, nil, keyproxy.WithControllerLogger(a.log))
			defer ctrl.Close()
			if err := setFields(ctrl, map[string]string{
				keyproxy.FormEmail:    email,
				keyproxy.FormPassword: password,
			}); err != nil {
				return err
			}
			if err := ctrl.Submit(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email (default account.email)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

type signupFlags struct {
	company, contact, phone, email string
	kms, algorithm, access         string
	passwordStdin                  bool

	awsAccessKeyID, awsSecretAccessKey, awsRegion string
	gcpServiceAccount                             string
	hsmURL, hsmClientCert, hsmPrivateKey, hsmAuth string
}

func newSignupCmd(a *app) *cobra.Command {
	var f signupFlags
	cmd := &cobra.Command{
		Use:     "signup",
		Short:   "Register a company account with its KMS credentials",
		Example: SignupCmdExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := keyproxy.NewAuthController(a.client, a.session, nil, keyproxy.WithControllerLogger(a.log))
			defer ctrl.Close()
			ctrl.SetMode(keyproxy.ModeSignup)

			var password, confirm string
			var err error
			if f.passwordStdin {
				if password, err = a.prompt.Line(""); err != nil {
					return err
				}
				if confirm, err = a.prompt.Line(""); err != nil {
					return err
				}
			} else {
				if password, err = a.prompt.Password("Password: "); err != nil {
					return err
				}
				if confirm, err = a.prompt.Password("Confirm password: "); err != nil {
					return err
				}
			}

			if err := setFields(ctrl, map[string]string{
				keyproxy.FormCompanyName:         f.company,
				keyproxy.FormContactName:         f.contact,
				keyproxy.FormPhoneNumber:         f.phone,
				keyproxy.FormEmail:               f.email,
				keyproxy.FormPassword:            password,
				keyproxy.FormConfirmPassword:     confirm,
				keyproxy.FormKMSSelection:        f.kms,
				keyproxy.FormEncryptionAlgorithm: f.algorithm,
				keyproxy.FormAccessControl:       f.access,
			}); err != nil {
				return err
			}

			creds := map[string]string{
				keyproxy.FieldAccessKeyID:       f.awsAccessKeyID,
				keyproxy.FieldSecretAccessKey:   f.awsSecretAccessKey,
				keyproxy.FieldRegion:            f.awsRegion,
				keyproxy.FieldHSMURL:            f.hsmURL,
				keyproxy.FieldClientCertificate: f.hsmClientCert,
				keyproxy.FieldPrivateKey:        f.hsmPrivateKey,
				keyproxy.FieldAuthToken:         f.hsmAuth,
			}
			for field, v := range creds {
				if v == "" {
					continue
				}
				if v, err = a.resolve(cmd.Context(), v); err != nil {
					return err
				}
				if err := ctrl.SetCredential(field, v); err != nil {
					return err
				}
			}
			if f.gcpServiceAccount != "" {
				if err := uploadServiceAccount(ctrl, f.gcpServiceAccount); err != nil {
					return err
				}
			}

			if err := ctrl.Submit(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account created for %s. Run '%s login' to sign in.\n", f.email, CliName)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.company, "company", "", "company name")
	fl.StringVar(&f.contact, "contact", "", "contact person")
	fl.StringVar(&f.phone, "phone", "", "contact phone number")
	fl.StringVar(&f.email, "email", "", "account email")
	fl.StringVar(&f.kms, "kms", string(keyproxy.DefaultProvider), "kms provider: azure, aws, gcp or hsm")
	fl.StringVar(&f.algorithm, "encryption-algorithm", "", "encryption algorithm, e.g. AES-256-GCM")
	fl.StringVar(&f.access, "access-control", string(keyproxy.AccessRBAC), "access control: rbac or mfa")
	fl.BoolVar(&f.passwordStdin, "password-stdin", false, "read password and confirmation as two lines from stdin")
	fl.StringVar(&f.awsAccessKeyID, "aws-access-key-id", "", "AWS access key id (or ssm:<parameter>)")
	fl.StringVar(&f.awsSecretAccessKey, "aws-secret-access-key", "", "AWS secret access key (or ssm:<parameter>)")
	fl.StringVar(&f.awsRegion, "aws-region", "", "AWS region")
	fl.StringVar(&f.gcpServiceAccount, "gcp-service-account", "", "path to the GCP service account key file")
	fl.StringVar(&f.hsmURL, "hsm-url", "", "HSM endpoint URL")
	fl.StringVar(&f.hsmClientCert, "hsm-client-certificate", "", "HSM client certificate")
	fl.StringVar(&f.hsmPrivateKey, "hsm-private-key", "", "HSM private key (or ssm:<parameter>)")
	fl.StringVar(&f.hsmAuth, "hsm-auth-token", "", "HSM auth token (or ssm:<parameter>)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session token is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nav := keyproxy.NewNavigator(a.session)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "server:        %s\n", a.client.BaseURL())
			fmt.Fprintf(out, "session store: %s\n", a.cfg.Session.Store)
			fmt.Fprintf(out, "authenticated: %t\n", a.session.IsAuthenticated())
			fmt.Fprintf(out, "view:          %s\n", nav.Current())
			return nil
		},
	}
}

func setFields(ctrl *keyproxy.AuthController, fields map[string]string) error {
	for name, v := range fields {
		if err := ctrl.SetField(name, v); err != nil {
			return err
		}
	}
	return nil
}

func uploadServiceAccount(ctrl *keyproxy.AuthController, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open service account file: %w", err)
	}
	defer file.Close()
	return ctrl.UploadServiceAccount(file)
}
