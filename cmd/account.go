/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobboard/apiserver/internal/auth"
	"github.com/jobboard/apiserver/types"
)

var registerFlags struct {
	role               string
	email              string
	firstName          string
	lastName           string
	headline           string
	bio                string
	companyName        string
	companyWebsite     string
	companyDescription string
	industry           string
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a job seeker or employer account",
	Long: `Create an account. The password is prompted for twice.

	jobboard register --role job_seeker --email ann@example.com --first-name Ann --last-name Lee
	jobboard register --role employer --email jobs@acme.io --company-name Acme
`,
	RunE: withClient(func(cmd *cobra.Command, env *clientEnv, args []string) error {
		f := registerFlags
		if f.email == "" {
			var err error
			if f.email, err = prompt(cmd, "Email: "); err != nil {
				return err
			}
		}
		password, err := promptPassword(cmd, "Password: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassword(cmd, "Confirm password: ")
		if err != nil {
			return err
		}

		var reg types.Registration
		switch types.ParseRole(f.role) {
		case types.RoleJobSeeker:
			reg = types.JobSeekerRegistration{
				Email:           f.email,
				Password:        password,
				ConfirmPassword: confirm,
				FirstName:       f.firstName,
				LastName:        f.lastName,
				Headline:        f.headline,
				Bio:             f.bio,
			}
		case types.RoleEmployer:
			reg = types.EmployerRegistration{
				Email:              f.email,
				Password:           password,
				ConfirmPassword:    confirm,
				CompanyName:        f.companyName,
				CompanyWebsite:     f.companyWebsite,
				CompanyDescription: f.companyDescription,
				Industry:           f.industry,
			}
		default:
			return fmt.Errorf("--role must be %q or %q", types.RoleJobSeeker, types.RoleEmployer)
		}

		res, err := env.holder.Register(cmd.Context(), reg)
		if err != nil {
			return reportError(cmd, err)
		}
		printResult(cmd, res)
		if res.Outcome == auth.OutcomeVerificationPending {
			fmt.Fprintf(cmd.OutOrStdout(), "Then run: jobboard verify --email %s --code <code>\n", f.email)
		}
		return nil
	}),
}

var verifyFlags struct {
	email string
	code  string
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Activate a pending account with the emailed code",
	RunE: withClient(func(cmd *cobra.Command, env *clientEnv, args []string) error {
		if verifyFlags.email == "" || verifyFlags.code == "" {
			return errors.New("--email and --code are required")
		}
		res, err := env.holder.VerifyOTP(cmd.Context(), verifyFlags.email, verifyFlags.code)
		if err != nil {
			return reportError(cmd, err)
		}
		printResult(cmd, res)
		return nil
	}),
}

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	RunE: withClient(func(cmd *cobra.Command, env *clientEnv, args []string) error {
		email := loginEmail
		if email == "" {
			var err error
			if email, err = prompt(cmd, "Email: "); err != nil {
				return err
			}
		}
		password, err := promptPassword(cmd, "Password: ")
		if err != nil {
			return err
		}
		identity, err := env.holder.Login(cmd.Context(), email, password)
		if err != nil {
			return reportError(cmd, err)
		}
		printIdentity(cmd.OutOrStdout(), &identity)
		return nil
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out",
	RunE: withClient(func(cmd *cobra.Command, env *clientEnv, args []string) error {
		env.holder.Logout(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	}),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	RunE: withClient(func(cmd *cobra.Command, env *clientEnv, args []string) error {
		state := env.holder.Snapshot()
		printIdentity(cmd.OutOrStdout(), state.Identity)
		if state.IsRateLimited && state.RateLimitResetAt != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Sign-up is paused until %s.\n", state.RateLimitResetAt.Local().Format(time.Kitchen))
		}
		return nil
	}),
}

func printResult(cmd *cobra.Command, res auth.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Notice)
	if res.Warning != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning:", auth.UserMessage(res.Warning))
	}
	if res.Identity != nil {
		printIdentity(out, res.Identity)
	}
}

func init() {
	rootCmd.AddCommand(registerCmd, verifyCmd, loginCmd, logoutCmd, whoamiCmd)

	f := registerCmd.Flags()
	f.StringVar(&registerFlags.role, "role", string(types.RoleJobSeeker), "account type: job_seeker or employer")
	f.StringVar(&registerFlags.email, "email", "", "email address")
	f.StringVar(&registerFlags.firstName, "first-name", "", "first name (job seeker)")
	f.StringVar(&registerFlags.lastName, "last-name", "", "last name (job seeker)")
	f.StringVar(&registerFlags.headline, "headline", "", "professional headline (job seeker)")
	f.StringVar(&registerFlags.bio, "bio", "", "short bio (job seeker)")
	f.StringVar(&registerFlags.companyName, "company-name", "", "company name (employer)")
	f.StringVar(&registerFlags.companyWebsite, "company-website", "", "company website (employer)")
	f.StringVar(&registerFlags.companyDescription, "company-description", "", "company description (employer)")
	f.StringVar(&registerFlags.industry, "industry", "", "industry (employer)")

	verifyCmd.Flags().StringVar(&verifyFlags.email, "email", "", "email address the code was sent to")
	verifyCmd.Flags().StringVar(&verifyFlags.code, "code", "", "verification code")

	loginCmd.Flags().StringVar(&loginEmail, "email", "", "email address")
}
