package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"traderiser/internal/domain"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage trading accounts and wallets",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account with an empty USD wallet",
	Long: `Create a trading account for a user.

Example:
  tradectl account create --user 1 --type standard`,
	RunE: runAccountCreate,
}

var accountDepositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Credit an account's wallet",
	RunE:  runAccountDeposit,
}

var (
	accountUserID  int64
	accountType    string
	depositAccount int64
	depositAmount  float64
)

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountCreateCmd)
	accountCmd.AddCommand(accountDepositCmd)

	accountCreateCmd.Flags().Int64Var(&accountUserID, "user", 0, "owning user ID (required)")
	accountCreateCmd.Flags().StringVar(&accountType, "type", string(domain.AccountStandard), "account type: standard, pro-fx, or demo")
	accountCreateCmd.MarkFlagRequired("user")

	accountDepositCmd.Flags().Int64Var(&depositAccount, "account", 0, "account ID (required)")
	accountDepositCmd.Flags().Float64Var(&depositAmount, "amount", 0, "amount to credit (required)")
	accountDepositCmd.MarkFlagRequired("account")
	accountDepositCmd.MarkFlagRequired("amount")
}

func runAccountCreate(cmd *cobra.Command, args []string) error {
	switch domain.AccountType(accountType) {
	case domain.AccountStandard, domain.AccountProFX, domain.AccountDemo:
	default:
		return fmt.Errorf("invalid account type %q", accountType)
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	id, err := a.store.CreateAccount(cmd.Context(), &domain.Account{
		UserID: accountUserID,
		Type:   domain.AccountType(accountType),
	})
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if err := a.store.CreateWallet(cmd.Context(), id, domain.CurrencyUSD, 0); err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}

	fmt.Printf("Created %s account %d for user %d\n", accountType, id, accountUserID)
	return nil
}

func runAccountDeposit(cmd *cobra.Command, args []string) error {
	if depositAmount <= 0 {
		return fmt.Errorf("deposit amount must be positive")
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	balance, err := a.store.AdjustWithEntry(cmd.Context(), depositAccount, domain.CurrencyUSD,
		depositAmount, domain.EntryCredit, "Wallet deposit")
	if err != nil {
		return fmt.Errorf("deposit: %w", err)
	}

	fmt.Printf("Deposited %.2f to account %d, new balance %.2f\n", depositAmount, depositAccount, balance)
	return nil
}
