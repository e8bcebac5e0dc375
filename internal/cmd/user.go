package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xdg/tether/internal/auth"
	"github.com/xdg/tether/internal/prompt"
	"github.com/xdg/tether/internal/term"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the credential store",
	Long: `Manage the users allowed to execute commands through the agent.

Credentials are stored as salted password hashes in the file named by
the auth.credentials_file config setting. A running agent re-reads the
store only at startup; restart it after changes.`,
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Add or update a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

var userDelCmd = &cobra.Command{
	Use:   "del <username>",
	Short: "Remove a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserDel,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE:  runUserList,
}

var userConfigPath string

func init() {
	userCmd.PersistentFlags().StringVar(&userConfigPath, "config", "", "config file")
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userDelCmd)
	userCmd.AddCommand(userListCmd)
	rootCmd.AddCommand(userCmd)
}

func openStore() (*auth.Store, error) {
	cfg, err := loadConfig(userConfigPath)
	if err != nil {
		return nil, err
	}
	store, err := auth.Open(cfg.Auth.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	return store, nil
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	username := args[0]

	store, err := openStore()
	if err != nil {
		return err
	}

	password, err := prompt.Confirmed(prompt.NewTerminalReader(), fmt.Sprintf("Password for %s: ", username))
	if err != nil {
		return err
	}

	if err := store.Set(username, password); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	term.Printf("User %s saved to %s\n", username, store.Path())
	return nil
}

func runUserDel(cmd *cobra.Command, args []string) error {
	username := args[0]

	store, err := openStore()
	if err != nil {
		return err
	}

	removed, err := store.Remove(username)
	if err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}
	if !removed {
		return fmt.Errorf("user %s not found", username)
	}

	term.Printf("User %s removed\n", username)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	users := store.Users()
	if len(users) == 0 {
		term.Println("No users configured.")
		return nil
	}
	for _, u := range users {
		term.Println(u)
	}
	return nil
}
