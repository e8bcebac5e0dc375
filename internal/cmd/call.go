package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xdg/tether/internal/channel"
	"github.com/xdg/tether/internal/prompt"
	"github.com/xdg/tether/internal/proto"
)

var callCmd = &cobra.Command{
	Use:   "call [flags] -- command [args...]",
	Short: "Run a command through a running agent",
	Long: `Send a command to a running tether agent and print its output.

The command's stdout and stderr are written to the corresponding local
streams, and its exit code becomes this command's exit code. The
password is prompted for unless --password is given.

Example:
  tether call --user alice -- ls -l /tmp`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCall,
}

var (
	callUser     string
	callPassword string
	callSocket   string
	callEnv      []string
)

func init() {
	callCmd.Flags().StringVarP(&callUser, "user", "u", "", "user to authenticate as (required)")
	callCmd.Flags().StringVar(&callPassword, "password", "", "password (prompted when omitted)")
	callCmd.Flags().StringVar(&callSocket, "socket", "", "agent control socket (default "+channel.DefaultSocketPath+")")
	callCmd.Flags().StringArrayVarP(&callEnv, "env", "e", nil, "environment variable for the command (KEY=VALUE, repeatable)")
	_ = callCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	password := callPassword
	if password == "" {
		var err error
		password, err = prompt.NewTerminalReader().ReadPassword("Password: ")
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}

	env, err := parseEnv(callEnv)
	if err != nil {
		return err
	}

	req := &proto.CommandRequest{
		Token: uuid.NewString(),
		Attrs: proto.CommandAttrs{
			Username: callUser,
			Password: password,
			Cmd:      args[0],
			Params:   args[1:],
			Env:      env,
		},
	}

	client := channel.NewClient(callSocket)
	reply, err := client.Execute(cmd.Context(), req)
	if err != nil {
		return err
	}

	if reply.IsError() {
		return fmt.Errorf("agent: %s", reply.Attrs.Msg)
	}

	stdout, err := reply.DecodeStdout()
	if err != nil {
		return err
	}
	stderr, err := reply.DecodeStderr()
	if err != nil {
		return err
	}
	_, _ = os.Stdout.Write(stdout)
	_, _ = os.Stderr.Write(stderr)

	if code := *reply.Attrs.Code; code != 0 {
		return NewExitCodeError(code)
	}
	return nil
}

// parseEnv splits repeated KEY=VALUE flags into a map. A later duplicate
// key wins.
func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env value %q (want KEY=VALUE)", pair)
		}
		env[k] = v
	}
	return env, nil
}
