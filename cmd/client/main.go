package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/relaychat/internal/chatclient"
)

var (
	serverURL string
	username  string
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:          "relaychat-client",
	Short:        "Terminal client for the relaychat server",
	Long:         `Connects to a relaychat server, registers a username and relays stdin lines as chat messages.`,
	SilenceUsage: true,
	RunE:         runClient,
}

func init() {
	rootCmd.Flags().StringVar(&serverURL, "url", "ws://localhost:8080/ws", "WebSocket endpoint of the server")
	rootCmd.Flags().StringVarP(&username, "username", "u", "", "username to register (prompted when empty)")
	rootCmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runClient(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in := bufio.NewReader(os.Stdin)
	name := username
	if name == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Enter your username: ")
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return errors.New("no username given")
		}
		name = strings.TrimSpace(line)
	}

	client, err := chatclient.Dial(ctx, serverURL, name, !noColor)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s as %s\n", serverURL, name)

	return client.Run(ctx, in, cmd.OutOrStdout())
}
