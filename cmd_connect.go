package main

import (
	"bytes"
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/openus/go-secproto/lib/config"
	"github.com/openus/go-secproto/lib/transport"
	"github.com/openus/go-secproto/lib/transport/tcp"
)

func newConnectCommand() *cobra.Command {
	var (
		message string
		resume  bool
	)
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Send a message to an echo server",
		Long: "Performs a handshake, sends the message and prints the echo. With " +
			"--resume it then reconnects using the issued ticket and repeats.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewClientConfigFromViper()
			if err != nil {
				return err
			}
			client, err := cfg.NewClient()
			if err != nil {
				return err
			}

			conn, err := client.ConnectContext(cmd.Context(), cfg.Address, cfg.Retry)
			if err != nil {
				return err
			}
			reply, err := exchange(conn, []byte(message))
			conn.Close()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", reply)

			if !resume {
				return nil
			}
			t := conn.Ticket()
			if t == nil {
				return oops.Errorf("server issued no ticket for %s", cfg.Set)
			}
			conn, err = client.ResumeContext(cmd.Context(), cfg.Address, t, cfg.Retry)
			if err != nil {
				return err
			}
			defer conn.Close()
			reply, err = exchange(conn, []byte(message))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resumed: %s\n", reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&message, "message", "hello", "payload to send")
	cmd.Flags().BoolVar(&resume, "resume", false, "reconnect with the issued ticket")
	cmd.Flags().String("address", "", "server address")
	cmd.Flags().Int("retry", 0, "extra connect attempts")
	bindFlag(cmd, config.KeyConnectAddress, "address")
	bindFlag(cmd, config.KeyConnectRetry, "retry")
	return cmd
}

// exchange sends one record and expects it echoed back.
func exchange(c *tcp.Conn, msg []byte) ([]byte, error) {
	if err := c.Send(msg); err != nil {
		return nil, err
	}
	reply, err := c.Read(transport.Fail)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(reply, msg) {
		return reply, oops.Errorf("echo mismatch: sent %d bytes, got %d", len(msg), len(reply))
	}
	return reply, nil
}
