// Command secproto generates keys for, runs, and exercises servers speaking
// the secure record protocol.
//
// Logging is off unless DEBUG_I2P is set to debug, warn or error.
package main

import (
	"os"

	"github.com/go-i2p/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openus/go-secproto/lib/config"
)

var log = logger.GetGoI2PLogger()

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:          "secproto",
		Short:        "Secure record protocol server and client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.InitConfig(cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $HOME/.secproto/config.yaml)")
	flags.String("asymmetric", "", "asymmetric algorithm: none, rsa, rsa3072, rsa4096")
	flags.String("symmetric", "", "symmetric algorithm: none, des, 3des, aes")
	flags.String("hash", "", "hash algorithm: none, sha1, sha256, sha384, sha512, sha3-256, sha3-384, sha3-512")
	bindFlag(root, config.KeyAsymmetric, "asymmetric")
	bindFlag(root, config.KeySymmetric, "symmetric")
	bindFlag(root, config.KeyHash, "hash")

	root.AddCommand(
		newKeygenCommand(),
		newServeCommand(),
		newConnectCommand(),
		newBenchCommand(),
		newConfigCommand(),
	)
	return root
}

// bindFlag ties a flag to a config key so that an explicitly set flag wins
// over the file and environment.
func bindFlag(cmd *cobra.Command, key, name string) {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		f = cmd.PersistentFlags().Lookup(name)
	}
	if err := viper.BindPFlag(key, f); err != nil {
		log.WithFields(logger.Fields{
			"at":   "main.bindFlag",
			"flag": name,
			"key":  key,
		}).WithError(err).Error("failed_to_bind_flag")
	}
}
