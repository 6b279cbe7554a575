package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openus/go-secproto/lib/algorithm"
	"github.com/openus/go-secproto/lib/config"
	"github.com/openus/go-secproto/lib/keys"
	"github.com/openus/go-secproto/lib/util"
)

func newKeygenCommand() *cobra.Command {
	var (
		alg   string
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a server key pair",
		Long: "Writes <out>.pub and <out>.priv. The public file is what clients " +
			"need; the private file stays with the server.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if alg == "" {
				alg = viper.GetString(config.KeyAsymmetric)
			}
			a, err := algorithm.ParseAsymmetric(alg)
			if err != nil {
				return err
			}
			if a == algorithm.AsymmetricNone {
				return oops.Errorf("asymmetric algorithm none has no keys")
			}
			if out == "" {
				out = filepath.Join(util.BaseDir(), config.DefaultKeyName)
			}
			dir, name := filepath.Dir(out), filepath.Base(out)
			pubPath := filepath.Join(dir, name+keys.PublicKeySuffix)
			privPath := filepath.Join(dir, name+keys.PrivateKeySuffix)
			if !force {
				for _, p := range []string{pubPath, privPath} {
					if _, err := os.Stat(p); err == nil {
						return oops.Errorf("%s exists; pass --force to replace it", p)
					}
				}
			}

			kp, err := keys.GenerateKeyPair(a)
			if err != nil {
				return err
			}
			if err := kp.Save(dir, name); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pubPath)
			fmt.Fprintln(cmd.OutOrStdout(), privPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&alg, "algorithm", "", "asymmetric algorithm (default from config)")
	cmd.Flags().StringVar(&out, "out", "", "output path prefix (default $HOME/.secproto/server)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing key files")
	return cmd
}
