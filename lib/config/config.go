package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"github.com/spf13/viper"

	"github.com/openus/go-secproto/lib/algorithm"
	"github.com/openus/go-secproto/lib/keys"
	"github.com/openus/go-secproto/lib/ticket"
	"github.com/openus/go-secproto/lib/transport/tcp"
	"github.com/openus/go-secproto/lib/util"
)

var log = logger.GetGoI2PLogger()

const (
	ConfigName = "config"
	ConfigType = "yaml"
	EnvPrefix  = "SECPROTO"

	DefaultAddress  = "127.0.0.1:7443"
	DefaultKeyName  = "server"
	DefaultFilename = ConfigName + "." + ConfigType
)

// Keys understood by the config file.
const (
	KeyListen            = "listen"
	KeyConnectAddress    = "connect.address"
	KeyConnectRetry      = "connect.retry"
	KeyConnectRetryDelay = "connect.retry_delay"
	KeyAsymmetric        = "algorithm.asymmetric"
	KeySymmetric         = "algorithm.symmetric"
	KeyHash              = "algorithm.hash"
	KeyPublicKey         = "keys.public"
	KeyPrivateKey        = "keys.private"
	KeyTicketTime        = "tickets.enable_time"
	KeyTicketCleaner     = "tickets.cleaner_interval"
	KeyBlacklist         = "blacklist"
	KeyAcceptRate        = "accept.rate"
	KeyAcceptBurst       = "accept.burst"
	KeyHandshakeTimeout  = "handshake_timeout"
	KeyMetricsAddress    = "metrics.address"
)

// InitConfig registers defaults and reads cfgFile, or the default file under
// BaseDir, creating the latter when it does not exist. An explicit cfgFile
// that is missing is an error.
func InitConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(util.BaseDir())
		viper.SetConfigName(ConfigName)
		viper.SetConfigType(ConfigType)
	}
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	return handleConfigFile(cfgFile)
}

func setDefaults() {
	base := util.BaseDir()
	viper.SetDefault(KeyListen, DefaultAddress)
	viper.SetDefault(KeyConnectAddress, DefaultAddress)
	viper.SetDefault(KeyConnectRetry, 0)
	viper.SetDefault(KeyConnectRetryDelay, tcp.DefaultRetryDelay)
	viper.SetDefault(KeyAsymmetric, algorithm.DefaultSet.Asymmetric.String())
	viper.SetDefault(KeySymmetric, algorithm.DefaultSet.Symmetric.String())
	viper.SetDefault(KeyHash, algorithm.DefaultSet.Hash.String())
	viper.SetDefault(KeyPublicKey, filepath.Join(base, DefaultKeyName+keys.PublicKeySuffix))
	viper.SetDefault(KeyPrivateKey, filepath.Join(base, DefaultKeyName+keys.PrivateKeySuffix))
	viper.SetDefault(KeyTicketTime, ticket.DefaultLifetime)
	viper.SetDefault(KeyTicketCleaner, time.Duration(0))
	viper.SetDefault(KeyBlacklist, []string{})
	viper.SetDefault(KeyAcceptRate, 0.0)
	viper.SetDefault(KeyAcceptBurst, 0)
	viper.SetDefault(KeyHandshakeTimeout, tcp.DefaultHandshakeTimeout)
	viper.SetDefault(KeyMetricsAddress, "")
}

func handleConfigFile(cfgFile string) error {
	err := viper.ReadInConfig()
	if err == nil {
		log.WithFields(logger.Fields{
			"at":   "config.handleConfigFile",
			"file": viper.ConfigFileUsed(),
		}).Debug("config_file_loaded")
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
	if !missing {
		return oops.Errorf("failed to read config file: %w", err)
	}
	if cfgFile != "" {
		return oops.Errorf("config file %s not found: %w", cfgFile, err)
	}
	return createDefaultConfig(util.BaseDir())
}

func createDefaultConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return oops.Errorf("failed to create config directory: %w", err)
	}
	path := filepath.Join(dir, DefaultFilename)
	if err := viper.SafeWriteConfigAs(path); err != nil {
		return oops.Errorf("failed to write default config: %w", err)
	}
	log.WithFields(logger.Fields{
		"at":   "config.createDefaultConfig",
		"file": path,
	}).Info("default_config_created")
	return nil
}

// AlgorithmSet parses the algorithm.* keys.
func AlgorithmSet() (algorithm.Set, error) {
	return algorithm.Parse(
		viper.GetString(KeyAsymmetric),
		viper.GetString(KeySymmetric),
		viper.GetString(KeyHash),
	)
}

// Blacklist returns the configured endpoints with blanks removed. The server
// command calls it again on reload.
func Blacklist() []string {
	var out []string
	for _, e := range viper.GetStringSlice(KeyBlacklist) {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// NewServerConfigFromViper builds a server configuration, loading the
// private key from keys.private when the algorithm set needs one.
func NewServerConfigFromViper() (*tcp.ServerConfig, error) {
	set, err := AlgorithmSet()
	if err != nil {
		return nil, err
	}
	cfg := &tcp.ServerConfig{
		Address:               viper.GetString(KeyListen),
		Set:                   set,
		EnableTicketTime:      viper.GetDuration(KeyTicketTime),
		TicketCleanerInterval: viper.GetDuration(KeyTicketCleaner),
		Blacklist:             Blacklist(),
		AcceptRate:            viper.GetFloat64(KeyAcceptRate),
		AcceptBurst:           viper.GetInt(KeyAcceptBurst),
		HandshakeTimeout:      viper.GetDuration(KeyHandshakeTimeout),
	}
	if set.Asymmetric != algorithm.AsymmetricNone {
		cfg.PrivateKey, err = keys.LoadPrivateKey(set.Asymmetric, viper.GetString(KeyPrivateKey))
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewClientConfigFromViper builds a client configuration, loading the public
// key from keys.public when the algorithm set needs one.
func NewClientConfigFromViper() (*tcp.ClientConfig, error) {
	set, err := AlgorithmSet()
	if err != nil {
		return nil, err
	}
	cfg := &tcp.ClientConfig{
		Address:    viper.GetString(KeyConnectAddress),
		Retry:      viper.GetInt(KeyConnectRetry),
		Set:        set,
		RetryDelay: viper.GetDuration(KeyConnectRetryDelay),
	}
	if cfg.Retry < 0 {
		return nil, oops.Errorf("negative %s %d", KeyConnectRetry, cfg.Retry)
	}
	if set.Asymmetric != algorithm.AsymmetricNone {
		cfg.PublicKey, err = keys.LoadPublicKey(set.Asymmetric, viper.GetString(KeyPublicKey))
		if err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Settings returns the effective configuration as a nested map.
func Settings() map[string]any {
	return viper.AllSettings()
}
