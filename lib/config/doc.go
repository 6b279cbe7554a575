// Package config loads server and client settings through viper.
//
// Values come, in increasing priority, from built-in defaults, the YAML file
// ($HOME/.secproto/config.yaml unless a path is given), SECPROTO_* environment
// variables, and command line flags bound by the caller. The file is created
// with the defaults on first use.
package config
