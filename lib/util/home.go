// Package util holds small process-level helpers shared by the command line
// tools.
package util

import (
	"os"
	"path/filepath"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// BaseDirName is the directory under the user's home that holds
// configuration and key files.
const BaseDirName = ".secproto"

// UserHome returns the current user's home directory, falling back to
// $HOME, then %USERPROFILE%, then the working directory.
func UserHome() string {
	home, err := os.UserHomeDir()
	if err == nil {
		return home
	}
	for _, env := range []string{"HOME", "USERPROFILE"} {
		if v := os.Getenv(env); v != "" {
			log.WithFields(logger.Fields{"at": "util.UserHome", "env": env}).
				WithError(err).Warn("home_dir_fallback")
			return v
		}
	}
	if wd, wdErr := os.Getwd(); wdErr == nil {
		log.WithFields(logger.Fields{"at": "util.UserHome", "dir": wd}).
			WithError(err).Warn("home_dir_fallback_to_working_dir")
		return wd
	}
	panic("secproto: unable to determine home directory; set $HOME")
}

// BaseDir returns $HOME/.secproto.
func BaseDir() string {
	return filepath.Join(UserHome(), BaseDirName)
}
