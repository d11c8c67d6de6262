package config

import (
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "REPROTEST"

// LoadCommandlineArgsFromConfigFile merges the given config file, or $HOME/.<name>.yaml if cfgFile is empty,
// into viper. A missing default file is not an error; users don't have to create one.
func LoadCommandlineArgsFromConfigFile(cfgFile string, name string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return errors.WithMessage(err, "error getting user home directory")
		}
		viper.AddConfigPath(home)
		viper.SetConfigName("." + name)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	if err := viper.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return errors.WithMessagef(err, "error reading config file %s", viper.ConfigFileUsed())
	}
	return nil
}

// Unmarshal decodes viper's merged settings into dst using CustomHooks.
func Unmarshal(dst interface{}) error {
	return errors.WithStack(viper.Unmarshal(dst, CustomHooks...))
}
