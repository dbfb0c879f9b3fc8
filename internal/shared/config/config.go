package config

import (
	"os"

	"gopkg.in/ini.v1"

	"i2prelay/internal/shared/types"
)

// LoadIni loads the i2prelay.ini behavior configuration file and applies
// environment overrides and built-in defaults.
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}
	overrideFromEnv(&cfg.I2PDConf.Executable, "I2PRELAY_I2PD_BIN")
	overrideFromEnv(&cfg.I2PDConf.DataDir, "I2PRELAY_I2PD_DATADIR")
	cfg.ApplyDefaults()
	return nil
}

func overrideFromEnv(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}
