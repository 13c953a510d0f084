package environment

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tradecore/go-marketstore-common/logger"
)

// GetLogLevel returns the loglevel or panics. This is called before any logger
// is available. i.e. don't use a logger here.
func GetLogLevel() string {
	value, ok := os.LookupEnv("LOGLEVEL")
	if !ok {
		panic(errors.New("no loglevel specified"))
	}
	return value
}

// LoadDotEnv populates the environment from the named dotenv files. Variables
// already present in the environment are not overridden. Missing files are
// ignored so that deployments without a dotenv file behave the same.
func LoadDotEnv(filenames ...string) error {
	present := []string{}
	for _, filename := range filenames {
		if _, err := os.Stat(filename); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		present = append(present, filename)
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// GetWithDefault returns value of environment variable.
// If the environment variable does not exist then the default value is
// returned.
func GetWithDefault(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		value = fallback
	}
	return value
}

// GetOrFatal returns the key's value or logs a Fatal error (and exits)
func GetOrFatal(key string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		logger.Sugar.Panicf("required environment variable is not defined: %s", key)
	}
	return value
}

// GetIntWithDefault returns value of environment variable that is
// expected to be an int.
// If the environment variable does not exist or is incorrect,
// then the default value is returned.
func GetIntWithDefault(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(val)
	if err != nil {
		logger.Sugar.Infof("`%s' can not be converted to an integer. defaulting to %v. err=%v", key, fallback, err)
		return fallback
	}
	return value
}

// GetFloatWithDefault is GetIntWithDefault for float64 values.
func GetFloatWithDefault(key string, fallback float64) float64 {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.ParseFloat(val, 64)
	if err != nil {
		logger.Sugar.Infof("`%s' can not be converted to a float. defaulting to %v. err=%v", key, fallback, err)
		return fallback
	}
	return value
}

// GetDurationWithDefault returns the value of an environment variable parsed
// with time.ParseDuration ("250ms", "10s"). Bad or missing values yield the
// fallback.
func GetDurationWithDefault(key string, fallback time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := time.ParseDuration(val)
	if err != nil {
		logger.Sugar.Infof("`%s' can not be converted to a duration. defaulting to %v. err=%v", key, fallback, err)
		return fallback
	}
	return value
}

// GetRequired gets the value for the key, or an error if it is not set.
func GetRequired(key string) (string, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("required environment variable '%s' is not defined", key)
	}
	return value, nil
}

// GetTruthy returns true if key is set to a value that is truthy. Returns
// false otherwise.
func GetTruthy(key string) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	// t,true,True,1 are all examples of 'truthy' values understood by ParseBool
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false
	}
	return b
}

// ReadIndirectWithDefault reads the file named by varname and returns its
// trimmed contents. If varname is not set the fallback is returned. A set
// variable naming an unreadable file is fatal.
func ReadIndirectWithDefault(varname, fallback string) string {
	filename, ok := os.LookupEnv(varname)
	if !ok {
		return fallback
	}
	b, err := os.ReadFile(filename)
	if err != nil {
		logger.Sugar.Panicf("error reading file `%s': %s", filename, err)
	}
	return strings.TrimSpace(string(b))
}
