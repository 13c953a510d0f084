// Package startup runs a service's listeners from main and takes care of
// the process level setup every service needs.
package startup

import (
	"os"

	"github.com/tradecore/go-marketstore-common/environment"
	"github.com/tradecore/go-marketstore-common/k8sworker"
	"github.com/tradecore/go-marketstore-common/logger"
	"github.com/tradecore/go-marketstore-common/tracing"
)

const DotEnvFile = ".env"

// logOptions reads LOGFILE and LOG_CONSOLE. The default is json on stderr.
func logOptions() []any {
	var opts []any
	if filename := environment.GetWithDefault("LOGFILE", ""); filename != "" {
		opts = append(opts, logger.WithFile(filename))
	}
	if environment.GetTruthy("LOG_CONSOLE") {
		opts = append(opts, logger.WithConsole())
	}
	return opts
}

type Runner func(Logger) error

// Run sets up logging, the container resource limits and tracing, then calls
// run and exits the process with its outcome. tracingHost is the local
// endpoint reported to zipkin; tracing is not set up if it is empty.
//
// defers do not work in main() because of the os.Exit
func Run(serviceName string, tracingHost string, run Runner) {
	if err := environment.LoadDotEnv(DotEnvFile); err != nil {
		// the logger is not up yet
		panic(err)
	}
	logger.New(environment.GetLogLevel(), logOptions()...)
	log := logger.Sugar.WithServiceName(serviceName)

	exitCode := func() int {
		k8Config, err := k8sworker.NewK8Config(
			k8sworker.WithLogger(log.Infof),
			k8sworker.WithMemLimitRatio(environment.GetFloatWithDefault("GOMEMLIMIT_RATIO", 0.9)),
		)
		if err != nil {
			log.Errorf("Error configuring go for kubernetes: %v", err)
			return 1
		}
		defer k8sworker.Close()
		log.Infof("Go Configuration: %+v", k8Config)

		if tracingHost != "" {
			closer := tracing.NewFromEnv(log, serviceName, tracingHost)
			if closer != nil {
				defer closer.Close()
			}
		}

		if err := run(log); err != nil {
			log.Errorf("Error at startup: %v", err)
			return 1
		}
		return 0
	}()

	log.Infof("Shutting down")
	logger.OnExit()

	os.Exit(exitCode)
}
