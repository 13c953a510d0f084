package k8sworker

// K8sOptions tunes how the runtime is sized.
type K8sOptions struct {
	logf          func(string, ...any)
	memLimitRatio float64
}

type K8sOption func(*K8sOptions)

// WithLogger sets the printf style logger used to report the settings.
func WithLogger(logf func(string, ...any)) K8sOption {
	return func(ko *K8sOptions) { ko.logf = logf }
}

// WithMemLimitRatio sets the share of the cgroup memory limit given to
// GOMEMLIMIT. Values outside (0, 1] are ignored.
func WithMemLimitRatio(ratio float64) K8sOption {
	return func(ko *K8sOptions) {
		if ratio > 0 && ratio <= 1 {
			ko.memLimitRatio = ratio
		}
	}
}

func parseOptions(options ...K8sOption) K8sOptions {
	ko := K8sOptions{
		logf:          func(string, ...any) {},
		memLimitRatio: defaultMemLimitRatio,
	}
	for _, option := range options {
		option(&ko)
	}
	return ko
}
