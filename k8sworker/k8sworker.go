// Package k8sworker sizes the go runtime to the container it runs in.
package k8sworker

import (
	"runtime"
	"runtime/debug"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"go.uber.org/automaxprocs/maxprocs"
)

const defaultMemLimitRatio = 0.9

var (
	undoMaxProcs = func() {}
)

// K8sConfig reports the runtime settings in effect after NewK8Config.
type K8sConfig struct {
	GoMaxProcs int
	GoMemLimit int64
	GoVersion  string

	// MemLimitSource is empty when no cgroup limit was found, in which case
	// the runtime default is left alone.
	MemLimitSource string
}

// NewK8Config sets GOMEMLIMIT to a share (default 90%) of the cgroup memory limit and
// GOMAXPROCS to the cgroup CPU quota. Outside a container both are left at
// the runtime defaults.
func NewK8Config(opts ...K8sOption) (*K8sConfig, error) {
	options := parseOptions(opts...)
	logf := options.logf

	k8Config := K8sConfig{
		GoVersion: runtime.Version(),
	}

	limit, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(options.memLimitRatio),
		memlimit.WithProvider(memlimit.FromCgroup),
	)
	if err != nil {
		// not fatal, there is simply no container limit to follow
		logf("memlimit: GOMEMLIMIT unchanged: %v", err)
	} else if limit > 0 {
		k8Config.MemLimitSource = "cgroup"
	}

	// GOMAXPROCS must match the CPU quota or GC threads stall on cores the
	// container does not have.
	undoMaxProcs, err = maxprocs.Set(maxprocs.Logger(logf))
	if err != nil {
		return nil, err
	}
	k8Config.GoMaxProcs = runtime.GOMAXPROCS(-1)
	k8Config.GoMemLimit = debug.SetMemoryLimit(-1)

	return &k8Config, nil
}

// Close undoes any changes to GoMaxProcs.
func Close() {
	undoMaxProcs()
}
