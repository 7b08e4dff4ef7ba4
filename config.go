// Package hostfs wires the internal descriptor, path-mapping, and rights
// packages into a usable WASI preview1 filesystem host, and exposes the
// typed wasip1.API/wasip1.Module surface to an embedder (a WebAssembly
// runtime, or, for this repository, cmd/wasip1fs-explore) (spec.md §6).
package hostfs

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wasip1fs/hostfs/internal/rights"
)

// Preopen describes one entry of Config.PreopenedDirectories: a host
// directory made visible to the guest at GuestPath, with the host-level
// Access mode spec.md §4.3 narrows rights against.
type Preopen struct {
	HostPath  string
	GuestPath string
	Access    rights.AccessMode
}

// Config is the subsystem's external configuration surface, spec.md §6.
type Config struct {
	// HostRootDirectory is the absolute host path every preopen and the
	// Path Mapper's containment check is rooted at. Mandatory, must exist.
	HostRootDirectory string

	// PreopenedDirectories lists the preopens bound at ids FdPreopen,
	// FdPreopen+1, ... in order.
	PreopenedDirectories []Preopen

	// MaxOpenFileDescriptors bounds concurrently live descriptors. Zero
	// means the descriptor.DefaultMax (1024), spec.md §6's stated default.
	MaxOpenFileDescriptors int

	// StandardInput/StandardOutput/StandardError back fds 0-2. A nil
	// stream is bound to a /dev/null-style descriptor (spec.md §6
	// "byte streams or null").
	StandardInput                 io.Reader
	StandardOutput, StandardError io.Writer

	// DefaultPermissions is the access mode applied to every preopen that
	// does not set its own Access.
	DefaultPermissions rights.AccessMode

	// AllowFileCreation/AllowFileDeletion gate the create/delete rights
	// bits computed for every descriptor (spec.md §4.3, §8 scenario 6).
	AllowFileCreation bool
	AllowFileDeletion bool

	// Logger receives construction and rejection diagnostics. Defaults to
	// logrus.StandardLogger() when nil.
	Logger *logrus.Logger
}

func (c Config) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

func (c Config) validate() error {
	if c.HostRootDirectory == "" {
		return errors.New("hostfs: HostRootDirectory is required")
	}
	info, err := os.Stat(c.HostRootDirectory)
	if err != nil {
		return errors.Wrap(err, "hostfs: HostRootDirectory")
	}
	if !info.IsDir() {
		return errors.Errorf("hostfs: HostRootDirectory %q is not a directory", c.HostRootDirectory)
	}
	for _, p := range c.PreopenedDirectories {
		if p.GuestPath == "" {
			return errors.Errorf("hostfs: preopen %q: GuestPath is required", p.HostPath)
		}
		if _, err := os.Stat(p.HostPath); err != nil {
			return errors.Wrapf(err, "hostfs: preopen %q", p.GuestPath)
		}
	}
	return nil
}

