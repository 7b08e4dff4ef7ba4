package hostfs

import (
	"io"
	"os"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wasip1fs/hostfs/internal/fsapi"
	"github.com/wasip1fs/hostfs/internal/fsctx"
	"github.com/wasip1fs/hostfs/internal/pathmap"
	"github.com/wasip1fs/hostfs/internal/rights"
	"github.com/wasip1fs/hostfs/internal/sysfs"
	"github.com/wasip1fs/hostfs/wasip1"
)

// RootFD is the descriptor of the first configured preopen, the common
// case of a single preopened root directory (cmd/wasip1fs-explore).
const RootFD = fsctx.FdPreopen

// Subsystem is a constructed WASI preview1 filesystem host: a descriptor
// table with stdio and every configured preopen already bound, and the
// typed wasip1.API/wasip1.Module surface an embedder drives (spec.md §3,
// §6's subsystem lifecycle).
type Subsystem struct {
	fs     *fsctx.FSContext
	mapper *pathmap.Mapper
	log    *logrus.Logger

	API    *wasip1.API
	Module *wasip1.Module
}

// New validates cfg, builds the Path Mapper and descriptor table, binds
// stdio and /dev/null, and preopens every configured directory in order
// starting at fsctx.FdPreopen.
func New(cfg Config) (*Subsystem, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := cfg.logger()

	mapper := pathmap.New()
	mapper.SetRoot(cfg.HostRootDirectory)
	if errno := mapper.AddMapping("/", cfg.HostRootDirectory); errno != 0 {
		return nil, errors.Errorf("hostfs: mapping host root: %v", errno)
	}

	fs := fsctx.New(cfg.MaxOpenFileDescriptors)

	stdin, stdout, stderr, err := bindStdio(cfg)
	if err != nil {
		return nil, err
	}
	fs.InitStdio(stdin, stdout, stderr)

	// Preopens are bound before /dev/null so the first configured preopen
	// always lands at fsctx.FdPreopen (RootFD), matching spec.md §3's
	// "binds preopens starting at id 3"; /dev/null, a supplemented
	// built-in with no configured guest path of its own, takes whatever
	// descriptor is next free afterward.
	for _, p := range cfg.PreopenedDirectories {
		if errno := mapper.AddMapping(p.GuestPath, p.HostPath); errno != 0 {
			return nil, errors.Errorf("hostfs: mapping preopen %q: %v", p.GuestPath, errno)
		}
		dirFS := sysfs.NewDirFS(mapper, p.GuestPath)
		dir, errno := dirFS.OpenFile(".", os.O_RDONLY, 0)
		if errno != 0 {
			return nil, errors.Errorf("hostfs: opening preopen %q: %v", p.GuestPath, errno)
		}
		access := p.Access
		if access == rights.Unset {
			access = cfg.DefaultPermissions
		}
		fd, errno := fs.Preopen(p.GuestPath, dirFS, dir, access, cfg.AllowFileCreation, cfg.AllowFileDeletion)
		if errno != 0 {
			return nil, errors.Errorf("hostfs: preopening %q: %v", p.GuestPath, errno)
		}
		log.WithFields(logrus.Fields{
			"fd": fd, "guest_path": p.GuestPath, "host_path": p.HostPath,
		}).Debug("preopened directory")
	}

	if errno := bindDevNull(fs); errno != 0 {
		return nil, errors.Errorf("hostfs: binding /dev/null: %v", errno)
	}

	api := wasip1.NewAPI(fs, log)
	return &Subsystem{
		fs:     fs,
		mapper: mapper,
		log:    log,
		API:    api,
		Module: wasip1.NewModule(api),
	}, nil
}

// Close tears down the subsystem, closing every regular-file descriptor
// still open (spec.md §3 teardown).
func (s *Subsystem) Close() error {
	return s.fs.Close()
}

// bindStdio wraps cfg's standard stream configuration into fsapi.File
// values InitStdio can install. A nil stream binds to a /dev/null-style
// file, per spec.md §6's "byte streams or null".
func bindStdio(cfg Config) (stdin, stdout, stderr fsapi.File, err error) {
	if stdin, err = stdioFile(true, cfg.StandardInput, nil); err != nil {
		return nil, nil, nil, errors.Wrap(err, "hostfs: binding standard_input")
	}
	if stdout, err = stdioFile(false, nil, cfg.StandardOutput); err != nil {
		return nil, nil, nil, errors.Wrap(err, "hostfs: binding standard_output")
	}
	if stderr, err = stdioFile(false, nil, cfg.StandardError); err != nil {
		return nil, nil, nil, errors.Wrap(err, "hostfs: binding standard_error")
	}
	return stdin, stdout, stderr, nil
}

func stdioFile(isStdin bool, r io.Reader, w io.Writer) (fsapi.File, error) {
	if r == nil && w == nil {
		return sysfs.NewNullFile(), nil
	}
	return sysfs.NewStdioFile(isStdin, sysfs.NewStreamFile(r, w))
}

// bindDevNull installs the subsystem's built-in /dev/null binding,
// spec.md §8's "Opening /dev/null succeeds regardless of host filesystem"
// and SPEC_FULL.md's BindFile-based supplemented feature. It is bound after
// the preopens, at the next free descriptor (fsctx.FdPreopen when none are
// configured, FdPreopen+N after N preopens), and always grants
// full read/write rights: unlike a real preopen, its behavior does not
// depend on Config.DefaultPermissions.
func bindDevNull(fs *fsctx.FSContext) syscall.Errno {
	base, inheriting := rights.ComputeInitial(false, rights.ReadWrite, true, true)
	_, errno := fs.BindFile("/dev/null", sysfs.NewNullFile(), fsapi.FiletypeCharacterDevice, base, inheriting)
	return errno
}
