// Command wasip1fs-explore mounts a host directory through the hostfs
// subsystem and drives its typed wasip1.API directly, standing in for the
// WebAssembly runtime that spec.md §1 puts out of scope. It exists so the
// filesystem host stack can be exercised end to end without embedding a
// real guest module.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path"
	"runtime/debug"

	"github.com/urfave/cli/v3"

	"github.com/wasip1fs/hostfs"
	"github.com/wasip1fs/hostfs/internal/abi"
	"github.com/wasip1fs/hostfs/internal/fsapi"
	"github.com/wasip1fs/hostfs/internal/rights"
)

var (
	version  = ""
	revision = ""
)

func init() {
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = build.Main.Version
	for _, s := range build.Settings {
		if s.Key == "vcs.revision" {
			revision = s.Value
		}
	}
	if version == "" {
		version = revision
	}
	if version == "" {
		version = "(none)"
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "wasip1fs-explore",
		Usage: "mount a host directory and drive the wasip1 filesystem host directly",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dir",
				Aliases:  []string{"d"},
				Value:    ".",
				OnlyOnce: true,
				Usage:    "host directory to preopen at guest path /",
			},
		},
		Commands: []*cli.Command{lsCommand, catCommand, writeCommand},
		Version:  version,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// mount builds a Subsystem preopening cmd's --dir flag at guest path "/"
// with read+write, create and delete rights, the permissive default a
// local exploration tool wants.
func mount(cmd *cli.Command) (*hostfs.Subsystem, error) {
	dir := cmd.String("dir")
	abs, err := filepathAbs(dir)
	if err != nil {
		return nil, err
	}
	return hostfs.New(hostfs.Config{
		HostRootDirectory: abs,
		PreopenedDirectories: []hostfs.Preopen{
			{HostPath: abs, GuestPath: "/", Access: rights.ReadWrite},
		},
		StandardInput:      os.Stdin,
		StandardOutput:     os.Stdout,
		StandardError:      os.Stderr,
		DefaultPermissions: rights.ReadWrite,
		AllowFileCreation:  true,
		AllowFileDeletion:  true,
	})
}

func filepathAbs(p string) (string, error) {
	if path.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return path.Join(wd, p), nil
}

var lsCommand = &cli.Command{
	Name:      "ls",
	Usage:     "list a guest directory via path_open + fd_readdir",
	ArgsUsage: "<guest-path>",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		guestPath := "/"
		if cmd.Args().Len() > 0 {
			guestPath = cmd.Args().First()
		}
		sub, err := mount(cmd)
		if err != nil {
			return err
		}
		defer sub.Close()

		fd, errno := sub.API.PathOpen(hostfs.RootFD, fsapi.SymlinkFollow, guestPath,
			fsapi.OflagsDirectory, rights.FD_READDIR, 0, 0)
		if errno != 0 {
			return fmt.Errorf("path_open %s: %v", guestPath, errno)
		}
		defer sub.API.FdClose(fd)

		var cookie uint64
		for {
			page, errno := sub.API.FdReaddir(fd, cookie, 4096)
			if errno != 0 {
				return fmt.Errorf("fd_readdir %s: %v", guestPath, errno)
			}
			if len(page) == 0 {
				break
			}
			var advanced bool
			for len(page) >= abi.DirentSize {
				next := binary.LittleEndian.Uint64(page[0:8])
				namlen := binary.LittleEndian.Uint32(page[16:20])
				page = page[abi.DirentSize:]
				if uint32(len(page)) < namlen {
					break // truncated record at the window boundary
				}
				name := string(page[:namlen])
				page = page[namlen:]
				if name != "." && name != ".." {
					fmt.Println(name)
				}
				cookie = next
				advanced = true
			}
			if !advanced {
				break
			}
		}
		return nil
	},
}

var catCommand = &cli.Command{
	Name:      "cat",
	Usage:     "print a guest file's contents via path_open + fd_read",
	ArgsUsage: "<guest-path>",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() == 0 {
			return fmt.Errorf("cat: missing guest path")
		}
		guestPath := cmd.Args().First()
		sub, err := mount(cmd)
		if err != nil {
			return err
		}
		defer sub.Close()

		fd, errno := sub.API.PathOpen(hostfs.RootFD, fsapi.SymlinkFollow, guestPath, 0, rights.FD_READ, 0, 0)
		if errno != 0 {
			return fmt.Errorf("path_open %s: %v", guestPath, errno)
		}
		defer sub.API.FdClose(fd)

		for {
			chunk, errno := sub.API.FdRead(fd, 4096)
			if errno != 0 {
				return fmt.Errorf("fd_read %s: %v", guestPath, errno)
			}
			if len(chunk) == 0 {
				break
			}
			os.Stdout.Write(chunk)
		}
		return nil
	},
}

var writeCommand = &cli.Command{
	Name:      "write",
	Usage:     "write stdin to a guest file via path_open(O_CREAT) + fd_write",
	ArgsUsage: "<guest-path>",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() == 0 {
			return fmt.Errorf("write: missing guest path")
		}
		guestPath := cmd.Args().First()
		sub, err := mount(cmd)
		if err != nil {
			return err
		}
		defer sub.Close()

		fd, errno := sub.API.PathOpen(hostfs.RootFD, fsapi.SymlinkFollow, guestPath,
			fsapi.OflagsCreat|fsapi.OflagsTrunc, rights.FD_WRITE, 0, 0)
		if errno != 0 {
			return fmt.Errorf("path_open %s: %v", guestPath, errno)
		}
		defer sub.API.FdClose(fd)

		buf := make([]byte, 4096)
		for {
			n, readErr := os.Stdin.Read(buf)
			if n > 0 {
				if _, errno := sub.API.FdWrite(fd, buf[:n]); errno != 0 {
					return fmt.Errorf("fd_write %s: %v", guestPath, errno)
				}
			}
			if readErr != nil {
				break
			}
		}
		return nil
	},
}
