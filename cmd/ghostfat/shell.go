package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"
	"github.com/gokrazy/ghostfat/humanize"
	"github.com/spf13/cobra"
)

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactively act as the host of the volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				newShell(ctx, s).Run()
				return nil
			})
		},
	}
}

// sessionFunc adapts a session operation to an ishell command, checking
// the number of arguments.
func sessionFunc(s *session, nargs int, usage string, fn func(args []string) error) func(*ishell.Context) {
	return func(c *ishell.Context) {
		if len(c.Args) != nargs {
			c.Println("usage: " + usage)
			return
		}
		if err := fn(c.Args); err != nil {
			c.Err(err)
		}
	}
}

func newShell(ctx context.Context, s *session) *ishell.Shell {
	shell := ishell.New()
	shell.SetPrompt(s.cfg.Slug + " > ")
	shell.Println("ghostfat: " + humanize.Blocks(s.dev.Capacity()) + " attached, type help for commands")

	shell.AddCmd(&ishell.Cmd{
		Name: "info",
		Help: "show geometry, files and upload progress",
		Func: sessionFunc(s, 0, "info", func([]string) error {
			return s.printInfo(false)
		}),
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "ls",
		Help: "list the root directory",
		Func: sessionFunc(s, 0, "ls", func([]string) error {
			return s.ls()
		}),
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "cat",
		Help: "print a file",
		Func: sessionFunc(s, 1, "cat FILE", func(args []string) error {
			return s.cat(args[0])
		}),
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "hexdump",
		Help: "dump a block, e.g. hexdump 0 for the boot sector",
		Func: sessionFunc(s, 1, "hexdump LBA", func(args []string) error {
			lba, err := strconv.ParseUint(args[0], 0, 32)
			if err != nil {
				return err
			}
			return s.hexdump(uint32(lba))
		}),
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "upload",
		Help: "copy a local file into the writable file",
		Func: sessionFunc(s, 1, "upload FILE", func(args []string) error {
			return uploadFile(ctx, s, args[0])
		}),
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "rearm",
		Help: "accept another upload",
		Func: sessionFunc(s, 0, "rearm", func([]string) error {
			s.dev.Rearm()
			return nil
		}),
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "eject",
		Help: "remove and reinsert the medium",
		Func: sessionFunc(s, 0, "eject", func([]string) error {
			s.dev.Eject()
			if s.vol.UF2 != nil {
				s.vol.UF2.Reset()
			}
			return nil
		}),
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "state",
		Help: "show the upload progress",
		Func: sessionFunc(s, 0, "state", func([]string) error {
			st := s.dev.State()
			fmt.Fprintf(s.out, "received %s, high water %s, completed %v\n",
				humanize.Bytes(uint64(st.Received)),
				humanize.Bytes(uint64(st.HighWater)),
				st.Completed)
			return nil
		}),
	})

	return shell
}
