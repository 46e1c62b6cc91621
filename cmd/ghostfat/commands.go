package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gokrazy/ghostfat/humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// withSession runs fn with the volume selected by the flags attached.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, afero.NewOsFs(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func infoCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the geometry and files of the volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(_ context.Context, s *session) error {
				return s.printInfo(asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")
	return cmd
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List the root directory as a host sees it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(_ context.Context, s *session) error {
				return s.ls()
			})
		},
	}
}

func catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat FILE",
		Short: "Print a file of the volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(_ context.Context, s *session) error {
				return s.cat(args[0])
			})
		},
	}
}

func dumpCmd() *cobra.Command {
	var (
		out     string
		useZstd bool
	)
	cmd := &cobra.Command{
		Use:   "dump --out <image>",
		Short: "Write the synthesized volume to an image file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(_ context.Context, s *session) error {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				bw := bufio.NewWriter(f)
				var w io.Writer = bw
				var enc *zstd.Encoder
				if useZstd {
					enc, err = zstd.NewWriter(bw)
					if err != nil {
						return err
					}
					w = enc
				}
				n, err := s.dump(w)
				if err != nil {
					return err
				}
				if enc != nil {
					if err := enc.Close(); err != nil {
						return err
					}
				}
				if err := bw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(s.out, "wrote %s to %s\n", humanize.Bytes(uint64(n)), out)
				return f.Close()
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output image file path")
	cmd.Flags().BoolVar(&useZstd, "zstd", false, "compress the image with zstd")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE",
		Short: "Copy a file into the writable file of the volume, like a host would",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				return uploadFile(ctx, s, args[0])
			})
		},
	}
}

func uploadFile(ctx context.Context, s *session, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	ev, err := s.upload(ctx, bufio.NewReader(f), st.Size())
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "\n%s\n", ev.Kind)
	return nil
}
