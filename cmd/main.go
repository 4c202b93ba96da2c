package main

import (
	"log"
	"os"

	"github.com/dargueta/floppyscope/utilities/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func newApp() *cli.App {
	var restoreLogger func()

	return &cli.App{
		Name:  "floppyscope",
		Usage: "Inspect and extract FAT12 floppy disk images",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log debug messages to stderr",
			},
		},
		Before: func(ctx *cli.Context) error {
			var err error
			_, restoreLogger, err = logging.Install(ctx.Bool("verbose"))
			return err
		},
		After: func(ctx *cli.Context) error {
			if restoreLogger != nil {
				restoreLogger()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "Show the boot sector and allocation summary of an image",
				Action:    showInfo,
				ArgsUsage: "IMAGE",
				Flags:     []cli.Flag{outputFormatFlag()},
			},
			{
				Name:      "tree",
				Usage:     "List every file and directory in an image",
				Action:    showTree,
				ArgsUsage: "IMAGE",
				Flags: []cli.Flag{
					outputFormatFlag(),
					&cli.BoolFlag{
						Name:  "contents",
						Usage: "print each file's contents under it (text format only)",
					},
				},
			},
			{
				Name:      "cat",
				Usage:     "Write the contents of a file in an image to stdout",
				Action:    catFile,
				ArgsUsage: "IMAGE  PATH",
			},
			{
				Name:      "extract",
				Usage:     "Copy every file and directory in an image to a directory",
				Action:    extractImage,
				ArgsUsage: "IMAGE  DESTINATION",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "progress", Usage: "show a progress bar"},
					&cli.StringFlag{Name: "hash", Usage: "print the MD5 or SHA1 digest of every file"},
					&cli.BoolFlag{
						Name:  "preserve-times",
						Usage: "set modification times from the directory entries",
					},
				},
			},
			{
				Name:      "pack",
				Usage:     "Convert an image between raw, gzip, zstd and xz, optionally RLE8-encoded",
				Action:    packImage,
				ArgsUsage: "INPUT_FILE  OUTPUT_FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "container format of the output: raw, gzip, zstd or xz",
						Value: "raw",
					},
					&cli.BoolFlag{Name: "rle8", Usage: "run-length encode the output"},
				},
			},
		},
	}
}

func outputFormatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "output format: text, json or yaml",
		Value:   "text",
	}
}

func logger() *zap.Logger {
	return zap.L().Named("floppyscope")
}
