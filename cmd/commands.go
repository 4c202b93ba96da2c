package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dargueta/floppyscope/exporter"
	"github.com/dargueta/floppyscope/file_systems/fat12"
	"github.com/dargueta/floppyscope/imagesource"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func requireArgs(ctx *cli.Context, count int) error {
	if ctx.NArg() != count {
		return fmt.Errorf(
			"%s expects %d argument(s) but got %d; usage: %s %s",
			ctx.Command.Name, count, ctx.NArg(), ctx.Command.Name, ctx.Command.ArgsUsage)
	}
	return nil
}

func openVolume(imagePath string) (*fat12.Volume, error) {
	image, err := imagesource.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("can't load %s: %w", imagePath, err)
	}

	logger().Debug(
		"loaded image",
		zap.String("path", imagePath),
		zap.Stringer("format", image.Format),
		zap.Bool("rle8", image.RLE8),
		zap.Int64("size", image.Size()))

	volume, err := fat12.Open(image, fat12.WithLogger(logger()))
	if err != nil {
		return nil, fmt.Errorf("can't decode %s: %w", imagePath, err)
	}
	return volume, nil
}

func showInfo(ctx *cli.Context) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}
	if err := checkOutputFormat(ctx.String("format")); err != nil {
		return err
	}

	volume, err := openVolume(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	return writeInfo(ctx.App.Writer, volume, ctx.String("format"))
}

func showTree(ctx *cli.Context) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}
	if err := checkOutputFormat(ctx.String("format")); err != nil {
		return err
	}

	volume, err := openVolume(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	return writeTree(ctx.App.Writer, volume, ctx.String("format"), ctx.Bool("contents"))
}

func catFile(ctx *cli.Context) error {
	if err := requireArgs(ctx, 2); err != nil {
		return err
	}

	volume, err := openVolume(ctx.Args().Get(0))
	if err != nil {
		return err
	}

	item, err := volume.Lookup(ctx.Args().Get(1))
	if err != nil {
		return err
	}
	contents, err := fat12.ReadFileBytes(item)
	if err != nil {
		return fmt.Errorf("%s: %w", ctx.Args().Get(1), err)
	}

	_, err = ctx.App.Writer.Write(contents)
	return err
}

func extractImage(ctx *cli.Context) error {
	if err := requireArgs(ctx, 2); err != nil {
		return err
	}

	volume, err := openVolume(ctx.Args().Get(0))
	if err != nil {
		return err
	}

	exp := exporter.Exporter{
		Fs:            afero.NewOsFs(),
		Location:      ctx.Args().Get(1),
		Hash:          ctx.String("hash"),
		PreserveTimes: ctx.Bool("preserve-times"),
		Logger:        logger(),
	}

	if ctx.Bool("progress") {
		bar := progressbar.NewOptions64(
			exporter.TotalFileBytes(volume),
			progressbar.OptionSetWriter(ctx.App.ErrWriter),
			progressbar.OptionSetDescription("extracting"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)
		exp.Progress = func(itemPath string, written int64) {
			bar.Add(int(written))
		}
		defer bar.Finish()
	}

	result, err := exp.Export(volume)
	if result.Digests != nil {
		// Walk again so the digests come out in directory order.
		volume.Walk(func(itemPath string, item fat12.Item) error {
			if digest, ok := result.Digests[itemPath]; ok {
				fmt.Fprintf(ctx.App.Writer, "%s  %s\n", digest, itemPath)
			}
			return nil
		})
	}

	logger().Info(
		"extraction finished",
		zap.Int("files", result.Files),
		zap.Int("directories", result.Directories),
		zap.Int64("bytes", result.Bytes))
	return err
}

func packImage(ctx *cli.Context) error {
	if err := requireArgs(ctx, 2); err != nil {
		return err
	}

	format, err := imagesource.ParseFormat(ctx.String("format"))
	if err != nil {
		return err
	}

	sourceFilePath := ctx.Args().Get(0)
	outputFilePath := ctx.Args().Get(1)

	image, err := imagesource.Open(sourceFilePath)
	if err != nil {
		return fmt.Errorf("can't load %s: %w", sourceFilePath, err)
	}
	data, err := io.ReadAll(io.NewSectionReader(image, 0, image.Size()))
	if err != nil {
		return err
	}

	outFile, err := os.Create(outputFilePath)
	if err != nil {
		return fmt.Errorf("failed to open file for writing: `%v`: %w", outputFilePath, err)
	}
	defer outFile.Close()

	err = imagesource.Compress(outFile, data, format, ctx.Bool("rle8"))
	if err != nil {
		return fmt.Errorf("error compressing %s: %w", sourceFilePath, err)
	}

	logger().Info(
		"packed image",
		zap.String("input", sourceFilePath),
		zap.Stringer("inputFormat", image.Format),
		zap.Stringer("outputFormat", format),
		zap.Int("size", len(data)))
	return outFile.Close()
}
