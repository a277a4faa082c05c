package main

// Render a local PDF into page JPEGs the way mobile previews do:
//   go run ./cmd/rasterize resume.pdf --out ./out --max-pages 10

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"cvalue-web/internal/render"
)

const jpegDataPrefix = "data:image/jpeg;base64,"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		outDir   string
		maxPages int
		scale    float64
	)
	cmd := &cobra.Command{
		Use:          "rasterize <file.pdf>",
		Short:        "Render PDF pages to JPEG files",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), args[0], outDir, maxPages, scale)
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "./out", "output directory for page images")
	cmd.Flags().IntVar(&maxPages, "max-pages", 10, "maximum number of pages to render")
	cmd.Flags().Float64Var(&scale, "scale", 1.5, "render scale relative to PDF points")
	return cmd
}

func run(ctx context.Context, stdout io.Writer, path, outDir string, maxPages int, scale float64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	seq, err := render.NewLocalRasterizer(maxPages, scale).Rasterize(ctx, data)
	if err != nil {
		return fmt.Errorf("rasterize %s: %w", path, err)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for {
		img, err := seq.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		raw, err := decodeDataURL(img.Source)
		if err != nil {
			return fmt.Errorf("page %d: %w", img.Page, err)
		}
		out := filepath.Join(outDir, fmt.Sprintf("%s_page_%02d.jpg", base, img.Page))
		if err := os.WriteFile(out, raw, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", out)
	}
	if seq.Truncated() {
		fmt.Fprintf(stdout, "rendered %d of %d pages\n", seq.Len(), seq.Total())
	}
	return nil
}

func decodeDataURL(src string) ([]byte, error) {
	if !strings.HasPrefix(src, jpegDataPrefix) {
		return nil, fmt.Errorf("unexpected image source")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(src, jpegDataPrefix))
}
