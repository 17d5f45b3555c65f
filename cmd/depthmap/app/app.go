package app

import (
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"

	"github.com/sensekit/depthsuite/internal/catalog"
	"github.com/sensekit/depthsuite/internal/recording"
	"github.com/sensekit/depthsuite/internal/sensor"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	inputFile := config.InputFile
	if inputFile == "" {
		resolved, err := resolveRecording(ctx, config)
		if err != nil {
			return err
		}
		inputFile = resolved
	}

	if _, err := os.Stat(inputFile); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("recording file '%s' does not exist: %w", inputFile, err)
	}

	return renderDepthMap(ctx, inputFile, config, logger)
}

// resolveRecording looks the session up in the catalog and returns the path
// of its raw capture file.
func resolveRecording(ctx context.Context, config *Config) (string, error) {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return "", fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := catalog.NewSqliteStore(config.DBPath)
	defer store.Close()

	info, err := store.Recording(ctx, config.SessionID)
	if err != nil {
		return "", fmt.Errorf("reading session from catalog: %w", err)
	}
	if info == nil {
		return "", fmt.Errorf("session '%s' not found in catalog", config.SessionID)
	}
	if info.Config.Format != recording.FormatRAW {
		return "", fmt.Errorf("session '%s' is a %s recording, only raw recordings can be rendered",
			config.SessionID, info.Config.Format)
	}

	for _, file := range info.Files {
		if strings.HasSuffix(file, ".raw") {
			return file, nil
		}
	}
	return "", fmt.Errorf("session '%s' has no raw capture file", config.SessionID)
}

func renderDepthMap(ctx context.Context, inputFile string, config *Config, logger *slog.Logger) error {
	rd, err := recording.OpenReader(inputFile)
	if err != nil {
		return fmt.Errorf("opening recording: %w", err)
	}
	defer rd.Close()

	var total int
	if meta := rd.Meta(); meta != nil {
		total = meta.FrameCount
	}

	logger.Info("reading depth frames, hold on tight, it will take a while")

	sum := NewDepthSummary()
	var target *sensor.Frame

	bar := pb.StartNew(total)
	for rd.Next() {
		frame := rd.Current()
		sum.Update(&frame)
		bar.Increment()

		if frame.Depth != nil && (config.FrameNum == 0 || frame.Number == config.FrameNum) {
			target = &frame
		}

		select {
		case <-ctx.Done():
			bar.Finish()
			return ctx.Err()
		default:
		}
	}
	bar.Finish()

	if err = rd.Error(); err != nil {
		return fmt.Errorf("reading recording: %w", err)
	}
	if target == nil {
		if config.FrameNum > 0 {
			return fmt.Errorf("frame %d not found in recording", config.FrameNum)
		}
		return errors.New("recording has no depth frames")
	}

	if meta := rd.Meta(); meta != nil && meta.TotalBytes > 0 {
		sum.TotalBytes = meta.TotalBytes
	} else if fi, statErr := os.Stat(inputFile); statErr == nil {
		sum.TotalBytes = fi.Size()
	}

	bounds := sum.Bounds()
	logger.Info("finished reading depth frames",
		slog.Group("stats",
			slog.String("sensorID", sum.SensorID),
			slog.Int("frames", sum.FrameCount),
			slog.String("start", sum.TimestampStart.Local().Format(time.DateTime)),
			slog.String("end", sum.TimestampEnd.Local().Format(time.DateTime)),
			slog.String("near", formatDepth(bounds.Near)),
			slog.String("far", formatDepth(bounds.Far)),
		))

	renderer, err := NewDepthRenderer(RenderConfig{
		ColorTheme: config.Theme,
		FontFile:   config.FontFile,
	})
	if err != nil {
		return fmt.Errorf("creating depth renderer: %w", err)
	}

	logger.Info("rendering depth map",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Uint64("frame", target.Number),
			slog.Int("width", target.Depth.Width),
			slog.Int("height", target.Depth.Height),
		))

	img, err := renderer.Render(target.Depth, sum)
	if err != nil {
		return fmt.Errorf("rendering depth map: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}
