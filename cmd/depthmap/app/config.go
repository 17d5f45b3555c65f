package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath     string
	SessionID  string
	InputFile  string
	OutputFile string
	Format     ImageFormat
	Theme      DepthTheme
	FontFile   string
	FrameNum   uint64
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format: ImagePNG,
		Theme:  ThermalTheme,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat, theme string
	flag.StringVar(&c.DBPath, "db", "", "Path to the session catalog database")
	flag.StringVar(&c.SessionID, "s", "", "Recording session ID to look up in the catalog")
	flag.StringVar(&c.InputFile, "i", "", "Path to a raw recording, bypasses the catalog")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.StringVar(&theme, "theme", string(ThermalTheme), "Color theme. [classic, grayscale, jungle, thermal, marine]")
	flag.StringVar(&c.FontFile, "font", "", "Path to a TTF font for annotations, built-in font when empty")
	flag.Uint64Var(&c.FrameNum, "frame", 0, "Frame number to render, last frame when omitted")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)
	theme = strings.ToLower(theme)

	var err error
	if c.InputFile == "" && c.DBPath == "" {
		err = errors.New("an input file or a catalog database is required")
	} else if c.InputFile == "" && c.SessionID == "" {
		err = errors.New("session id is required when reading from the catalog")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if _, ok := validDepthThemes[DepthTheme(theme)]; !ok {
		err = fmt.Errorf("invalid color theme: %s", theme)
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.Theme = DepthTheme(theme)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
