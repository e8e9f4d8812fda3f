package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"imglabeler/internal/codec"
	"imglabeler/internal/models"
	"imglabeler/pkg/config"
	"imglabeler/pkg/dataset"
	"imglabeler/pkg/export"
	"imglabeler/pkg/logging"
	"imglabeler/pkg/persistence"
	"imglabeler/pkg/preprocess"
	"imglabeler/pkg/randstate"
	"imglabeler/pkg/session"
)

const usage = `usage: imglabeler [label] [-config FILE] [-dataset FILE]
       imglabeler pack -images DIR -labels DIR -out FILE
       imglabeler export [-config FILE] -session FILE -out DIR
       imglabeler init-config -config FILE`

func main() {
	args := os.Args[1:]
	cmd := "label"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "label":
		err = runLabel(args, os.Stdin, os.Stdout)
	case "pack":
		err = runPack(args, os.Stdout)
	case "export":
		err = runExport(args, os.Stdout)
	case "init-config":
		err = runInitConfig(args, os.Stdout)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "imglabeler %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func runLabel(args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("label", flag.ContinueOnError)
	configPath := fs.String("config", "labeler.yaml", "YAML configuration file")
	datasetPath := fs.String("dataset", "", "Dataset artifact (overrides the configuration)")
	resume := fs.String("resume", "", "Session artifact to restore before labeling")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *datasetPath != "" {
		cfg.Dataset.Path = *datasetPath
	}

	logger := logging.NewOrNop(cfg.Logging)
	defer logger.Sync()
	logger = logger.With(zap.String("user", cfg.Dataset.Username))

	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	// seeding happens before the dataset loads, as the first checkpoint depends on it
	gens := randstate.New(cfg.Dataset.Seed)

	limit := codec.WithMaxPayload(cfg.MaxArtifactBytes())
	src, err := dataset.Load(cfg.Dataset.Path, limit)
	if err != nil {
		return err
	}
	sum := src.Summary()
	logger.Info("dataset loaded",
		zap.String("path", cfg.Dataset.Path),
		zap.Int("images", sum.Count),
		zap.Float64("label_coverage", sum.MeanCoverage))

	var renderer session.Renderer = &consoleRenderer{out: out, sigma: cfg.Preprocess.NoiseSigma, gens: gens}
	if cfg.Export.Enabled {
		png, err := export.NewRenderer(filepath.Join(cfg.Export.Dir, "overlays"))
		if err != nil {
			return err
		}
		renderer = multiRenderer{renderer, png}
	}

	sess, err := session.New(session.Params{
		Dataset:    src,
		Catalog:    catalog,
		Generators: gens,
		Renderer:   renderer,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "================================")
	fmt.Fprintln(out, "X-ray Diffraction Image Labeler")
	fmt.Fprintf(out, "Session %s, %d images\n", sess.ID(), sess.Len())
	fmt.Fprintln(out, "================================")

	if *resume != "" {
		if err := sess.LoadFile(*resume, limit); err != nil {
			return err
		}
	} else if _, _, err := sess.Display(); err != nil {
		return err
	}

	return (&inputMapper{sess: sess, cfg: cfg, out: out, log: logger, limit: limit}).run(in)
}

func runPack(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("pack", flag.ContinueOnError)
	imageDir := fs.String("images", "", "Directory of detector images")
	labelDir := fs.String("labels", "", "Directory of label images with matching names")
	output := fs.String("out", "fastdata.xrdl", "Dataset artifact to write")
	level := fs.Int("level", 0, "zstd compression level (0 for default)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *imageDir == "" || *labelDir == "" {
		fs.Usage()
		return errors.New("-images and -labels are required")
	}

	pairs, err := dataset.Import(*imageDir, *labelDir)
	if err != nil {
		return err
	}
	if err := dataset.Write(*output, pairs, *level); err != nil {
		return err
	}
	fmt.Fprintf(out, "Packed %d image pairs into %s\n", len(pairs), *output)
	return nil
}

func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	configPath := fs.String("config", "labeler.yaml", "YAML configuration file")
	sessionPath := fs.String("session", "", "Session artifact to export")
	outputDir := fs.String("out", "export/masks", "Directory for mask PNGs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sessionPath == "" {
		fs.Usage()
		return errors.New("-session is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	rec, err := persistence.LoadFile(*sessionPath, codec.WithMaxPayload(cfg.MaxArtifactBytes()))
	if err != nil {
		return err
	}
	n, err := export.All(rec, *outputDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Exported %d masks from session %s to %s\n", n, rec.SessionID, *outputDir)
	return nil
}

func runInitConfig(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("init-config", flag.ContinueOnError)
	configPath := fs.String("config", "labeler.yaml", "Configuration file to create")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := config.CreateDefaultConfigFile(*configPath); err != nil {
		return err
	}
	fmt.Fprintf(out, "Default configuration written to %s\n", *configPath)
	return nil
}

// consoleRenderer prints the caption and display window of each new image
type consoleRenderer struct {
	out   io.Writer
	sigma float64
	gens  *randstate.Generators
}

func (r *consoleRenderer) Render(f session.Frame) error {
	if !f.Refresh.Image {
		fmt.Fprintf(r.out, "%s  masked=%d labeled=%d\n",
			f.Title, f.Mask.Rows()*f.Mask.Cols()-f.Mask.Count(), f.Pair.Label.Count())
		return nil
	}
	img := preprocess.Jitter(f.Pair.Image, r.sigma, r.gens)
	lo, hi := preprocess.DisplayLevels(img)
	rows, cols := f.Pair.Shape()
	_, err := fmt.Fprintf(r.out, "%s  %dx%d  levels [%.3g, %.3g]\n", f.Title, rows, cols, lo, hi)
	return err
}

type multiRenderer []session.Renderer

func (m multiRenderer) Render(f session.Frame) error {
	var errs []error
	for _, r := range m {
		if err := r.Render(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// inputMapper turns text commands into session operations
type inputMapper struct {
	sess  *session.Session
	cfg   *config.Config
	out   io.Writer
	log   *zap.Logger
	limit codec.DecodeOption
}

func (m *inputMapper) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		quit, err := m.handle(fields)
		if err != nil {
			var warn *session.OutOfRangeWarning
			if errors.As(err, &warn) {
				fmt.Fprintf(m.out, "warning: %v\n", warn)
				continue
			}
			fmt.Fprintf(m.out, "error: %v\n", err)
			m.log.Error("command failed", zap.Strings("command", fields), zap.Error(err))
		}
		if quit {
			return nil
		}
	}
	return scanner.Err()
}

func (m *inputMapper) handle(fields []string) (quit bool, err error) {
	switch fields[0] {
	case "n", "next":
		_, err = m.sess.Next()
	case "p", "prev":
		_, err = m.sess.Prev()
	case "g", "go":
		if len(fields) != 2 {
			return false, errors.New("usage: g <index>")
		}
		idx, perr := strconv.Atoi(fields[1])
		if perr != nil {
			return false, fmt.Errorf("invalid index %q", fields[1])
		}
		_, err = m.sess.GoTo(idx)
	case "m", "mode":
		if len(fields) != 2 {
			return false, errors.New("usage: m off|label|label-range|mask")
		}
		mode, perr := models.ParseMouseMode(fields[1])
		if perr != nil {
			return false, perr
		}
		err = m.sess.SetMouseMode(mode)
	case "c", "click":
		if len(fields) != 3 {
			return false, errors.New("usage: c <x> <y>")
		}
		x, xerr := strconv.Atoi(fields[1])
		y, yerr := strconv.Atoi(fields[2])
		if xerr != nil || yerr != nil {
			return false, fmt.Errorf("invalid coordinates %q %q", fields[1], fields[2])
		}
		var outcome session.ClickOutcome
		outcome, err = m.sess.ClickAt(x, y)
		if err == nil && outcome == session.ClickPending {
			fmt.Fprintln(m.out, "first corner recorded")
		}
	case "s", "save":
		path := filepath.Join(m.cfg.Session.Dir, m.sess.DefaultFilename())
		if len(fields) > 1 {
			path = fields[1]
		}
		if err = m.sess.SaveFile(path, m.cfg.Session.CompressionLevel); err == nil {
			fmt.Fprintf(m.out, "State saved to %s\n", path)
		}
	case "l", "load":
		if len(fields) != 2 {
			return false, errors.New("usage: l <path>")
		}
		err = m.sess.LoadFile(fields[1], m.limit)
	case "e", "export":
		dir := filepath.Join(m.cfg.Export.Dir, "masks")
		if len(fields) > 1 {
			dir = fields[1]
		}
		var n int
		if n, err = export.All(m.sess.Snapshot(), dir); err == nil {
			fmt.Fprintf(m.out, "Exported %d masks to %s\n", n, dir)
		}
	case "i", "info":
		fmt.Fprintf(m.out, "%s  mode=%s pending=%d masks=%d\n",
			m.sess.Title(), m.sess.MouseMode(), len(m.sess.PendingClicks()), m.sess.MaskCount())
	case "q", "quit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
	return false, err
}
