package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/shotcoach"
	"github.com/menta2k/shotcoach/internal/config"
	"github.com/menta2k/shotcoach/internal/transport"
	"github.com/menta2k/shotcoach/internal/utils"
	"github.com/menta2k/shotcoach/pkg/blur"
	"github.com/menta2k/shotcoach/pkg/client"
	"github.com/menta2k/shotcoach/pkg/composition"
	"github.com/menta2k/shotcoach/pkg/llamacpp"
	"github.com/menta2k/shotcoach/pkg/ollama"
	"github.com/menta2k/shotcoach/pkg/segmentation"
	"github.com/menta2k/shotcoach/pkg/types"
)

const usage = `usage: shotcoach <command> [flags]

commands:
  evaluate  score the composition of an image or a subject box
  blur      blur the background of an image or a directory of images
  serve     run the HTTP API
  config    write the default configuration to a file`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "evaluate":
		err = runEvaluate(args)
	case "blur":
		err = runBlur(args)
	case "serve":
		err = runServe(args)
	case "config":
		err = runConfig(args)
	case "version":
		fmt.Println(shotcoach.Version)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logrus.Fatal(err)
	}
}

// setup loads configuration and builds the coach it describes
func setup(configPath string, reg prometheus.Registerer) (*config.Config, *logrus.Logger, *shotcoach.Coach, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, nil, nil, err
	}

	locator, err := newLocator(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	blurConfig := blur.DefaultConfig()
	blurConfig.RadiusPerIntensity = cfg.Blur.RadiusPerIntensity

	opts := []shotcoach.Option{
		shotcoach.WithLogger(logger),
		shotcoach.WithLocator(locator),
		shotcoach.WithCacheConfig(cfg.Cache),
		shotcoach.WithSessionConfig(cfg.Session),
		shotcoach.WithBlurConfig(blurConfig),
	}
	if reg != nil {
		opts = append(opts, shotcoach.WithRegisterer(reg))
	}
	return cfg, logger, shotcoach.New(opts...), nil
}

// newLocator picks the subject locator for the configured vision backend
func newLocator(cfg *config.Config, logger logrus.FieldLogger) (shotcoach.Locator, error) {
	var vc client.VisionClient
	switch cfg.Vision.Backend {
	case config.BackendSaliency:
		return segmentation.NewSaliencyProvider(), nil
	case config.BackendOllama:
		url := cfg.Vision.URL
		if url == "" {
			url = "http://localhost:11434"
		}
		c, err := ollama.NewClient(url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		vc = c
	case config.BackendLlamaCpp:
		url := cfg.Vision.URL
		if url == "" {
			url = "http://localhost:8080"
		}
		vc = llamacpp.NewClient(url)
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Vision.Backend)
	}

	lc := segmentation.DefaultLocatorConfig(cfg.Vision.Model)
	lc.MaxDim = cfg.Vision.MaxDim
	lc.MinConfidence = cfg.Vision.MinConfidence
	return segmentation.NewLocatorProvider(vc, lc, logger), nil
}

func runEvaluate(args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	in := fs.String("in", "", "input image path or URL (jpg/png/webp)")
	name := fs.String("composition", string(composition.RuleOfThirdsID), "ruleOfThirds|centerFraming|symmetry")
	box := fs.String("box", "", "subject box x,y,w,h in normalized bottom-left coordinates (instead of -in)")
	frame := fs.String("frame", "1920x1080", "frame size for -box")
	configPath := fs.String("config", "", "configuration file (yaml or json)")
	_ = fs.Parse(args)

	if *in == "" && *box == "" {
		return fmt.Errorf("usage: shotcoach evaluate -in image.jpg|URL | -box x,y,w,h [-frame 1920x1080] [-composition ruleOfThirds]")
	}
	id, err := composition.ParseID(*name)
	if err != nil {
		return err
	}
	_, _, coach, err := setup(*configPath, nil)
	if err != nil {
		return err
	}

	var result composition.Result
	if *box != "" {
		obs, err := parseBox(*box)
		if err != nil {
			return err
		}
		size, err := parseSize(*frame)
		if err != nil {
			return err
		}
		if result, err = coach.Evaluate(id, obs, size, nil); err != nil {
			return err
		}
	} else {
		ctx := context.Background()
		img, err := coach.Processor().Load(ctx, *in)
		if err != nil {
			return err
		}
		if result, err = coach.EvaluateImage(ctx, id, img); err != nil {
			return err
		}
	}

	js, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(js))
	return nil
}

func runBlur(args []string) error {
	fs := flag.NewFlagSet("blur", flag.ExitOnError)
	in := fs.String("in", "", "input image, directory or URL")
	outDir := fs.String("out", "out", "output directory")
	intensity := fs.Float64("intensity", 10, "blur intensity (0-20)")
	preview := fs.Int("preview", 0, "render a preview with this long side instead of full size")
	ext := fs.String("ext", "jpg", "output format: jpg|png|webp")
	quality := fs.Int("quality", 0, "JPEG/WebP output quality (1-100), default from config")
	workers := fs.Int("workers", 2, "images processed in parallel for directories")
	configPath := fs.String("config", "", "configuration file (yaml or json)")
	_ = fs.Parse(args)

	if *in == "" {
		return fmt.Errorf("usage: shotcoach blur -in input.jpg|dir|URL [-out outdir] [-intensity 10] [-preview 512] [-ext jpg|png|webp]")
	}
	if *intensity < 0 || *intensity > transport.MaxIntensity {
		return fmt.Errorf("intensity must be between 0 and %d", transport.MaxIntensity)
	}
	cfg, logger, coach, err := setup(*configPath, nil)
	if err != nil {
		return err
	}
	if *quality <= 0 {
		*quality = cfg.Blur.Quality
	}
	if err := utils.EnsureDir(*outDir); err != nil {
		return err
	}

	inputs := []string{*in}
	if info, err := os.Stat(*in); err == nil && info.IsDir() {
		if inputs, err = utils.ListImageFiles(*in); err != nil {
			return err
		}
	}

	suffix := "_blur"
	if *preview > 0 {
		suffix = "_preview"
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(max(1, *workers))
	for _, input := range inputs {
		g.Go(func() error {
			img, err := coach.Processor().Load(ctx, input)
			if err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}

			var out image.Image
			if *preview > 0 {
				out = coach.GenerateBlurPreview(ctx, img, *intensity, *preview)
				coach.ClearCacheForImage(img)
			} else {
				out = coach.ApplyBackgroundBlur(ctx, img, *intensity, false)
			}

			path := utils.OutputFilename(localName(input), *outDir, suffix, *ext)
			if err := coach.Processor().Save(out, path, *quality); err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			logger.WithFields(logrus.Fields{"in": input, "out": path, "intensity": *intensity}).Info("wrote image")
			return nil
		})
	}
	return g.Wait()
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "configuration file (yaml or json)")
	addr := fs.String("addr", "", "listen address, overrides server.host and server.port")
	_ = fs.Parse(args)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cfg, logger, coach, err := setup(*configPath, reg)
	if err != nil {
		return err
	}
	if cfg.Server.Mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := transport.NewHandler(coach, transport.Config{
		PreviewSize: cfg.Blur.PreviewSize,
		Quality:     cfg.Blur.Quality,
		Version:     shotcoach.Version,
	}, logger)
	router := transport.InitRoutes(handler, reg, transport.RouterConfig{
		Timeout:   cfg.Server.Timeout,
		MaxUpload: cfg.Server.MaxUpload,
	})

	listen := cfg.Server.Addr()
	if *addr != "" {
		listen = *addr
	}
	srv := transport.NewServer(listen, router, cfg.Server.Timeout, cfg.Server.IdleTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		coach.RunSessions(ctx)
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", listen).Info("server started")
		return srv.Run()
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	out := fs.String("out", config.GetConfigPath(), "destination file (.yaml or .json)")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(args)

	if utils.FileExists(*out) && !*force {
		return fmt.Errorf("%s already exists, use -force to overwrite", *out)
	}
	if err := config.Default().SaveToFile(*out); err != nil {
		return err
	}
	fmt.Println(*out)
	return nil
}

// localName gives URL inputs a usable base name for output files
func localName(input string) string {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		base := filepath.Base(strings.SplitN(input, "?", 2)[0])
		if base == "." || base == "/" {
			return "download"
		}
		return base
	}
	return input
}

func parseBox(s string) (types.Observation, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return types.Observation{}, errors.New("box must be x,y,w,h")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return types.Observation{}, fmt.Errorf("box: %w", err)
		}
		v[i] = f
	}
	return types.Observation{X: v[0], Y: v[1], W: v[2], H: v[3]}, nil
}

func parseSize(s string) (types.Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return types.Size{}, errors.New("frame must be WIDTHxHEIGHT")
	}
	width, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return types.Size{}, fmt.Errorf("frame width: %w", err)
	}
	height, err := strconv.ParseFloat(h, 64)
	if err != nil {
		return types.Size{}, fmt.Errorf("frame height: %w", err)
	}
	return types.Size{Width: width, Height: height}, nil
}
