// Package main is the voronoiseg command line tool.
package main

import (
	"fmt"
	"image"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"voronoiseg/internal/logging"
	"voronoiseg/pkg/colorspace"
	"voronoiseg/pkg/config"
	"voronoiseg/pkg/homogeneity"
	"voronoiseg/pkg/imageio"
	"voronoiseg/pkg/segmentation"
	"voronoiseg/pkg/visualization"
)

const (
	// Flags.
	flagConfig        = "config"
	flagDebug         = "debug"
	flagInput         = "input"
	flagOutput        = "output"
	flagPrior         = "prior"
	flagTruth         = "truth"
	flagBoundary      = "boundary"
	flagSeed          = "seed"
	flagMaxIterations = "max-iterations"
	flagSaveRounds    = "save-rounds"
	flagPath          = "path"
)

func main() {
	app := &cli.App{
		Name:  "voronoiseg",
		Usage: "segment images by iterative Voronoi refinement",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   "voronoiseg.yaml",
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "segment",
				Usage: "segment an image into a binary mask",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagInput, Aliases: []string{"i"}, Required: true, Usage: "input image `FILE`"},
					&cli.StringFlag{Name: flagOutput, Aliases: []string{"o"}, Value: "mask.png", Usage: "output mask `FILE`"},
					&cli.StringFlag{Name: flagPrior, Usage: "prior mask `FILE` bootstrapping statistics and seeds"},
					&cli.StringFlag{Name: flagTruth, Usage: "ground truth mask `FILE` to score the result against"},
					&cli.StringFlag{Name: flagBoundary, Usage: "save the object boundary image to `FILE`"},
					&cli.Uint64Flag{Name: flagSeed, Usage: "random seed overriding the configuration"},
					&cli.IntFlag{Name: flagMaxIterations, Usage: "maximum refinement rounds overriding the configuration"},
					&cli.BoolFlag{Name: flagSaveRounds, Usage: "save an overlay of every round"},
				},
				Action: segmentAction,
			},
			{
				Name:  "prior-stats",
				Usage: "print the statistics a prior mask derives",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagInput, Aliases: []string{"i"}, Required: true, Usage: "input image `FILE`"},
					&cli.StringFlag{Name: flagPrior, Required: true, Usage: "prior mask `FILE`"},
				},
				Action: priorStatsAction,
			},
			{
				Name:  "init-config",
				Usage: "write the default configuration",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagPath, Value: "voronoiseg.yaml", Usage: "configuration `FILE` to write"},
				},
				Action: initConfigAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads and validates the configuration and builds the logger
func setup(c *cli.Context) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(c.String(flagConfig))
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if c.Bool(flagDebug) {
		cfg.Logging.Level = "debug"
	}
	if c.IsSet(flagSeed) {
		cfg.Segmentation.RandomSeed = c.Uint64(flagSeed)
	}
	if c.IsSet(flagMaxIterations) {
		cfg.Segmentation.MaxIterations = c.Int(flagMaxIterations)
	}
	if c.Bool(flagSaveRounds) {
		cfg.Output.SaveIntermediaryResults = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), errors.Wrap(err, "invalid configuration")
	}

	logger, err := logging.New(cfg.Logging.Level, logging.Format(cfg.Logging.Format), os.Stderr)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

// newEngine builds an engine with the input image already set
func newEngine(cfg *config.Config, logger zerolog.Logger, input string) (*segmentation.Engine, image.Image, error) {
	params, err := cfg.Params()
	if err != nil {
		return nil, nil, err
	}
	engine, err := segmentation.NewEngine(params, logger)
	if err != nil {
		return nil, nil, err
	}
	img, err := imageio.Load(input)
	if err != nil {
		return nil, nil, err
	}
	if err := engine.SetInput(img); err != nil {
		return nil, nil, err
	}
	return engine, img, nil
}

func segmentAction(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}

	engine, img, err := newEngine(cfg, logger, c.String(flagInput))
	if err != nil {
		return err
	}

	fmt.Println("================================")
	fmt.Println("VORONOI DIAGRAM REFINEMENT SEGMENTATION")
	fmt.Println("================================")
	fmt.Printf("Input: %s (%dx%d, %s variant)\n",
		c.String(flagInput), img.Bounds().Dx(), img.Bounds().Dy(), engine.Params().Variant)

	if prior := c.String(flagPrior); prior != "" {
		mask, err := imageio.Load(prior)
		if err != nil {
			return err
		}
		ref, seeds, err := engine.TakeAPrior(mask)
		if err != nil {
			return errors.Wrap(err, "failed to take prior")
		}
		fmt.Printf("Prior: %s (%d initial generators)\n", prior, len(seeds))
		printStatistics("Prior object", *ref, engine.Params().Variant)
	} else if !engine.Params().ExplicitReference {
		logger.Warn().Msg("no prior mask and no reference statistics configured, every region is tested against zero")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	startTime := time.Now()
	result, err := engine.Run(ctx)
	if err != nil {
		return errors.Wrap(err, "segmentation failed")
	}
	processingTime := time.Since(startTime)

	output := c.String(flagOutput)
	if err := imageio.SaveMask(output, result.Mask, uint8(cfg.Output.MaskValue)); err != nil {
		return err
	}

	fmt.Printf("\nSegmentation %s after %d rounds in %.2f seconds\n",
		result.State, result.Iterations, processingTime.Seconds())
	fmt.Printf("Output mask saved to: %s\n", output)
	fmt.Printf("Inside pixels: %d of %d\n", result.InsideCount(), len(result.Mask.Pix))
	fmt.Printf("Final generators: %d\n", len(result.Generators))

	boundary := c.String(flagBoundary)
	if boundary == "" {
		boundary = cfg.Output.BoundaryImage
	}
	if boundary != "" && result.Diagram != nil {
		viewer := visualization.NewViewer(img, result.Diagram, result.Labels, result.Boundary)
		if err := visualization.SaveImage(viewer.Boundary(), boundary); err != nil {
			logger.Warn().Err(err).Msg("failed to save boundary image")
		} else {
			fmt.Printf("Boundary image saved to: %s\n", boundary)
		}
	}

	if truth := c.String(flagTruth); truth != "" {
		gt, err := imageio.LoadMask(truth)
		if err != nil {
			return err
		}
		m, err := segmentation.CompareMasks(result.Mask, gt)
		if err != nil {
			return err
		}
		fmt.Printf("\nValidation Metrics:\n")
		fmt.Printf("=======================================\n")
		fmt.Printf("Dice: %.4f\n", m.Dice)
		fmt.Printf("Jaccard: %.4f\n", m.Jaccard)
		fmt.Printf("Pixel accuracy: %.4f\n", m.Accuracy)
		fmt.Printf("Precision: %.4f\n", m.Precision)
		fmt.Printf("Recall: %.4f\n", m.Recall)
	}

	if cfg.Output.SaveIntermediaryResults {
		fmt.Println("\nRound overlays saved to:")
		fmt.Printf("%s\n", cfg.Output.IntermediaryDir)
	}
	return nil
}

func priorStatsAction(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}

	engine, _, err := newEngine(cfg, logger, c.String(flagInput))
	if err != nil {
		return err
	}
	mask, err := imageio.Load(c.String(flagPrior))
	if err != nil {
		return err
	}
	stats, err := engine.PriorStatistics(mask)
	if err != nil {
		return err
	}

	variant := engine.Params().Variant
	fmt.Printf("Object pixels: %d\n", stats.ObjectPixels)
	fmt.Printf("Background pixels: %d\n", stats.BackgroundPixels)
	fmt.Printf("Contour pixels: %d\n", stats.BoundaryPixels)
	printStatistics("Object", stats.Object, variant)
	if stats.BackgroundPixels > 0 {
		printStatistics("Background", stats.Background, variant)
		if variant == colorspace.Color {
			meanChs, stdChs := homogeneity.SelectChannels(stats.Object, stats.Background, homogeneity.ColorTestChannels)
			fmt.Printf("Suggested testMean: %v\n", meanChs)
			fmt.Printf("Suggested testStd: %v\n", stdChs)
		}
	}
	return nil
}

func initConfigAction(c *cli.Context) error {
	path := c.String(flagPath)
	if err := config.CreateDefaultConfigFile(path); err != nil {
		return err
	}
	fmt.Printf("Default configuration written to: %s\n", path)
	return nil
}

func printStatistics(title string, s homogeneity.ChannelStatistics, variant colorspace.Variant) {
	fmt.Printf("%s statistics:\n", title)
	for ch := 0; ch < s.Channels(); ch++ {
		name := "gray"
		if variant == colorspace.Color {
			name = colorspace.ChannelName(ch)
		}
		fmt.Printf("  %-8s mean %10.4f  std %10.4f\n", name, s.Mean[ch], s.Std[ch])
	}
}
