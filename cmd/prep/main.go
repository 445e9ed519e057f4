// Command prep reads the raw used-car table, label-encodes Segment and writes
// the train/test partitions.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pricepipe/pricepipe/app"
	"github.com/pricepipe/pricepipe/pipeline"
	"github.com/pricepipe/pricepipe/tracking"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("prep", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to YAML config file")
	rawData := fs.String("raw_data", "", "Path to raw data")
	trainData := fs.String("train_data", "", "Path to train dataset")
	testData := fs.String("test_data", "", "Path to test dataset")
	ratio := fs.Float64("test_train_ratio", 0.2, "Test-train ratio")
	if code, ok := app.ParseFlags(fs, args); !ok {
		return code
	}
	set := app.Provided(fs)

	return app.Main(ctx, pipeline.StagePrep, *configPath, stderr, func(ctx context.Context, a *app.App, r *tracking.Run) error {
		opts := pipeline.PrepOptions{
			RawData:        *rawData,
			TrainData:      *trainData,
			TestData:       *testData,
			TestTrainRatio: *ratio,
		}
		if !set["test_train_ratio"] {
			opts.TestTrainRatio = a.Config.Prep.TestTrainRatio
		}

		fmt.Fprintf(stdout, "Raw data path: %s\n", opts.RawData)
		fmt.Fprintf(stdout, "Train dataset output path: %s\n", opts.TrainData)
		fmt.Fprintf(stdout, "Test dataset path: %s\n", opts.TestData)
		fmt.Fprintf(stdout, "Test-train ratio: %g\n", opts.TestTrainRatio)

		res, err := pipeline.Prep(ctx, r, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Saved training data to: %s (%d rows)\n", res.TrainPath, res.TrainRows)
		fmt.Fprintf(stdout, "Saved testing data to: %s (%d rows)\n", res.TestPath, res.TestRows)
		fmt.Fprintf(stdout, "Run ID: %s\n", r.ID())
		return nil
	})
}
