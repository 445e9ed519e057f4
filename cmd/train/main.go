// Command train fits a random forest regressor on the prepared partitions,
// reports the test MSE and saves the model artifact.
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
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to YAML config file")
	trainData := fs.String("train_data", "", "Path to train dataset")
	testData := fs.String("test_data", "", "Path to test dataset")
	modelOutput := fs.String("model_output", "", "Path of output model")
	nEstimators := fs.Int("n_estimators", 50, "The number of trees in the forest")
	maxDepth := fs.Int("max_depth", 3, "The maximum depth of the tree")
	if code, ok := app.ParseFlags(fs, args); !ok {
		return code
	}
	set := app.Provided(fs)

	return app.Main(ctx, pipeline.StageTrain, *configPath, stderr, func(ctx context.Context, a *app.App, r *tracking.Run) error {
		opts := pipeline.TrainOptions{
			TrainData:   *trainData,
			TestData:    *testData,
			ModelOutput: *modelOutput,
			NEstimators: *nEstimators,
			MaxDepth:    *maxDepth,
			LogPlots:    a.Config.Tracking.LogPlots,
		}
		if !set["n_estimators"] {
			opts.NEstimators = a.Config.Train.NEstimators
		}
		if !set["max_depth"] {
			opts.MaxDepth = a.Config.Train.MaxDepth
		}

		fmt.Fprintf(stdout, "Train dataset input path: %s\n", opts.TrainData)
		fmt.Fprintf(stdout, "Test dataset input path: %s\n", opts.TestData)
		fmt.Fprintf(stdout, "Model output path: %s\n", opts.ModelOutput)
		fmt.Fprintf(stdout, "Number of Estimators: %d\n", opts.NEstimators)
		fmt.Fprintf(stdout, "Max Depth: %d\n", opts.MaxDepth)

		res, err := pipeline.Train(ctx, r, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Mean Square error of RandomForest Regressor on test set: %.2f\n", res.MSE)
		fmt.Fprintf(stdout, "RMSE: %.2f, MAE: %.2f, R2: %.4f\n", res.RMSE, res.MAE, res.R2)
		fmt.Fprintf(stdout, "Saved model to: %s\n", res.ModelOutput)
		if res.PlotPath != "" {
			fmt.Fprintf(stdout, "Saved plot to: %s\n", res.PlotPath)
		}
		fmt.Fprintf(stdout, "Run ID: %s\n", r.ID())
		return nil
	})
}
