// Command register logs a saved model to a tracking run, registers it in the
// model catalog and writes the {"id": "<name>:<version>"} descriptor.
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
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to YAML config file")
	modelName := fs.String("model_name", "", "Name under which model will be registered")
	modelPath := fs.String("model_path", "", "Model directory")
	infoPath := fs.String("model_info_output_path", "", "Path to write model info JSON")
	if code, ok := app.ParseFlags(fs, args); !ok {
		return code
	}

	return app.Main(ctx, pipeline.StageRegister, *configPath, stderr, func(ctx context.Context, a *app.App, r *tracking.Run) error {
		opts := pipeline.RegisterOptions{
			ModelName:           *modelName,
			ModelPath:           *modelPath,
			ModelInfoOutputPath: *infoPath,
		}
		fmt.Fprintf(stdout, "Model name: %s\n", opts.ModelName)
		fmt.Fprintf(stdout, "Model path: %s\n", opts.ModelPath)
		fmt.Fprintf(stdout, "Model info output path: %s\n", opts.ModelInfoOutputPath)

		res, err := pipeline.Register(ctx, r, a.Tracker, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Registering %s as %s\n", res.URI, res.ID)
		fmt.Fprintf(stdout, "Wrote model info to: %s\n", opts.ModelInfoOutputPath)
		return nil
	})
}
