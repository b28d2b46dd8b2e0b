package main

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/faultline/faultline-go/pkg/engine"
	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/runtime"
	"github.com/faultline/faultline-go/pkg/spec"
	"github.com/faultline/faultline-go/pkg/telemetry"
	"github.com/faultline/faultline-go/pkg/tracing"
	"github.com/faultline/faultline-go/pkg/treatment"
)

func init() {
	// Log as JSON instead of the default ASCII formatter.
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableSorting:         true,
		DisableLevelTruncation: true,
	})
}

type flags struct {
	specPath      string
	extensionPath string
	reportPath    string
	runs          int
	randomize     bool
	seed          int64
	accounting    bool
	buildTimeout  time.Duration
	prometheusURL string
	jaegerURL     string
}

func main() {
	var opts flags

	command := &cobra.Command{
		Use:          "faultline",
		Short:        "faultline runs timed fault injection experiments against a docker compose application and collects their telemetry",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	command.Flags().StringVarP(&opts.specPath, "spec", "s", "", "path of the experiment specification file")
	command.Flags().StringVar(&opts.extensionPath, "extensions", "", "path of an optional treatment extension file")
	command.Flags().StringVarP(&opts.reportPath, "report", "o", "", "report destination, overrides the spec")
	command.Flags().IntVarP(&opts.runs, "runs", "r", 1, "number of repetitions")
	command.Flags().BoolVar(&opts.randomize, "randomize", false, "randomize the treatment order per repetition")
	command.Flags().Int64Var(&opts.seed, "seed", 0, "fixed seed for --randomize, 0 seeds from the clock")
	command.Flags().BoolVar(&opts.accounting, "accounting", false, "sample resource usage during repetitions")
	command.Flags().DurationVar(&opts.buildTimeout, "build-timeout", engine.DefaultBuildTimeout, "readiness ceiling per repetition")
	command.Flags().StringVar(&opts.prometheusURL, "prometheus-url", "http://localhost:9090", "base url of the metrics store")
	command.Flags().StringVar(&opts.jaegerURL, "jaeger-url", "http://localhost:16686", "base url of the trace store")
	_ = command.MarkFlagRequired("spec")

	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts flags) error {
	if endpoint := os.Getenv(tracing.EndpointEnv); endpoint != "" {
		shutdown, err := tracing.InitOTelSDK(ctx, endpoint)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(ctx); err != nil {
				log.Errorf("Unable to shutdown the otel sdk, err: %v", err)
			}
		}()
	}

	experiment, err := spec.Load(opts.specPath)
	if err != nil {
		log.Errorf("Unable to load the experiment spec, err: %v", err)
		return err
	}
	log.Infof("Experiment Name: %v", experiment.Name)

	registry := treatment.NewRegistry()
	if opts.extensionPath != "" {
		extensions, err := spec.LoadExtensions(opts.extensionPath)
		if err != nil {
			log.Errorf("Unable to load the extension file, err: %v", err)
			return err
		}
		if err := spec.ApplyExtensions(registry, extensions); err != nil {
			log.Errorf("Unable to register the extensions, err: %v", err)
			return err
		}
	}

	metrics, err := telemetry.NewPrometheusBackend(opts.prometheusURL)
	if err != nil {
		log.Errorf("Unable to wire the metrics backend, err: %v", err)
		return err
	}
	collector := telemetry.NewCollector(metrics, telemetry.NewJaegerBackend(opts.jaegerURL))

	runner := engine.NewRunner(runtime.NewComposeRuntime(), experiment, registry, collector, engine.Options{
		Runs:         opts.runs,
		Randomize:    opts.randomize,
		Seed:         opts.seed,
		Accounting:   opts.accounting,
		BuildTimeout: opts.buildTimeout,
		ReportPath:   opts.reportPath,
	})

	report, err := runner.Run(ctx)
	if err != nil {
		log.Errorf("Experiment failed, err: %v", err)
		return err
	}
	if report.AnyRunFailed() {
		log.Errorf("One or more repetitions aborted, inspect the report for details")
		os.Exit(1)
	}
	return nil
}
