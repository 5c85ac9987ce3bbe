package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"creative-backend/cmd"
	"creative-backend/internal/config"
	"creative-backend/internal/core"
	"creative-backend/internal/orchestrator"
	"creative-backend/pkg/api"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

type outcome struct {
	file   string
	result *api.EvaluationResult
	err    error
}

func loadBrief(path string) (api.EvaluationInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.EvaluationInput{}, fmt.Errorf("error reading brief: %w", err)
	}
	var input api.EvaluationInput
	if err := json.Unmarshal(data, &input); err != nil {
		return api.EvaluationInput{}, fmt.Errorf("error parsing brief: %w", err)
	}
	input = core.NormalizeInput(input)
	if validation := core.Validate(input); !validation.ReadyToEvaluate {
		return input, fmt.Errorf("brief is not ready to evaluate: %s", core.ValidationSummary(validation))
	}
	return input, nil
}

// evaluate runs one brief, advancing bar once per settled role.
func evaluate(ctx context.Context, orch *orchestrator.Orchestrator, path string, bar *progressbar.ProgressBar) outcome {
	total := orch.Registry().Len()
	input, err := loadBrief(path)
	if err != nil {
		_ = bar.Add(total)
		return outcome{file: path, err: err}
	}

	settled := 0
	out := outcome{file: path}
	for event := range orch.Stream(ctx, uuid.New(), input) {
		switch e := event.(type) {
		case api.RoleCompleteEvent:
			settled++
			_ = bar.Add(1)
		case api.CompleteEvent:
			out.result = &e.Result
		case api.TerminatedEvent:
			out.result = &e.Result
		case api.ErrorEvent:
			out.err = errors.New(e.Message)
		}
	}
	_ = bar.Add(total - settled)
	if out.result == nil && out.err == nil {
		out.err = ctx.Err()
	}
	return out
}

func writeResult(dir string, o outcome) error {
	data, err := json.MarshalIndent(o.result, "", "  ")
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(o.file), filepath.Ext(o.file)) + ".result.json"
	return os.WriteFile(filepath.Join(dir, name), data, 0644)
}

func main() {
	outDir := flag.String("out", "", "directory to write result json files to")
	parallel := flag.Int("parallel", 2, "number of briefs evaluated at once")

	cmd.LoadEnvFile()

	files := flag.Args()
	if len(files) == 0 {
		log.Fatalf("usage: evaluate [-env file] [-out dir] [-parallel n] brief.json...")
	}

	cfg, err := config.Parse[config.EvaluationConfig]()
	if err != nil {
		log.Fatalf("%v", err)
	}

	flushTraces := cmd.SetupTracing("creative-evaluate", cfg.OtelEndpoint)
	defer flushTraces()

	orch, _, err := cmd.CreateOrchestrator(cfg)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	if *outDir != "" {
		if err := os.MkdirAll(*outDir, os.ModePerm); err != nil {
			log.Fatalf("error creating output directory: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bar := progressbar.NewOptions(len(files)*orch.Registry().Len(),
		progressbar.OptionSetDescription("⏳ evaluating"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	outcomes := make([]outcome, len(files))
	var g errgroup.Group
	g.SetLimit(max(*parallel, 1))
	for i, file := range files {
		g.Go(func() error {
			outcomes[i] = evaluate(ctx, orch, file, bar)
			return nil
		})
	}
	_ = g.Wait()
	_ = bar.Finish()

	failed := 0
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			fmt.Printf("%s: error: %v\n", o.file, o.err)
			continue
		}
		fmt.Printf("%s: %s (index %.2f, confidence %s)\n", o.file, o.result.FinalReport.Verdict, o.result.FinalEffectivenessIndex, o.result.FinalReport.ConfidenceLevel)
		if o.result.HardGateFailed {
			fmt.Printf("  hard gate failed: %s\n", o.result.FailedHardGateRole)
		}
		if *outDir != "" {
			if err := writeResult(*outDir, o); err != nil {
				log.Printf("error writing result for %s: %v", o.file, err)
			}
		}
	}

	if failed > 0 {
		flushTraces()
		os.Exit(1)
	}
}
