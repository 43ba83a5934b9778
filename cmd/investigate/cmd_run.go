package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"diligence/internal/app"
	"diligence/internal/investigation/handler"
	"diligence/internal/investigation/models"
	"diligence/internal/platform/config"
	"diligence/internal/platform/logger"
	"diligence/pkg/requestcontext"
)

type runFlags struct {
	file    string
	sector  string
	timeout time.Duration
	verbose bool
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Investigate the subject described in a YAML request file",
		Example: "  investigate run --file acme.yaml\n" +
			"  investigate run --file jet.yaml --sector aviation --timeout 2m",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInvestigation(cmd, flags)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.file, "file", "f", "", "request file (YAML), - for stdin (required)")
	f.StringVar(&flags.sector, "sector", "", "override the sector declared in the file")
	f.DurationVar(&flags.timeout, "timeout", 0, "overall deadline (default from PIPELINE_INVESTIGATION_TIMEOUT)")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "log pipeline progress to stderr")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runInvestigation(cmd *cobra.Command, flags runFlags) error {
	req, err := readRequest(cmd.InOrStdin(), flags.file)
	if err != nil {
		return err
	}
	if flags.sector != "" {
		req.Sector = flags.sector
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flags.timeout > 0 {
		cfg.Pipeline.InvestigationLimit = flags.timeout
	}
	if !flags.verbose {
		cfg.Log.Level = "error"
	}
	cfg.Log.Format = "text"
	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log)

	ctx := requestcontext.WithTime(cmd.Context(), time.Now().UTC())
	ctx = requestcontext.WithClient(ctx, "investigate-cli/"+version)

	pipeline, err := app.Build(ctx, cfg, log, app.Options{Ephemeral: true})
	if err != nil {
		return err
	}
	defer pipeline.Close()

	inv, err := pipeline.Service.Investigate(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(handler.FromInvestigation(inv))
}

func readRequest(stdin io.Reader, path string) (models.Request, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return models.Request{}, fmt.Errorf("read request: %w", err)
	}

	var req models.Request
	if err := yaml.Unmarshal(raw, &req); err != nil {
		return models.Request{}, fmt.Errorf("parse request %s: %w", path, err)
	}
	return req, nil
}
