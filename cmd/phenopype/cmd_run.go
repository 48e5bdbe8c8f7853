package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Imageomics/phenopype/internal/config"
	"github.com/Imageomics/phenopype/internal/engine"
	"github.com/Imageomics/phenopype/internal/export"
	"github.com/Imageomics/phenopype/internal/logging"
	"github.com/Imageomics/phenopype/internal/ops"
	"github.com/Imageomics/phenopype/internal/session"
	"github.com/Imageomics/phenopype/internal/templates"
	"github.com/Imageomics/phenopype/internal/watch"
	"github.com/Imageomics/phenopype/internal/workspace"
)

var runFlags struct {
	image     string
	tag       string
	configRef string
	template  string
	mode      string
	resize    float64
	skip      bool
	autosave  bool
	autoload  bool
	fixNames  bool
	debug     bool
	headless  bool
	dbPath    string
	debounce  time.Duration
	logLevel  string
	logFormat string
}

var runCmd = &cobra.Command{
	Use:   "run [image]",
	Short: "Run a pipeline session against an image",
	Long: `Run a live pipeline session: the config file is watched for edits and
the pipeline re-executes after every save until you terminate.

Usage:
  phenopype run fish.jpg --tag v1
  phenopype run fish.jpg --tag v1 --template segmentation1
  phenopype run fish.jpg --tag v1 --headless --skip

The config file defaults to <prefix>_pype_config_<tag>.yaml next to the
image. With --template it is created from a builtin template when
missing. The results database path is read from --db or the
PHENOPYPE_DB environment variable; empty disables the database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.image, "image", "", "Path to the session image")
	f.StringVarP(&runFlags.tag, "tag", "t", "v1", "Session tag (keys config and result files)")
	f.StringVarP(&runFlags.configRef, "config", "c", "", "Config path (default: <prefix>_pype_config_<tag>.yaml next to the image)")
	f.StringVar(&runFlags.template, "template", "", "Builtin template to seed a missing config from")
	f.StringVar(&runFlags.mode, "mode", string(workspace.IngestLink), "Image ingest mode: copy, mod, link")
	f.Float64Var(&runFlags.resize, "resize", 1, "Resize factor applied on load (forces mode=mod)")
	f.BoolVar(&runFlags.skip, "skip", false, "Skip the session if tagged results already exist")
	f.BoolVar(&runFlags.autosave, "autosave", true, "Persist results on termination")
	f.BoolVar(&runFlags.autoload, "autoload", true, "Restore previously saved annotations at start")
	f.BoolVar(&runFlags.fixNames, "fix-names", true, "Rewrite deprecated method names in the config")
	f.BoolVar(&runFlags.debug, "debug", false, "Abort the pass on the first method error")
	f.BoolVar(&runFlags.headless, "headless", false, "Single pass, no visualization gate")
	f.StringVar(&runFlags.dbPath, "db", "", "Results database path (default: $PHENOPYPE_DB)")
	f.DurationVar(&runFlags.debounce, "debounce", watch.DefaultDebounce, "Config watch debounce")
	f.StringVar(&runFlags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&runFlags.logFormat, "log-format", "text", "Log format: text, json")
}

func runRun(cmd *cobra.Command, args []string) error {
	level, err := logging.ParseLevel(runFlags.logLevel)
	if err != nil {
		return err
	}
	logging.Init(level, runFlags.logFormat)

	imagePath := runFlags.image
	if imagePath == "" && len(args) > 0 {
		imagePath = args[0]
	}
	if imagePath == "" {
		return fmt.Errorf("image path is required\n\nUsage: phenopype run <image> --tag <tag>")
	}
	if err := config.CheckTag(runFlags.tag); err != nil {
		return err
	}

	buf, err := workspace.LoadForSession(imagePath, workspace.IngestMode(runFlags.mode), runFlags.resize)
	if err != nil {
		return err
	}

	dir := filepath.Dir(imagePath)
	prefix := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
	ws, err := workspace.New(buf, dir, prefix, runFlags.tag)
	if err != nil {
		return err
	}

	configPath := runFlags.configRef
	if configPath == "" {
		configPath = filepath.Join(dir, config.FileName(prefix, runFlags.tag))
	}
	if err := ensureConfig(configPath, runFlags.template); err != nil {
		return err
	}

	eng, err := engine.New(ops.Builtin(), ops.LegacyAliases())
	if err != nil {
		return err
	}
	watcher, err := watch.New(configPath, runFlags.debounce)
	if err != nil {
		return err
	}

	exporter := &export.FileExporter{}
	dbPath := runFlags.dbPath
	if dbPath == "" {
		dbPath = os.Getenv("PHENOPYPE_DB")
	}
	if dbPath != "" {
		results, err := export.OpenResults(dbPath)
		if err != nil {
			watcher.Stop()
			return err
		}
		defer results.Close()
		exporter.Results = results
	}

	var gate session.Gate
	if !runFlags.headless {
		gate = &stdinGate{in: os.Stdin, out: os.Stdout}
	}

	s, err := session.New(ws, ws.Annotations, eng, watcher, gate, exporter, session.Options{
		ConfigPath: configPath,
		Tag:        runFlags.tag,
		Skip:       runFlags.skip,
		Autoload:   runFlags.autoload,
		Autosave:   runFlags.autosave,
		FixNames:   runFlags.fixNames,
		Debug:      runFlags.debug,
		Visual:     !runFlags.headless,
	})
	if err != nil {
		watcher.Stop()
		return err
	}

	err = s.Run()
	if errors.Is(err, session.ErrSkipped) {
		fmt.Printf("%s: results for tag %q exist, skipped\n", prefix, runFlags.tag)
		return nil
	}
	return err
}

// ensureConfig seeds a missing config file from a builtin template.
func ensureConfig(path, template string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if template == "" {
		return fmt.Errorf("config %q does not exist; create it or pass --template (see phenopype templates)", path)
	}
	data, err := templates.Raw(template)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("seed config %q: %w", path, err)
	}
	fmt.Printf("created %s from template %s\n", path, template)
	return nil
}
