package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/lextrain/internal/config"
	"github.com/mattjoyce/lextrain/internal/doctor"
	"github.com/mattjoyce/lextrain/internal/inspect"
	"github.com/mattjoyce/lextrain/internal/log"
	"github.com/mattjoyce/lextrain/internal/prompt"
	"github.com/mattjoyce/lextrain/internal/resources"
	"github.com/mattjoyce/lextrain/internal/training"
	"github.com/mattjoyce/lextrain/internal/tui"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "train":
		return runTrain(args)
	case "check":
		return runCheck(args)
	case "watch":
		return runWatch(args)
	case "inspect":
		return runInspect(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`lextrain - Train lexical-selection rules from tagged corpora

Usage:
  lextrain <command> [flags]

Commands:
  train [config]        Run the training pipeline (default config: config.yaml)
  check [config]        Check tools, language data, corpora, and scripts
  inspect <cache-dir>   Show the recorded stages of the last run
  watch <cache-dir>     Follow a running training in a terminal UI
  version               Show version information
  help                  Show this help message

Train flags:
  --config PATH   Config file or directory
  --yes           Answer yes to every overwrite question
  --no-input      Answer every overwrite question with its default
`)
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: lextrain version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("lextrain %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalized
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

// configArg picks the config path from --config or a single positional
// argument.
func configArg(fs *flag.FlagSet, flagValue string) (string, error) {
	switch fs.NArg() {
	case 0:
		return flagValue, nil
	case 1:
		return fs.Arg(0), nil
	default:
		return "", fmt.Errorf("expected at most one config path, got %d", fs.NArg())
	}
}

func runTrain(args []string) int {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultFile, "Path to config file or directory")
	yes := fs.Bool("yes", false, "Answer yes to every overwrite question")
	noInput := fs.Bool("no-input", false, "Answer every overwrite question with its default")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	path, err := configArg(fs, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Usage: lextrain train [--config PATH] [--yes|--no-input] [config]\n%v\n", err)
		return 1
	}

	fmt.Println("Validating configuration ...")
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)

	var confirmer prompt.Confirmer = prompt.NewTerminal(os.Stdin, os.Stdout)
	switch {
	case *yes:
		confirmer = prompt.Fixed(true)
	case *noInput:
		confirmer = prompt.Defaults{}
	}

	tr, err := training.New(cfg, training.Deps{Confirmer: confirmer, Out: os.Stdout})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := tr.Run(ctx)
	if err != nil {
		return reportTrainError(err, tr.Key().DirName())
	}
	fmt.Printf("Training complete! Generated lrx file: %s\n", relToWorkDir(res.RulesPath))
	return 0
}

// reportTrainError prints a failed run's guidance and returns its exit status.
func reportTrainError(err error, cacheDir string) int {
	var abortErr *training.AbortError
	if errors.As(err, &abortErr) {
		fmt.Println(abortErr.Hint)
		return abortErr.Code
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var stageErr *training.StageError
	if errors.As(err, &stageErr) {
		fmt.Fprintln(os.Stderr, stageErr.Hint(cacheDir))
	}
	return 1
}

func relToWorkDir(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultFile, "Path to config file or directory")
	jsonOut := fs.Bool("json", false, "Output the report as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	path, err := configArg(fs, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Usage: lextrain check [--config PATH] [--json] [config]\n%v\n", err)
		return 1
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)

	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	result := doctor.New(cfg, resources.NewBundle(cfg.LangData), wd).Validate()

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runInspect(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output the report as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: lextrain inspect [--json] <cache-dir>")
		return 1
	}

	ctx := context.Background()
	var (
		out string
		err error
	)
	if *jsonOut {
		out, err = inspect.BuildJSONReport(ctx, fs.Arg(0))
	} else {
		out, err = inspect.BuildReport(ctx, fs.Arg(0))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println(strings.TrimRight(out, "\n"))
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	interval := fs.Duration("interval", time.Second, "Ledger poll interval")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: lextrain watch [--interval 1s] <cache-dir>")
		return 1
	}

	p := tea.NewProgram(tui.NewMonitor(fs.Arg(0), *interval))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
