// Command trip is the CLI surface for the walking-tour planner: plan a new
// tour, list saved tours, and show a tour (optionally a past version).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"tripweave/pkg/config"
	"tripweave/pkg/distancecache"
	"tripweave/pkg/geoprovider/googlemaps"
	"tripweave/pkg/llm"
	"tripweave/pkg/logging"
	"tripweave/pkg/model"
	"tripweave/pkg/planerr"
	"tripweave/pkg/planner"
	"tripweave/pkg/probe"
	"tripweave/pkg/request"
	"tripweave/pkg/selector/llmselector"
	"tripweave/pkg/tourstore"
	"tripweave/pkg/tracker"
)

// Exit codes per the planning CLI's contract: 0 success, 2 invalid
// arguments, 3 not found, 4 infeasible, 5 I/O failure.
const (
	exitOK         = 0
	exitUsage      = 2
	exitNotFound   = 3
	exitInfeasible = 4
	exitIO         = 5
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitUsage)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "plan":
		err = runPlan(args)
	case "list":
		err = runList(args)
	case "show":
		err = runShow(args)
	case "-h", "--help", "help":
		usage()
		os.Exit(exitOK)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(exitUsage)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  trip plan --city CITY --days N [flags]
  trip list [--city CITY]
  trip show TOUR_ID --city CITY --language LANG [--version N]`)
}

// exitCodeFor maps a planerr.Kind to the CLI's exit code contract.
func exitCodeFor(err error) int {
	switch planerr.KindOf(err) {
	case planerr.KindNotFound:
		return exitNotFound
	case planerr.KindInvalid:
		return exitUsage
	case planerr.KindInfeasible:
		return exitInfeasible
	case planerr.KindIO:
		return exitIO
	default:
		return 1
	}
}

// env bundles the components every subcommand needs, built once from the
// loaded config.
type env struct {
	cfg     *config.Config
	planner *planner.Planner
	store   *tourstore.Store
}

func newEnv(ctx context.Context) (*env, func(), error) {
	cfg, err := config.Load("configs/trip.yaml")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	cleanup, err := logging.Init(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	secrets := config.LoadedSecrets()
	tr := tracker.New()

	reqClient := request.New(
		time.Duration(cfg.GeoProvider.Timeout),
		cfg.Request.Retries,
		time.Duration(cfg.Request.Backoff.BaseDelay),
		tr,
	)
	geoProvider := googlemaps.New(reqClient, secrets.GoogleMapsAPIKey)

	store := tourstore.New(cfg.Store.RootDir)
	cache := distancecache.New(cfg.Store.RootDir)

	selectorClient, err := llmselector.New(ctx, secrets.GeminiAPIKey, cfg.Selector)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to initialize selector LLM client: %w", err)
	}

	results := probe.Run(ctx, []probe.Probe{
		{
			Name:     "Selector LLM models",
			Check:    func(context.Context) error { return selectorClient.ValidateModels() },
			Critical: true,
		},
	})
	if err := probe.AnalyzeResults(results); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("startup checks failed: %w", err)
	}

	p := &planner.Planner{
		CatalogRoot: cfg.Store.RootDir,
		Selector:    llmselector.NewPort(selectorClient),
		Cache:       cache,
		Provider:    geoProvider,
		Store:       store,
		Weights:     cfg.SolverWeights,
		Solver:      cfg.Sequencer,
	}

	return &env{cfg: cfg, planner: p, store: store}, cleanup, nil
}

func runPlan(args []string) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	city := fs.String("city", "", "city slug to plan in (required)")
	days := fs.Int("days", 0, "number of days (required)")
	interests := fs.String("interests", "", "comma-separated interests")
	mustSee := fs.String("must-see", "", "comma-separated must-see POI slugs")
	avoid := fs.String("avoid", "", "comma-separated POI slugs to avoid")
	pace := fs.String("pace", string(model.PaceNormal), "relaxed|normal|packed")
	walking := fs.String("walking", string(model.WalkingModerate), "low|moderate|high")
	language := fs.String("language", "en", "tour language")
	mode := fs.String("mode", string(model.ModeILP), "simple|ilp")
	startDate := fs.String("start-date", "", "ISO-8601 start date")
	startLoc := fs.String("start-location", "", "lat,lon")
	endLoc := fs.String("end-location", "", "lat,lon")
	_ = fs.Bool("save", true, "persist the plan to the Tour Store (the store always persists a newly planned tour; accepted for CLI surface compatibility)")
	if err := fs.Parse(args); err != nil {
		return planerr.Invalid("CLI_BAD_FLAGS", err.Error())
	}

	if *city == "" || *days <= 0 {
		return planerr.Invalid("CLI_MISSING_REQUIRED", "--city and --days are required")
	}

	startPt, err := parsePoint(*startLoc)
	if err != nil {
		return planerr.Invalid("CLI_BAD_START_LOCATION", err.Error())
	}
	endPt, err := parsePoint(*endLoc)
	if err != nil {
		return planerr.Invalid("CLI_BAD_END_LOCATION", err.Error())
	}

	input := model.PlanInput{
		City:      *city,
		Days:      *days,
		Interests: splitCSV(*interests),
		MustSee:   splitCSV(*mustSee),
		Avoid:     splitCSV(*avoid),
		Preferences: model.Preferences{
			Pace:             model.Pace(*pace),
			WalkingTolerance: model.WalkingTolerance(*walking),
		},
		Mode:          model.SolveMode(*mode),
		StartLocation: startPt,
		EndLocation:   endPt,
		StartDate:     *startDate,
		Language:      *language,
	}

	ctx := context.Background()
	e, cleanup, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	tour, meta, issues, err := e.planner.Plan(ctx, input)
	if err != nil {
		return err
	}

	for _, issue := range issues {
		slog.Warn("plan produced an issue", "severity", issue.Severity, "message", issue.Message)
	}

	return printJSON(struct {
		TourID   string         `json:"tour_id"`
		Tour     *model.Tour    `json:"tour"`
		Metadata *model.Metadata `json:"metadata"`
	}{TourID: meta.TourID, Tour: tour, Metadata: meta})
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	city := fs.String("city", "", "filter by city slug")
	if err := fs.Parse(args); err != nil {
		return planerr.Invalid("CLI_BAD_FLAGS", err.Error())
	}

	cfg, err := config.Load("configs/trip.yaml")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	store := tourstore.New(cfg.Store.RootDir)

	summaries, err := store.List()
	if err != nil {
		return err
	}
	if *city != "" {
		filtered := summaries[:0]
		for _, s := range summaries {
			if s.City == *city {
				filtered = append(filtered, s)
			}
		}
		summaries = filtered
	}
	return printJSON(summaries)
}

func runShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	city := fs.String("city", "", "city slug (required)")
	language := fs.String("language", "", "tour language (required)")
	version := fs.Int("version", 0, "version number; 0 means current")
	explain := fs.Bool("explain", false, "print the selector's reasoning summary instead of the tour JSON")
	if err := fs.Parse(args); err != nil {
		return planerr.Invalid("CLI_BAD_FLAGS", err.Error())
	}
	if fs.NArg() < 1 {
		return planerr.Invalid("CLI_MISSING_TOUR_ID", "tour ID is required")
	}
	tourID := fs.Arg(0)
	if *city == "" || *language == "" {
		return planerr.Invalid("CLI_MISSING_REQUIRED", "--city and --language are required")
	}

	cfg, err := config.Load("configs/trip.yaml")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	store := tourstore.New(cfg.Store.RootDir)

	meta, err := store.LoadMetadata(*city, tourID)
	if err != nil {
		return err
	}
	history := meta.VersionHistory[*language]
	if len(history) == 0 {
		return planerr.NotFound("TOUR_LANGUAGE_NOT_FOUND", "no versions recorded for this language")
	}
	versionString := history[len(history)-1].VersionString
	if *version > 0 {
		versionString, err = resolveVersionString(meta, *language, *version)
		if err != nil {
			return err
		}
	}

	if *explain {
		record, err := store.LoadGenerationRecord(*city, tourID, *language, versionString)
		if err != nil {
			return err
		}
		fmt.Println(llm.WordWrap(record.Selection.ReasoningSummary, 80))
		return nil
	}

	if *version > 0 {
		tour, err := store.LoadVersion(*city, tourID, *language, versionString)
		if err != nil {
			return err
		}
		return printJSON(tour)
	}

	tour, err := store.Load(*city, tourID, *language)
	if err != nil {
		return err
	}
	return printJSON(tour)
}

func resolveVersionString(meta *model.Metadata, language string, version int) (string, error) {
	for _, v := range meta.VersionHistory[language] {
		if v.Version == version {
			return v.VersionString, nil
		}
	}
	return "", planerr.NotFound("TOUR_VERSION_NOT_FOUND", "no such tour version")
}

func parsePoint(raw string) (*model.Point, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("expected lat,lon, got %q", raw)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude in %q: %w", raw, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude in %q: %w", raw, err)
	}
	return &model.Point{Lat: lat, Lon: lon}, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return planerr.IO("CLI_ENCODE_FAILED", "failed to encode output", err)
	}
	return nil
}
