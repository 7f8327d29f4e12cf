// Package cli implements the pathpredict command line tool.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pathpredict/pathpredict/internal/app"
	"github.com/pathpredict/pathpredict/internal/config"
	"github.com/pathpredict/pathpredict/internal/geocoding"
	"github.com/pathpredict/pathpredict/internal/planner"
	"github.com/pathpredict/pathpredict/pkg/geo"
)

// Planner is the route risk pipeline used by the commands.
type Planner interface {
	PlanRoute(ctx context.Context, req planner.PlanRequest) (*planner.RouteRiskReport, error)
	RecommendDeparture(ctx context.Context, req planner.DepartureRequest) (*planner.DepartureSearchResult, error)
	GetForecastSeries(ctx context.Context, req planner.ForecastRequest) (*planner.ForecastSeries, error)
}

// Geocoder resolves place names and coordinates.
type Geocoder interface {
	Search(ctx context.Context, query string, limit int) ([]geocoding.Place, error)
	Reverse(ctx context.Context, location geo.Coordinate) (*geocoding.Place, error)
}

// Services are the collaborators a command runs against.
type Services struct {
	Planner  Planner
	Geocoder Geocoder
	Close    func() error
}

// BuildFunc assembles services from configuration.
type BuildFunc func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Services, error)

// Options configures the root command.
type Options struct {
	Out io.Writer
	Err io.Writer

	// Build defaults to the production wiring.
	Build BuildFunc
}

// Output formats.
const (
	OutputJSON = "json"
	OutputYAML = "yaml"
)

type runtime struct {
	opts     Options
	v        *viper.Viper
	services *Services
}

// NewRootCommand returns the pathpredict command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.Build == nil {
		opts.Build = buildServices
	}

	rt := &runtime{opts: opts, v: viper.New()}

	root := &cobra.Command{
		Use:           "pathpredict",
		Short:         "Weather risk assessment for road trips",
		Long:          `pathpredict splits a driving route into segments, estimates the weather each segment will see when the vehicle reaches it, and scores the resulting travel risk.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if rt.services != nil && rt.services.Close != nil {
				return rt.services.Close()
			}
			return nil
		},
	}
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)

	root.PersistentFlags().String("config", "", "config file (YAML)")
	root.PersistentFlags().StringP("output", "o", OutputJSON, "output format: json or yaml")
	root.PersistentFlags().Bool("verbose", false, "log service activity to stderr")
	_ = rt.v.BindPFlags(root.PersistentFlags())
	rt.v.SetEnvPrefix("PATHPREDICT_CLI")
	rt.v.AutomaticEnv()

	root.AddCommand(
		newPlanCommand(rt),
		newRecommendCommand(rt),
		newForecastCommand(rt),
		newGeocodeCommand(rt),
	)

	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, opts Options, args []string) int {
	root := NewRootCommand(opts)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

// setup loads configuration and builds services for a command run.
// requireRouting rejects configurations without a routing API key.
func (rt *runtime) setup(ctx context.Context, requireRouting bool) error {
	switch rt.output() {
	case OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("unsupported output format %q", rt.output())
	}

	cfg, err := config.Load(rt.v.GetString("config"))
	if err != nil {
		return err
	}
	if err := cfg.Validate(requireRouting); err != nil {
		return err
	}

	logger := zerolog.Nop()
	if rt.v.GetBool("verbose") {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: rt.opts.Err}).With().Timestamp().Logger()
	}

	services, err := rt.opts.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	rt.services = services
	return nil
}

func (rt *runtime) output() string {
	return rt.v.GetString("output")
}

// render writes v in the selected output format.
func (rt *runtime) render(v interface{}) error {
	if rt.output() == OutputYAML {
		enc := yaml.NewEncoder(rt.opts.Out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(rt.opts.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	return nil
}

func buildServices(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Services, error) {
	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Services{
		Planner:  c.Planner,
		Geocoder: c.Geocoder,
		Close:    c.Close,
	}, nil
}

func parseCoordinate(flag, value string) (geo.Coordinate, error) {
	if value == "" {
		return geo.Coordinate{}, fmt.Errorf("--%s is required", flag)
	}
	c, err := geo.Parse(value)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return c, nil
}
