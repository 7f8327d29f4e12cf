package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/pathpredict/pathpredict/internal/geocoding"
	"github.com/pathpredict/pathpredict/internal/planner"
	"github.com/pathpredict/pathpredict/pkg/geo"
)

func newPlanCommand(rt *runtime) *cobra.Command {
	var from, to, depart string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Score the weather risk of a route for one departure time",
		Example: `  pathpredict plan --from 52.37,4.90 --to 52.09,5.12
  pathpredict plan --from 52.37,4.90 --to 52.09,5.12 --depart 2026-01-15T07:30:00Z -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			origin, err := parseCoordinate("from", from)
			if err != nil {
				return err
			}
			destination, err := parseCoordinate("to", to)
			if err != nil {
				return err
			}
			departure, err := parseTime("depart", depart)
			if err != nil {
				return err
			}

			if err := rt.setup(cmd.Context(), true); err != nil {
				return err
			}

			report, err := rt.services.Planner.PlanRoute(cmd.Context(), planner.PlanRequest{
				Origin:        origin,
				Destination:   destination,
				DepartureTime: departure,
			})
			if err != nil {
				return err
			}
			return rt.render(report)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "origin as lat,lon")
	cmd.Flags().StringVar(&to, "to", "", "destination as lat,lon")
	cmd.Flags().StringVar(&depart, "depart", "", "departure time (RFC 3339, default now)")

	return cmd
}

func newRecommendCommand(rt *runtime) *cobra.Command {
	var from, to string
	var window int
	var quiet bool

	cmd := &cobra.Command{
		Use:     "recommend",
		Short:   "Find the lowest-risk departure within a window of hours",
		Example: `  pathpredict recommend --from 52.37,4.90 --to 52.09,5.12 --window 24`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			origin, err := parseCoordinate("from", from)
			if err != nil {
				return err
			}
			destination, err := parseCoordinate("to", to)
			if err != nil {
				return err
			}

			if err := rt.setup(cmd.Context(), true); err != nil {
				return err
			}

			req := planner.DepartureRequest{
				Origin:      origin,
				Destination: destination,
				WindowHours: window,
			}

			var bar *progressbar.ProgressBar
			if !quiet {
				bar = progressbar.NewOptions(window,
					progressbar.OptionSetWriter(rt.opts.Err),
					progressbar.OptionSetDescription("scanning departures"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
				req.Progress = func(completed, _ int) {
					_ = bar.Set(completed)
				}
			}

			result, err := rt.services.Planner.RecommendDeparture(cmd.Context(), req)
			if bar != nil {
				_ = bar.Finish()
			}
			if err != nil {
				return err
			}
			return rt.render(result)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "origin as lat,lon")
	cmd.Flags().StringVar(&to, "to", "", "destination as lat,lon")
	cmd.Flags().IntVar(&window, "window", planner.DefaultWindowHours, "departure window in hours")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")

	return cmd
}

func newForecastCommand(rt *runtime) *cobra.Command {
	var at, start string

	cmd := &cobra.Command{
		Use:     "forecast",
		Short:   "Show the hourly forecast for a location",
		Example: `  pathpredict forecast --at 52.37,4.90`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			location, err := parseCoordinate("at", at)
			if err != nil {
				return err
			}
			startTime, err := parseTime("start", start)
			if err != nil {
				return err
			}

			if err := rt.setup(cmd.Context(), false); err != nil {
				return err
			}

			series, err := rt.services.Planner.GetForecastSeries(cmd.Context(), planner.ForecastRequest{
				Location: location,
				Start:    startTime,
			})
			if err != nil {
				return err
			}
			return rt.render(series)
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "location as lat,lon")
	cmd.Flags().StringVar(&start, "start", "", "first forecast hour (RFC 3339, default now)")

	return cmd
}

func newGeocodeCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geocode",
		Short: "Look up places and coordinates",
	}

	var limit int
	search := &cobra.Command{
		Use:     "search <query>",
		Short:   "Find places matching a name",
		Example: `  pathpredict geocode search "Utrecht Centraal"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.setup(cmd.Context(), false); err != nil {
				return err
			}
			places, err := rt.services.Geocoder.Search(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return rt.render(places)
		},
	}
	search.Flags().IntVar(&limit, "limit", geocoding.DefaultSearchLimit, "maximum number of results")

	reverse := &cobra.Command{
		Use:     "reverse <lat,lon>",
		Short:   "Describe the place at a coordinate",
		Example: `  pathpredict geocode reverse 52.0894,5.1102`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			location, err := geo.Parse(args[0])
			if err != nil {
				return err
			}
			if err := rt.setup(cmd.Context(), false); err != nil {
				return err
			}
			place, err := rt.services.Geocoder.Reverse(cmd.Context(), location)
			if errors.Is(err, geocoding.ErrNotFound) {
				return fmt.Errorf("no place found at %s", location)
			}
			if err != nil {
				return err
			}
			return rt.render(place)
		},
	}

	cmd.AddCommand(search, reverse)
	return cmd
}

func parseTime(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be RFC 3339: %w", flag, err)
	}
	return t.UTC(), nil
}
