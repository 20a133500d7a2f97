package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/resale-estimator/internal/appraise"
	"github.com/sells-group/resale-estimator/internal/features"
)

var (
	estimateLat     float64
	estimateLon     float64
	estimateStorey  int
	estimateArea    int
	estimateLease   int
	estimateAddress string
	estimateJSON    bool
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate the resale price of one flat",
	Long:  "Builds the feature vector for a flat at --lat/--lon (or a geocoded --address) and prints the estimated resale price.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("estimate"); err != nil {
			return err
		}

		listing := features.Listing{
			StoreyRange:    estimateStorey,
			FloorArea:      estimateArea,
			RemainingLease: estimateLease,
		}
		if err := listing.Validate(); err != nil {
			return err
		}

		hasPoint := cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon")
		if !hasPoint && estimateAddress == "" {
			return eris.New("estimate: --lat and --lon, or --address, are required")
		}

		e, err := initEnv(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer e.Close()

		lat, lon := estimateLat, estimateLon
		if !hasPoint {
			loc, err := e.Geocoder.Search(ctx, estimateAddress)
			if err != nil {
				return eris.Wrap(err, "estimate: geocode address")
			}
			zap.L().Info("address resolved",
				zap.String("address", loc.Address),
				zap.Float64("lat", loc.Latitude),
				zap.Float64("lon", loc.Longitude),
			)
			lat, lon = loc.Latitude, loc.Longitude
		}

		res, err := e.Appraiser.Appraise(ctx, lat, lon, listing)
		if err != nil {
			return err
		}

		if estimateJSON {
			return writeResultJSON(os.Stdout, res)
		}
		formatResult(os.Stdout, res)
		return nil
	},
}

func init() {
	f := estimateCmd.Flags()
	f.Float64Var(&estimateLat, "lat", 0, "latitude in degrees")
	f.Float64Var(&estimateLon, "lon", 0, "longitude in degrees")
	f.IntVar(&estimateStorey, "storey", 0, "storey range (lower floor of the band)")
	f.IntVar(&estimateArea, "area", 0, "floor area in square metres")
	f.IntVar(&estimateLease, "lease", 0, "remaining lease in years")
	f.StringVar(&estimateAddress, "address", "", "address to geocode instead of --lat/--lon")
	f.BoolVar(&estimateJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(estimateCmd)
}

func writeResultJSON(out io.Writer, res *appraise.Result) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(res), "estimate: encode result")
}

// formatResult writes the price followed by every feature in vector order.
func formatResult(out io.Writer, res *appraise.Result) {
	_, _ = fmt.Fprintf(out, "price:       %s\n", res.Price)
	_, _ = fmt.Fprintf(out, "town:        %s\n", res.Town)
	_, _ = fmt.Fprintf(out, "mrt station: %s\n", res.Station)
	_, _ = fmt.Fprintf(out, "version:     %s\n\n", res.Version)

	if res.Features == nil {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FEATURE\tVALUE")
	_, _ = fmt.Fprintln(w, "-------\t-----")
	for _, k := range res.Features.Keys() {
		v, _ := res.Features.Get(k)
		if v.Categorical {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", k, v.Label)
		} else {
			_, _ = fmt.Fprintf(w, "%s\t%g\n", k, v.Number)
		}
	}
	_ = w.Flush()
}
