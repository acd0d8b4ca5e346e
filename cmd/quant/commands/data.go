package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/s0_data"
	"github.com/wonny/aegis-t0/internal/s0_data/quality"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Market data tools",
	Long: `Checks and imports market data.

Commands:
  check    run the integrity gate over every session
  import   load csv/parquet files into Postgres
  export   write the configured dataset as parquet files`,
}

var (
	dataCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "Run the integrity gate over every session",
		Long: `Validates every instrument session of the configured dataset and
prints coverage per session plus every exclusion.

Example:
  go run ./cmd/quant data check
  DATA_PATH=data/bars.parquet DATA_SOURCE=parquet go run ./cmd/quant data check`,
		RunE: runDataCheck,
	}

	dataImportCmd = &cobra.Command{
		Use:   "import",
		Short: "Load files into Postgres",
		Long: `Reads bars, auxiliary signals and instruments from files and upserts
them into the data schema, so DATA_SOURCE=postgres can serve them.

Example:
  go run ./cmd/quant data import --bars data/bars.csv --aux data/aux.csv`,
		RunE: runDataImport,
	}

	dataExportCmd = &cobra.Command{
		Use:   "export",
		Short: "Write the configured dataset as parquet",
		Long: `Loads bars and auxiliary signals from the configured source (csv,
postgres or a URL) and writes bars.parquet and aux.parquet into --out.

Example:
  DATA_SOURCE=postgres go run ./cmd/quant data export --out data/`,
		RunE: runDataExport,
	}

	exportDir         string
	importBars        string
	importAux         string
	importInstruments string
	checkVerbose      bool
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataCheckCmd, dataImportCmd, dataExportCmd)

	dataCheckCmd.Flags().BoolVar(&checkVerbose, "all", false, "print every session, not only failing ones")

	dataImportCmd.Flags().StringVar(&importBars, "bars", "", "intraday bars file (required)")
	dataImportCmd.Flags().StringVar(&importAux, "aux", "", "auxiliary signals file")
	dataImportCmd.Flags().StringVar(&importInstruments, "instruments", "", "instrument metadata file")
	dataImportCmd.MarkFlagRequired("bars")

	dataExportCmd.Flags().StringVar(&exportDir, "out", ".", "output directory")
}

func runDataCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	market, err := a.loadMarket(cmd.Context())
	if err != nil {
		return err
	}

	gate := quality.NewQualityGate(quality.DefaultConfig())
	ids := market.Series.Instruments()
	sessions := market.Series.Sessions()

	PrintHeader("Data Integrity Check")
	PrintKeyValue("Sessions", fmt.Sprintf("%d", len(sessions)), 12)
	PrintKeyValue("Instruments", fmt.Sprintf("%d", len(market.Candidates())), 12)
	PrintKeyValue("Benchmark", market.BenchmarkID, 12)
	fmt.Println()

	widths := []int{10, 7, 7, 9, 9, 6}
	PrintTableHeader([]string{"Session", "Total", "Valid", "Coverage", "Benchmark", "Gate"}, widths)

	var exclusions []contracts.Exclusion
	failed := 0
	for _, s := range sessions {
		res := gate.Check(market.Series, s, ids, market.BenchmarkID)
		snap := res.Snapshot
		exclusions = append(exclusions, snap.Exclusions...)
		if !res.Passed {
			failed++
		}
		if !checkVerbose && res.Passed && snap.Benchmark && len(snap.Exclusions) == 0 {
			continue
		}
		gateMark := "✅"
		if !res.Passed {
			gateMark = "❌"
		}
		PrintTableRow([]string{
			contracts.SessionKey(s),
			fmt.Sprintf("%d", snap.Total),
			fmt.Sprintf("%d", snap.Valid),
			fmt.Sprintf("%.1f%%", snap.Coverage()*100),
			fmt.Sprintf("%v", snap.Benchmark),
			gateMark,
		}, widths)
	}

	if len(exclusions) > 0 {
		fmt.Println("\n🚫 Exclusions")
		sort.SliceStable(exclusions, func(i, j int) bool {
			return exclusions[i].InstrumentID < exclusions[j].InstrumentID
		})
		for _, ex := range exclusions {
			fmt.Printf("   • %s %s: %s\n", contracts.SessionKey(ex.SessionDate), ex.InstrumentID, ex.Reason)
		}
	}

	fmt.Println()
	if failed > 0 {
		PrintWarning(fmt.Sprintf("%d of %d sessions below minimum coverage", failed, len(sessions)))
		return nil
	}
	PrintSuccess(fmt.Sprintf("%d sessions checked, %d exclusions", len(sessions), len(exclusions)))
	return nil
}

func runDataImport(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	src, err := s0_data.NewSource(s0_data.FormatFromPath(importBars), s0_data.Paths{
		Bars:        importBars,
		Aux:         importAux,
		Instruments: importInstruments,
	})
	if err != nil {
		return err
	}
	ds, err := src.Load(ctx)
	if err != nil {
		return err
	}

	prices := s0_data.NewPriceRepository(a.db.Pool)
	if err := prices.SaveInstruments(ctx, ds.Instruments); err != nil {
		return err
	}
	if err := prices.SaveBars(ctx, ds.Bars); err != nil {
		return err
	}
	if err := s0_data.NewAuxRepository(a.db.Pool).SaveBatch(ctx, ds.Aux); err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("Imported %d bars, %d aux records, %d instruments",
		len(ds.Bars), len(ds.Aux), len(ds.Instruments)))
	return nil
}

func runDataExport(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	src, err := a.source()
	if err != nil {
		return err
	}
	ds, err := src.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load market data: %w", err)
	}
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return err
	}

	barsPath := filepath.Join(exportDir, "bars.parquet")
	if err := s0_data.WriteBarsParquet(barsPath, ds.Bars); err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("%d bars → %s", len(ds.Bars), barsPath))

	if len(ds.Aux) > 0 {
		auxPath := filepath.Join(exportDir, "aux.parquet")
		if err := s0_data.WriteAuxParquet(auxPath, ds.Aux); err != nil {
			return err
		}
		PrintSuccess(fmt.Sprintf("%d aux records → %s", len(ds.Aux), auxPath))
	}
	return nil
}
