package s0_data

import (
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/wonny/aegis-t0/internal/contracts"
)

// BarRow is the Parquet layout of a bar. Timestamps are unix milliseconds.
type BarRow struct {
	InstrumentID string  `parquet:"instrument_id"`
	Timestamp    int64   `parquet:"ts"`
	Open         float64 `parquet:"open"`
	High         float64 `parquet:"high"`
	Low          float64 `parquet:"low"`
	Close        float64 `parquet:"close"`
	PreClose     float64 `parquet:"pre_close,optional"`
	Volume       float64 `parquet:"volume"`
}

// AuxRow is the Parquet layout of an aux record.
type AuxRow struct {
	InstrumentID   string   `parquet:"instrument_id"`
	SessionDate    string   `parquet:"session_date"` // YYYY-MM-DD
	MainInflow     *float64 `parquet:"main_inflow,optional"`
	Northbound     *float64 `parquet:"northbound,optional"`
	MarketHeat     *float64 `parquet:"market_heat,optional"`
	SectorRotation *float64 `parquet:"sector_rotation,optional"`
}

// InstrumentRow is the Parquet layout of instrument metadata.
type InstrumentRow struct {
	ID          string  `parquet:"id"`
	Sector      string  `parquet:"sector"`
	FloatShares float64 `parquet:"float_shares,optional"`
}

// ReadBarsParquet reads bars; session dates are derived in loc.
func ReadBarsParquet(path string, loc *time.Location) ([]contracts.Bar, error) {
	rows, err := parquet.ReadFile[BarRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	bars := make([]contracts.Bar, len(rows))
	for i, r := range rows {
		ts := time.UnixMilli(r.Timestamp).In(loc)
		bars[i] = contracts.Bar{
			InstrumentID: r.InstrumentID,
			SessionDate:  SessionOf(ts),
			Timestamp:    ts,
			Open:         r.Open,
			High:         r.High,
			Low:          r.Low,
			Close:        r.Close,
			PreClose:     r.PreClose,
			Volume:       r.Volume,
		}
	}
	return bars, nil
}

// WriteBarsParquet writes bars in the BarRow layout.
func WriteBarsParquet(path string, bars []contracts.Bar) error {
	rows := make([]BarRow, len(bars))
	for i, b := range bars {
		rows[i] = BarRow{
			InstrumentID: b.InstrumentID,
			Timestamp:    b.Timestamp.UnixMilli(),
			Open:         b.Open,
			High:         b.High,
			Low:          b.Low,
			Close:        b.Close,
			PreClose:     b.PreClose,
			Volume:       b.Volume,
		}
	}
	return parquet.WriteFile(path, rows)
}

// ReadAuxParquet reads aux records.
func ReadAuxParquet(path string, loc *time.Location) ([]contracts.AuxSignals, error) {
	rows, err := parquet.ReadFile[AuxRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	out := make([]contracts.AuxSignals, len(rows))
	for i, r := range rows {
		date, err := time.ParseInLocation(contracts.SessionLayout, r.SessionDate, loc)
		if err != nil {
			return nil, fmt.Errorf("row %d: session_date: %w", i, err)
		}
		out[i] = contracts.AuxSignals{
			InstrumentID:   r.InstrumentID,
			SessionDate:    date,
			MainInflow:     r.MainInflow,
			Northbound:     r.Northbound,
			MarketHeat:     r.MarketHeat,
			SectorRotation: r.SectorRotation,
		}
	}
	return out, nil
}

// WriteAuxParquet writes aux records in the AuxRow layout.
func WriteAuxParquet(path string, aux []contracts.AuxSignals) error {
	rows := make([]AuxRow, len(aux))
	for i, a := range aux {
		rows[i] = AuxRow{
			InstrumentID:   a.InstrumentID,
			SessionDate:    contracts.SessionKey(a.SessionDate),
			MainInflow:     a.MainInflow,
			Northbound:     a.Northbound,
			MarketHeat:     a.MarketHeat,
			SectorRotation: a.SectorRotation,
		}
	}
	return parquet.WriteFile(path, rows)
}

// ReadInstrumentsParquet reads instrument metadata.
func ReadInstrumentsParquet(path string) ([]contracts.Instrument, error) {
	rows, err := parquet.ReadFile[InstrumentRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	out := make([]contracts.Instrument, len(rows))
	for i, r := range rows {
		out[i] = contracts.Instrument{ID: r.ID, Sector: r.Sector, FloatShares: r.FloatShares}
	}
	return out, nil
}
