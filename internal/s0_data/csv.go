package s0_data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/aegis-t0/internal/contracts"
)

// accepted timestamp layouts, tried in order
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	contracts.SessionLayout,
}

// ParseTimestamp parses a bar timestamp; naive values are read in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// SessionOf truncates t to midnight of its own day, keeping the location.
func SessionOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// csvTable reads a header row and exposes columns by name.
type csvTable struct {
	r    *csv.Reader
	cols map[string]int
	line int
}

func newCSVTable(r io.Reader, required ...string) (*csvTable, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := &csvTable{r: cr, cols: make(map[string]int, len(header)), line: 1}
	for i, h := range header {
		t.cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := t.cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return t, nil
}

// next returns the next record, or io.EOF.
func (t *csvTable) next() ([]string, error) {
	rec, err := t.r.Read()
	t.line++
	return rec, err
}

func (t *csvTable) str(rec []string, name string) string {
	i, ok := t.cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func (t *csvTable) float(rec []string, name string) (float64, error) {
	s := t.str(rec, name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: column %s: %w", t.line, name, err)
	}
	return v, nil
}

func (t *csvTable) optFloat(rec []string, name string) (*float64, error) {
	if t.str(rec, name) == "" {
		return nil, nil
	}
	v, err := t.float(rec, name)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ReadBarsCSV reads bars with columns
// instrument_id,timestamp,open,high,low,close,pre_close,volume[,session_date].
// An empty pre_close reads as 0 and is rejected later by the integrity gate.
func ReadBarsCSV(r io.Reader, loc *time.Location) ([]contracts.Bar, error) {
	t, err := newCSVTable(r, "instrument_id", "timestamp", "open", "high", "low", "close", "pre_close", "volume")
	if err != nil {
		return nil, err
	}

	var bars []contracts.Bar
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", t.line, err)
		}

		ts, err := ParseTimestamp(t.str(rec, "timestamp"), loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", t.line, err)
		}
		b := contracts.Bar{
			InstrumentID: t.str(rec, "instrument_id"),
			Timestamp:    ts,
			SessionDate:  SessionOf(ts),
		}
		if sd := t.str(rec, "session_date"); sd != "" {
			if b.SessionDate, err = time.ParseInLocation(contracts.SessionLayout, sd, loc); err != nil {
				return nil, fmt.Errorf("line %d: session_date: %w", t.line, err)
			}
		}
		for _, f := range []struct {
			name string
			dst  *float64
		}{
			{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close},
			{"pre_close", &b.PreClose}, {"volume", &b.Volume},
		} {
			if *f.dst, err = t.float(rec, f.name); err != nil {
				return nil, err
			}
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// ReadAuxCSV reads aux signals with columns
// instrument_id,session_date[,main_inflow,northbound,market_heat,sector_rotation].
// Empty cells stay nil (unavailable).
func ReadAuxCSV(r io.Reader, loc *time.Location) ([]contracts.AuxSignals, error) {
	t, err := newCSVTable(r, "instrument_id", "session_date")
	if err != nil {
		return nil, err
	}

	var out []contracts.AuxSignals
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", t.line, err)
		}

		date, err := time.ParseInLocation(contracts.SessionLayout, t.str(rec, "session_date"), loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: session_date: %w", t.line, err)
		}
		a := contracts.AuxSignals{InstrumentID: t.str(rec, "instrument_id"), SessionDate: date}
		for _, f := range []struct {
			name string
			dst  **float64
		}{
			{"main_inflow", &a.MainInflow}, {"northbound", &a.Northbound},
			{"market_heat", &a.MarketHeat}, {"sector_rotation", &a.SectorRotation},
		} {
			if *f.dst, err = t.optFloat(rec, f.name); err != nil {
				return nil, err
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// ReadInstrumentsCSV reads instrument metadata with columns id,sector[,float_shares].
func ReadInstrumentsCSV(r io.Reader) ([]contracts.Instrument, error) {
	t, err := newCSVTable(r, "id", "sector")
	if err != nil {
		return nil, err
	}

	var out []contracts.Instrument
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", t.line, err)
		}
		shares, err := t.float(rec, "float_shares")
		if err != nil {
			return nil, err
		}
		out = append(out, contracts.Instrument{
			ID:          t.str(rec, "id"),
			Sector:      t.str(rec, "sector"),
			FloatShares: shares,
		})
	}
	return out, nil
}

// WriteSignalsCSV exports a signal log.
func WriteSignalsCSV(w io.Writer, signals []contracts.Signal) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"seq", "instrument_id", "timestamp", "action", "quantity", "reason", "price"}); err != nil {
		return err
	}
	for _, s := range signals {
		if err := cw.Write([]string{
			strconv.Itoa(s.Seq),
			s.InstrumentID,
			s.Timestamp.Format(time.RFC3339),
			string(s.Action),
			strconv.FormatInt(s.Quantity, 10),
			string(s.Reason),
			strconv.FormatFloat(s.Price, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
