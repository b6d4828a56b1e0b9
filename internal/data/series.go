// Package data loads and validates the historical bar series the
// simulator trains on. The series is produced by an external ingestion
// pipeline; this package only checks the contract and fails fast.
package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ErrMalformedSeries indicates the input series violates the contract:
// time-ascending, no duplicate timestamps, sane OHLCV values.
var ErrMalformedSeries = errors.New("malformed bar series")

// Bar is a single immutable OHLCV candle. Timestamp is unix milliseconds.
type Bar struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Validate checks the series contract and wraps ErrMalformedSeries with
// the first violation found.
func Validate(bars []Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("%w: empty series", ErrMalformedSeries)
	}
	for i, b := range bars {
		if i > 0 {
			prev := bars[i-1].Timestamp
			if b.Timestamp == prev {
				return fmt.Errorf("%w: duplicate timestamp %d at index %d", ErrMalformedSeries, b.Timestamp, i)
			}
			if b.Timestamp < prev {
				return fmt.Errorf("%w: timestamps not ascending at index %d (%d < %d)", ErrMalformedSeries, i, b.Timestamp, prev)
			}
		}
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return fmt.Errorf("%w: non-positive price at index %d", ErrMalformedSeries, i)
		}
		if b.High < b.Low {
			return fmt.Errorf("%w: high below low at index %d", ErrMalformedSeries, i)
		}
		if b.Volume < 0 {
			return fmt.Errorf("%w: negative volume at index %d", ErrMalformedSeries, i)
		}
	}
	return nil
}

// LoadCSV reads bars from a CSV file with columns
// timestamp_ms,open,high,low,close,volume. A header row is skipped if the
// first field does not parse as an integer. The result is validated.
func LoadCSV(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()

	bars, err := parseCSV(f)
	if err != nil {
		return nil, err
	}
	if err := Validate(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func parseCSV(r io.Reader) ([]Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 6

	var bars []Bar
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedSeries, err)
		}
		line++

		ts, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			if line == 1 {
				// header row
				continue
			}
			return nil, fmt.Errorf("%w: bad timestamp %q on line %d", ErrMalformedSeries, rec[0], line)
		}

		var vals [5]float64
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad numeric field %q on line %d", ErrMalformedSeries, rec[i+1], line)
			}
			vals[i] = v
		}

		bars = append(bars, Bar{
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return bars, nil
}

// Split cuts the series into a training head and a held-out tail.
// holdout is the tail fraction in [0, 1).
func Split(bars []Bar, holdout float64) (train, test []Bar) {
	if holdout <= 0 {
		return bars, nil
	}
	cut := len(bars) - int(float64(len(bars))*holdout)
	if cut < 0 {
		cut = 0
	}
	return bars[:cut], bars[cut:]
}
