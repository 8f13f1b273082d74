// Package trips defines the taxi trip record used as training data and the
// synthetic generator that produces it.
//
// Records are written to and read from a flat CSV file whose header row matches
// the field names of the public NYC taxi dataset.
package trips

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
)

// PickupLayout is the timestamp format of tpep_pickup_datetime.
const PickupLayout = "2006-01-02 15:04:05"

// Record is one row of the trip dataset.
type Record struct {
	PULocationID    int        `csv:"PULocationID"`
	DOLocationID    int        `csv:"DOLocationID"`
	VendorID        int        `csv:"VendorID"`
	PickupDatetime  PickupTime `csv:"tpep_pickup_datetime"`
	PassengerCount  int        `csv:"passenger_count"`
	TripDistance    float64    `csv:"trip_distance"`
	FareAmount      float64    `csv:"fare_amount"`
	TipAmount       float64    `csv:"tip_amount"`
	TollsAmount     float64    `csv:"tolls_amount"`
	DurationMinutes float64    `csv:"duration_minutes"`
}

// PickupTime is a timestamp serialized as YYYY-MM-DD HH:MM:SS.
type PickupTime struct {
	time.Time
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (p PickupTime) MarshalCSV() (string, error) {
	return p.UTC().Format(PickupLayout), nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (p *PickupTime) UnmarshalCSV(s string) error {
	t, err := time.ParseInLocation(PickupLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("parse pickup time %q: %w", s, err)
	}
	p.Time = t
	return nil
}

// WriteCSV writes records to path, replacing any existing file.
func WriteCSV(path string, records []Record) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&records, f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Sync()
}

// ReadCSV loads every record from a dataset file.
func ReadCSV(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	records := []Record{}
	if err := gocsv.UnmarshalFile(f, &records); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}
