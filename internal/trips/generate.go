package trips

import (
	"math"
	"math/rand/v2"
	"time"
)

// GenerateOptions bounds the synthetic pickup window.
type GenerateOptions struct {
	PickupStart time.Time
	PickupEnd   time.Time
}

// DefaultGenerateOptions covers January 2023.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		PickupStart: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		PickupEnd:   time.Date(2023, 1, 31, 23, 59, 59, 0, time.UTC),
	}
}

// Sampling bounds; integer bounds are inclusive.
const (
	minLocationID  = 1
	maxLocationID  = 263
	minPassengers  = 1
	maxPassengers  = 6
	minDistance    = 0.5
	maxDistance    = 20.0
	minFare        = 5.0
	maxFare        = 50.0
	maxTipFraction = 0.3
	minDuration    = 1.0
)

var (
	vendorIDs = []int{1, 2}
	tollFees  = []float64{0.0, 0.0, 0.0, 3.5, 6.25}
)

// NewRand returns a generator source seeded deterministically from seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Generate samples n independent trip records from rng.
func Generate(rng *rand.Rand, n int, opts GenerateOptions) []Record {
	if n <= 0 {
		return []Record{}
	}

	window := opts.PickupEnd.Sub(opts.PickupStart)
	records := make([]Record, n)
	for i := range records {
		distance := round(uniform(rng, minDistance, maxDistance), 2)
		fare := round(uniform(rng, minFare, maxFare), 2)

		// duration grows with distance plus gaussian noise, floored at one minute
		duration := distance*uniform(rng, 3, 5) + rng.NormFloat64()*5 + 5
		duration = round(math.Max(minDuration, duration), 1)

		pickup := opts.PickupStart.Add(time.Duration(rng.Float64() * float64(window))).Truncate(time.Second)

		records[i] = Record{
			PULocationID:    intBetween(rng, minLocationID, maxLocationID),
			DOLocationID:    intBetween(rng, minLocationID, maxLocationID),
			VendorID:        vendorIDs[rng.IntN(len(vendorIDs))],
			PickupDatetime:  PickupTime{pickup},
			PassengerCount:  intBetween(rng, minPassengers, maxPassengers),
			TripDistance:    distance,
			FareAmount:      fare,
			TipAmount:       round(uniform(rng, 0, fare*maxTipFraction), 2),
			TollsAmount:     tollFees[rng.IntN(len(tollFees))],
			DurationMinutes: duration,
		}
	}
	return records
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func intBetween(rng *rand.Rand, lo, hi int) int {
	return lo + rng.IntN(hi-lo+1)
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
