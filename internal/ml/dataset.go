package ml

import (
	"fmt"
	"math"
	"math/rand/v2"

	"taxi-ct/internal/common"
	"taxi-ct/internal/trips"
)

// FeatureNames is the column order the model is trained and served with.
var FeatureNames = []string{common.FeaturePassengers, common.FeatureDistance}

// Example is one labelled training row.
type Example struct {
	Features []float64
	Label    int
}

// IsLongTrip labels a trip 1 when its distance is strictly above the threshold.
func IsLongTrip(distance float64) int {
	if distance > common.LongTripThreshold {
		return 1
	}
	return 0
}

// FeatureVector builds the model input for one trip.
func FeatureVector(passengerCount int, tripDistance float64) []float64 {
	return []float64{float64(passengerCount), tripDistance}
}

// Examples derives the is_long_trip label and the feature vector of every record.
func Examples(records []trips.Record) []Example {
	examples := make([]Example, len(records))
	for i, r := range records {
		examples[i] = Example{
			Features: FeatureVector(r.PassengerCount, r.TripDistance),
			Label:    IsLongTrip(r.TripDistance),
		}
	}
	return examples
}

// Split shuffles examples with a generator seeded from seed and holds out
// ceil(testSize*n) of them for evaluation. The same seed and input always
// produce the same partitions; the input slice is not modified.
func Split(examples []Example, testSize float64, seed int64) (train, test []Example, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be in (0, 1), got %g", testSize)
	}

	n := len(examples)
	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return nil, nil, fmt.Errorf("cannot split %d examples with test size %g", n, testSize)
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x5851f42d4c957f2d))
	perm := rng.Perm(n)

	test = make([]Example, 0, nTest)
	for _, idx := range perm[:nTest] {
		test = append(test, examples[idx])
	}
	train = make([]Example, 0, nTrain)
	for _, idx := range perm[nTest:] {
		train = append(train, examples[idx])
	}
	return train, test, nil
}
