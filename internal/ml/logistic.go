package ml

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// ModelKind identifies the artifact format.
const ModelKind = "logistic_regression"

var (
	ErrNoExamples   = errors.New("no examples")
	ErrSingleClass  = errors.New("training data contains a single class")
	ErrFeatureShape = errors.New("feature vector has the wrong length")
	ErrDiverged     = errors.New("optimizer diverged")
)

// FitOptions configures the solver.
type FitOptions struct {
	// C is the inverse regularization strength; smaller values regularize more.
	C float64
	// RandomState is recorded with the model. The Newton solver is deterministic.
	RandomState   int64
	MaxIterations int
	Tolerance     float64
}

// LogisticModel is a fitted binary logistic regression. It is never mutated
// after FitLogistic or LoadModel returns it.
type LogisticModel struct {
	Kind         string    `json:"kind"`
	Features     []string  `json:"features"`
	Coef         []float64 `json:"coef"`
	Intercept    float64   `json:"intercept"`
	C            float64   `json:"C"`
	RandomState  int64     `json:"random_state"`
	Iterations   int       `json:"iterations"`
	Converged    bool      `json:"converged"`
	TrainingRows int       `json:"training_rows"`
	TrainedAt    time.Time `json:"trained_at"`
}

// FitLogistic minimizes ½‖w‖² + C·Σ logloss(y, w·x+b) with Newton steps and a
// backtracking line search. The intercept is not penalized.
func FitLogistic(examples []Example, opts FitOptions) (*LogisticModel, error) {
	if len(examples) == 0 {
		return nil, ErrNoExamples
	}
	if opts.C <= 0 {
		return nil, fmt.Errorf("regularization strength must be positive, got %g", opts.C)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 100
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-8
	}

	d := len(examples[0].Features)
	positives := 0
	for _, ex := range examples {
		if len(ex.Features) != d {
			return nil, fmt.Errorf("%w: want %d, got %d", ErrFeatureShape, d, len(ex.Features))
		}
		positives += ex.Label
	}
	if positives == 0 || positives == len(examples) {
		return nil, ErrSingleClass
	}

	// theta holds the d weights followed by the intercept
	theta := make([]float64, d+1)
	obj := objective(examples, theta, opts.C)

	converged := false
	iter := 0
	for iter = 1; iter <= opts.MaxIterations; iter++ {
		grad, hess := gradientHessian(examples, theta, opts.C)
		step, err := solve(hess, grad)
		if err != nil {
			return nil, fmt.Errorf("newton step: %w", err)
		}

		decrease := dot(grad, step)
		t := 1.0
		var next []float64
		var nextObj float64
		for k := 0; k < 60; k++ {
			next = axpy(theta, step, -t)
			nextObj = objective(examples, next, opts.C)
			if nextObj <= obj-1e-4*t*decrease {
				break
			}
			t /= 2
		}
		if math.IsNaN(nextObj) || math.IsInf(nextObj, 0) {
			return nil, ErrDiverged
		}

		moved := 0.0
		for j := range theta {
			moved = math.Max(moved, math.Abs(next[j]-theta[j]))
		}
		theta, obj = next, nextObj
		if moved < opts.Tolerance {
			converged = true
			break
		}
	}
	if !converged {
		iter = opts.MaxIterations
		log.Warn().Int("iterations", iter).Msg("logistic regression did not converge")
	}

	return &LogisticModel{
		Kind:         ModelKind,
		Features:     featureNames(d),
		Coef:         append([]float64(nil), theta[:d]...),
		Intercept:    theta[d],
		C:            opts.C,
		RandomState:  opts.RandomState,
		Iterations:   iter,
		Converged:    converged,
		TrainingRows: len(examples),
		TrainedAt:    time.Now().UTC(),
	}, nil
}

func featureNames(d int) []string {
	if d == len(FeatureNames) {
		return append([]string(nil), FeatureNames...)
	}
	names := make([]string, d)
	for i := range names {
		names[i] = fmt.Sprintf("x%d", i)
	}
	return names
}

// DecisionFunction returns the linear score w·x+b.
func (m *LogisticModel) DecisionFunction(features []float64) (float64, error) {
	if len(features) != len(m.Coef) {
		return 0, fmt.Errorf("%w: want %d, got %d", ErrFeatureShape, len(m.Coef), len(features))
	}
	return m.Intercept + dot(m.Coef, features), nil
}

// PredictProba returns P(label = 1 | features).
func (m *LogisticModel) PredictProba(features []float64) (float64, error) {
	z, err := m.DecisionFunction(features)
	if err != nil {
		return 0, err
	}
	return sigmoid(z), nil
}

// Predict returns 1 when the probability is above 0.5, i.e. the score is positive.
func (m *LogisticModel) Predict(features []float64) (int, error) {
	z, err := m.DecisionFunction(features)
	if err != nil {
		return 0, err
	}
	if z > 0 {
		return 1, nil
	}
	return 0, nil
}

// Accuracy is the fraction of examples the model labels correctly.
func Accuracy(model PredictorInterface, examples []Example) (float64, error) {
	if len(examples) == 0 {
		return 0, ErrNoExamples
	}

	correct := 0
	for _, ex := range examples {
		pred, err := model.Predict(ex.Features)
		if err != nil {
			return 0, err
		}
		if pred == ex.Label {
			correct++
		}
	}
	return float64(correct) / float64(len(examples)), nil
}

func objective(examples []Example, theta []float64, c float64) float64 {
	d := len(theta) - 1
	reg := 0.0
	for j := 0; j < d; j++ {
		reg += theta[j] * theta[j]
	}

	loss := 0.0
	for _, ex := range examples {
		z := theta[d] + dot(theta[:d], ex.Features)
		loss += softplus(z) - float64(ex.Label)*z
	}
	return 0.5*reg + c*loss
}

func gradientHessian(examples []Example, theta []float64, c float64) ([]float64, [][]float64) {
	d := len(theta) - 1
	n := d + 1

	grad := make([]float64, n)
	hess := make([][]float64, n)
	for j := range hess {
		hess[j] = make([]float64, n)
	}

	x := make([]float64, n)
	x[d] = 1
	for _, ex := range examples {
		copy(x, ex.Features)
		p := sigmoid(theta[d] + dot(theta[:d], ex.Features))
		r := c * (p - float64(ex.Label))
		w := c * p * (1 - p)
		for j := 0; j < n; j++ {
			grad[j] += r * x[j]
			for k := 0; k <= j; k++ {
				hess[j][k] += w * x[j] * x[k]
			}
		}
	}

	for j := 0; j < n; j++ {
		for k := 0; k < j; k++ {
			hess[k][j] = hess[j][k]
		}
		if j < d {
			grad[j] += theta[j]
			hess[j][j] += 1
		}
		hess[j][j] += 1e-10
	}
	return grad, hess
}

// solve returns x with a·x = b by Gaussian elimination with partial pivoting.
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	m := make([][]float64, n)
	for i := range a {
		m[i] = append(append(make([]float64, 0, n+1), a[i]...), b[i])
	}

	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(m[row][col]) > math.Abs(m[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(m[pivot][col]) < 1e-300 {
			return nil, errors.New("singular hessian")
		}
		m[col], m[pivot] = m[pivot], m[col]

		for row := col + 1; row < n; row++ {
			f := m[row][col] / m[col][col]
			for k := col; k <= n; k++ {
				m[row][k] -= f * m[col][k]
			}
		}
	}

	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		s := m[row][n]
		for k := row + 1; k < n; k++ {
			s -= m[row][k] * x[k]
		}
		x[row] = s / m[row][row]
	}
	return x, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus computes log(1+e^z) without overflow.
func softplus(z float64) float64 {
	return math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func axpy(x, y []float64, alpha float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] + alpha*y[i]
	}
	return out
}
