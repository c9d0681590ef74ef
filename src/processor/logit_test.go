package processor

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// twoGroups has rates 1/4 at x=0 and 3/4 at x=1, so the MLE is known in closed form.
func twoGroups() (*mat.Dense, []float64) {
	X := mat.NewDense(8, 2, []float64{
		1, 0, 1, 0, 1, 0, 1, 0,
		1, 1, 1, 1, 1, 1, 1, 1,
	})
	y := []float64{1, 0, 0, 0, 1, 1, 1, 0}
	return X, y
}

func TestFitLogitClosedForm(t *testing.T) {
	X, y := twoGroups()
	res, err := FitLogit(X, y, []string{"const", "x"})
	require.NoError(t, err)

	ln3 := math.Log(3)
	assert.True(t, res.Converged)
	assert.InDelta(t, -ln3, res.Params[0], 1e-8)
	assert.InDelta(t, 2*ln3, res.Params[1], 1e-8)

	// var(b0) = 1/(n0 p0 (1-p0)), var(b1) = var(b0) + 1/(n1 p1 (1-p1))
	assert.InDelta(t, math.Sqrt(4.0/3), res.StdErr[0], 1e-6)
	assert.InDelta(t, math.Sqrt(8.0/3), res.StdErr[1], 1e-6)

	ll := 2 * 4 * (0.25*math.Log(0.25) + 0.75*math.Log(0.75))
	assert.InDelta(t, ll, res.LogLik, 1e-9)
	assert.InDelta(t, 8*math.Log(0.5), res.LLNull, 1e-12)
	assert.InDelta(t, 1-ll/(8*math.Log(0.5)), res.PseudoR2, 1e-9)
	assert.InDelta(t, -2*ll+4, res.AIC, 1e-9)
	assert.InDelta(t, -2*ll+2*math.Log(8), res.BIC, 1e-9)

	assert.Equal(t, 8, res.NObs)
	assert.Equal(t, 1, res.DfModel)
	assert.Equal(t, 6, res.DfResid)
	assert.Equal(t, []string{"const", "x"}, res.Names)

	for j := range res.Params {
		assert.InDelta(t, res.Params[j]/res.StdErr[j], res.Z[j], 1e-12)
		assert.Less(t, res.ConfLow[j], res.Params[j])
		assert.Greater(t, res.ConfHigh[j], res.Params[j])
		assert.InDelta(t, 1.959964*res.StdErr[j], res.ConfHigh[j]-res.Params[j], 1e-5)
		assert.True(t, res.P[j] > 0 && res.P[j] < 1)
	}
	assert.True(t, res.LLRPValue > 0 && res.LLRPValue < 1)

	proba, err := res.PredictProba(X)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, proba[0], 1e-8)
	assert.InDelta(t, 0.75, proba[7], 1e-8)

	pred, err := res.Predict(X, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0, 1, 1, 1, 1}, pred)
}

func TestFitLogitScoreEquations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	truth := []float64{-0.5, 1.2, -0.8}

	n := 2000
	X := mat.NewDense(n, 3, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x1, x2 := rng.NormFloat64(), rng.NormFloat64()
		X.SetRow(i, []float64{1, x1, x2})
		if rng.Float64() < sigmoid(truth[0]+truth[1]*x1+truth[2]*x2) {
			y[i] = 1
		}
	}

	res, err := FitLogit(X, y, nil)
	require.NoError(t, err)
	require.True(t, res.Converged)
	assert.Equal(t, []string{"x1", "x2", "x3"}, res.Names)

	for j, b := range truth {
		assert.InDelta(t, b, res.Params[j], 0.25)
	}

	// at the optimum X'(y - p) vanishes
	proba, err := res.PredictProba(X)
	require.NoError(t, err)
	for j := 0; j < 3; j++ {
		score := 0.0
		for i := 0; i < n; i++ {
			score += X.At(i, j) * (y[i] - proba[i])
		}
		assert.InDelta(t, 0, score, 1e-6)
	}

	assert.Greater(t, res.LogLik, res.LLNull)
	assert.Less(t, res.LLRPValue, 1e-6)
}

func TestFitLogitErrors(t *testing.T) {
	X, y := twoGroups()

	_, err := FitLogit(X, y[:7], nil)
	assert.Error(t, err)

	_, err = FitLogit(X, y, []string{"const"})
	assert.Error(t, err)

	_, err = FitLogit(mat.NewDense(2, 2, []float64{1, 0, 1, 1}), []float64{0, 1}, nil)
	assert.Error(t, err, "as many parameters as rows")

	inf := mat.DenseCopyOf(X)
	inf.Set(3, 1, math.Inf(1))
	_, err = FitLogit(inf, y, []string{"const", "tickets_opened_per_year"})
	assert.True(t, errors.Is(err, ErrNumeric))
	assert.ErrorContains(t, err, "tickets_opened_per_year")

	nan := mat.DenseCopyOf(X)
	nan.Set(0, 0, math.NaN())
	_, err = FitLogit(nan, y, nil)
	assert.True(t, errors.Is(err, ErrNumeric))

	bad := append([]float64(nil), y...)
	bad[2] = 2
	_, err = FitLogit(X, bad, nil)
	assert.True(t, errors.Is(err, ErrNumeric))
}

func TestFitLogitPerfectSeparation(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{-2, -1, 1, 2})
	y := []float64{0, 0, 1, 1}

	_, err := FitLogit(X, y, []string{"x"})
	assert.True(t, errors.Is(err, ErrPerfectSeparation), "%v", err)
}

func TestPredictDimensionMismatch(t *testing.T) {
	X, y := twoGroups()
	res, err := FitLogit(X, y, nil)
	require.NoError(t, err)

	_, err = res.PredictProba(mat.NewDense(1, 3, nil))
	assert.Error(t, err)
}

func TestSigmoidSoftplus(t *testing.T) {
	assert.Equal(t, 0.5, sigmoid(0))
	assert.InDelta(t, 1, sigmoid(800), 1e-12)
	assert.InDelta(t, 0, sigmoid(-800), 1e-12)
	assert.InDelta(t, math.Log(2), softplus(0), 1e-12)
	assert.InDelta(t, 800, softplus(800), 1e-9)
	assert.False(t, math.IsInf(softplus(800), 0))
}
