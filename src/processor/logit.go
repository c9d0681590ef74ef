package processor

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrNumeric is returned when the estimator meets NaN/±Inf input or a singular Hessian.
	ErrNumeric = errors.New("numeric error")
	// ErrPerfectSeparation is returned when the fitted probabilities reproduce the labels.
	ErrPerfectSeparation = errors.New("perfect separation")
)

const (
	logitMaxIter   = 35
	logitTolerance = 1e-8
	separationTol  = 1e-8
)

// LogitResult holds a maximum likelihood binary logit fit.
type LogitResult struct {
	Target   string // set by callers for reporting
	Names    []string
	Params   []float64
	StdErr   []float64
	Z        []float64
	P        []float64 // two-sided, normal approximation
	ConfLow  []float64 // 95%
	ConfHigh []float64

	LogLik    float64
	LLNull    float64
	PseudoR2  float64 // McFadden
	LLR       float64
	LLRPValue float64
	AIC       float64
	BIC       float64

	NObs       int
	DfModel    int
	DfResid    int
	Iterations int
	Converged  bool
}

// FitLogit maximises the logit likelihood of y (0/1) on X with Newton-Raphson.
// names labels the columns of X and may be nil. A run that hits the iteration limit returns
// its last estimate with Converged false.
func FitLogit(X *mat.Dense, y []float64, names []string) (*LogitResult, error) {
	n, k := X.Dims()
	if len(y) != n {
		return nil, fmt.Errorf("logit: %d labels for %d rows", len(y), n)
	}
	if names == nil {
		names = make([]string, k)
		for j := range names {
			names[j] = fmt.Sprintf("x%d", j+1)
		}
	}
	if len(names) != k {
		return nil, fmt.Errorf("logit: %d names for %d columns", len(names), k)
	}
	if n <= k {
		return nil, fmt.Errorf("logit: %d observations cannot identify %d parameters", n, k)
	}
	if err := checkInputs(X, y, names); err != nil {
		return nil, err
	}

	beta := mat.NewVecDense(k, nil)
	var step mat.VecDense
	converged := false
	iter := 0

	for iter < logitMaxIter {
		iter++
		p, grad, hess := newtonTerms(X, y, beta)
		if separated(p, y) {
			return nil, fmt.Errorf("logit: %w after %d iterations", ErrPerfectSeparation, iter-1)
		}
		if err := solve(&step, hess, grad); err != nil {
			return nil, fmt.Errorf("logit: %w: Hessian is singular at iteration %d: %v", ErrNumeric, iter, err)
		}
		beta.AddVec(beta, &step)
		if mat.Norm(&step, math.Inf(1)) < logitTolerance {
			converged = true
			break
		}
	}

	p, _, hess := newtonTerms(X, y, beta)
	if separated(p, y) {
		return nil, fmt.Errorf("logit: %w after %d iterations", ErrPerfectSeparation, iter)
	}

	var cov mat.Dense
	if err := cov.Inverse(hess); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("logit: %w: covariance: %v", ErrNumeric, err)
		}
	}

	res := &LogitResult{
		Names:      append([]string(nil), names...),
		Params:     make([]float64, k),
		StdErr:     make([]float64, k),
		Z:          make([]float64, k),
		P:          make([]float64, k),
		ConfLow:    make([]float64, k),
		ConfHigh:   make([]float64, k),
		NObs:       n,
		DfModel:    k - 1,
		DfResid:    n - k,
		Iterations: iter,
		Converged:  converged,
	}

	q := distuv.UnitNormal.Quantile(0.975)
	for j := 0; j < k; j++ {
		b := beta.AtVec(j)
		se := math.Sqrt(cov.At(j, j))
		res.Params[j] = b
		res.StdErr[j] = se
		res.Z[j] = b / se
		res.P[j] = 2 * distuv.UnitNormal.Survival(math.Abs(res.Z[j]))
		res.ConfLow[j] = b - q*se
		res.ConfHigh[j] = b + q*se
	}

	res.LogLik = logLikelihood(X, y, beta)
	res.LLNull = nullLogLikelihood(y)
	res.PseudoR2 = 1 - res.LogLik/res.LLNull
	res.LLR = -2 * (res.LLNull - res.LogLik)
	res.LLRPValue = math.NaN()
	if res.DfModel > 0 {
		res.LLRPValue = distuv.ChiSquared{K: float64(res.DfModel)}.Survival(res.LLR)
	}
	res.AIC = -2*res.LogLik + 2*float64(k)
	res.BIC = -2*res.LogLik + math.Log(float64(n))*float64(k)
	return res, nil
}

func checkInputs(X *mat.Dense, y []float64, names []string) error {
	n, k := X.Dims()
	for j := 0; j < k; j++ {
		for i := 0; i < n; i++ {
			v := X.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("logit: %w: regressor %s has non-finite value %v at row %d", ErrNumeric, names[j], v, i)
			}
		}
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return fmt.Errorf("logit: %w: label %v at row %d is not 0 or 1", ErrNumeric, v, i)
		}
	}
	return nil
}

// newtonTerms returns the fitted probabilities, the score X'(y-p) and the information
// matrix X'WX with W = diag(p(1-p)).
func newtonTerms(X *mat.Dense, y []float64, beta *mat.VecDense) ([]float64, *mat.VecDense, *mat.Dense) {
	n, k := X.Dims()

	var eta mat.VecDense
	eta.MulVec(X, beta)

	p := make([]float64, n)
	resid := mat.NewVecDense(n, nil)
	weighted := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		p[i] = sigmoid(eta.AtVec(i))
		resid.SetVec(i, y[i]-p[i])
		w := p[i] * (1 - p[i])
		for j := 0; j < k; j++ {
			weighted.Set(i, j, w*X.At(i, j))
		}
	}

	grad := mat.NewVecDense(k, nil)
	grad.MulVec(X.T(), resid)

	hess := mat.NewDense(k, k, nil)
	hess.Mul(X.T(), weighted)
	return p, grad, hess
}

// solve treats an ill-conditioned but solvable system as solved.
func solve(dst *mat.VecDense, a *mat.Dense, b *mat.VecDense) error {
	err := dst.SolveVec(a, b)
	var cond mat.Condition
	if err != nil && !errors.As(err, &cond) {
		return err
	}
	for i := 0; i < dst.Len(); i++ {
		if v := dst.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("non-finite Newton step")
		}
	}
	return nil
}

func separated(p, y []float64) bool {
	for i := range p {
		if math.Abs(p[i]-y[i]) > separationTol {
			return false
		}
	}
	return true
}

func logLikelihood(X *mat.Dense, y []float64, beta *mat.VecDense) float64 {
	var eta mat.VecDense
	eta.MulVec(X, beta)
	ll := 0.0
	for i, yi := range y {
		e := eta.AtVec(i)
		ll += yi*e - softplus(e)
	}
	return ll
}

// nullLogLikelihood is the log-likelihood of the intercept-only model.
func nullLogLikelihood(y []float64) float64 {
	n := float64(len(y))
	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= n
	if mean == 0 || mean == 1 {
		return 0
	}
	return n * (mean*math.Log(mean) + (1-mean)*math.Log(1-mean))
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// softplus is log(1+e^x) without overflow.
func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}

// PredictProba returns P(y=1) for each row of X.
func (r *LogitResult) PredictProba(X *mat.Dense) ([]float64, error) {
	n, k := X.Dims()
	if k != len(r.Params) {
		return nil, fmt.Errorf("logit: %d columns for %d parameters", k, len(r.Params))
	}
	beta := mat.NewVecDense(k, append([]float64(nil), r.Params...))
	var eta mat.VecDense
	eta.MulVec(X, beta)

	out := make([]float64, n)
	for i := range out {
		out[i] = sigmoid(eta.AtVec(i))
	}
	return out, nil
}

// Predict labels rows whose probability reaches threshold as 1.
func (r *LogitResult) Predict(X *mat.Dense, threshold float64) ([]int, error) {
	proba, err := r.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return BinaryPredFromProba(proba, threshold), nil
}
