package processor

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/mat"

	"DealPropension/src/utils"
)

// DesignMatrix copies the feature columns of df into a rows x len(features) matrix and
// returns the target column alongside it. Values are copied as they are, non-finite included.
func DesignMatrix(df dataframe.DataFrame, features []string, target string) (*mat.Dense, []float64, error) {
	if len(features) == 0 {
		return nil, nil, fmt.Errorf("design matrix: no features")
	}
	if err := utils.RequireColumns(df, append([]string{target}, features...)...); err != nil {
		return nil, nil, fmt.Errorf("design matrix: %w", err)
	}

	n := df.Nrow()
	if n == 0 {
		return nil, nil, fmt.Errorf("design matrix: frame has no rows")
	}

	X := mat.NewDense(n, len(features), nil)
	for j, name := range features {
		for i, v := range df.Col(name).Float() {
			X.Set(i, j, v)
		}
	}

	y := df.Col(target).Float()
	return X, y, nil
}

// TrainTestSplit shuffles 0..n-1 with a source seeded by seed and returns the train and test
// row indices. The test part has ceil(testSize*n) rows.
func TrainTestSplit(n int, testSize float64, seed int64) (train, test []int) {
	if n <= 0 {
		return nil, nil
	}
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)

	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest > n {
		nTest = n
	}
	if nTest < 0 {
		nTest = 0
	}

	test = append(test, perm[:nTest]...)
	train = append(train, perm[nTest:]...)
	return train, test
}

// selectRows copies the given rows of X and y. gonum has no empty matrix, so no rows is an error.
func selectRows(X *mat.Dense, y []float64, rows []int) (*mat.Dense, []float64, error) {
	if len(rows) == 0 {
		return nil, nil, errors.New("no rows selected")
	}
	_, c := X.Dims()
	out := mat.NewDense(len(rows), c, nil)
	ys := make([]float64, len(rows))
	for i, r := range rows {
		out.SetRow(i, X.RawRowView(r))
		ys[i] = y[r]
	}
	return out, ys, nil
}
