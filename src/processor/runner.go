package processor

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-gota/gota/dataframe"

	"DealPropension/src/config"
	"DealPropension/src/datasource/file"
	"DealPropension/src/storage"
	"DealPropension/src/utils"
)

const exportSheet = "augmented"

// Runner fits the configured logit models on the workbook named by the configuration.
type Runner struct {
	cfg    *config.Config
	logger *storage.Logger
	out    io.Writer
}

// RunResult is the outcome of one model run.
type RunResult struct {
	Spec      config.ModelSpec
	Fit       *LogitResult
	Confusion ConfusionMatrix
	TrainRows int
	TestRows  int
}

func NewRunner(cfg *config.Config, logger *storage.Logger, out io.Writer) *Runner {
	return &Runner{cfg: cfg, logger: logger, out: out}
}

// Prepare loads the workbook and adds the regressors. Columns holding NaN or ±Inf are
// logged at WARNING and kept. When an export path is configured the table is also written
// there.
func (r *Runner) Prepare() (dataframe.DataFrame, error) {
	t1 := time.Now()
	df, err := file.Load(r.cfg.DataPath, r.cfg.SheetName, file.OptionsFromConfig(r.cfg.Loader))
	if err != nil {
		return df, err
	}
	r.logger.Info(fmt.Sprintf("loaded %d rows x %d columns from %s", df.Nrow(), df.Ncol(), r.cfg.DataPath))

	df, err = Augment(df)
	if err != nil {
		return df, err
	}

	counts := NonFiniteCounts(df)
	for _, name := range sortedKeys(counts) {
		r.logger.Warning(fmt.Sprintf("column %s has %d non-finite values", name, counts[name]))
	}

	if r.cfg.ExportPath != "" {
		if err := utils.SaveToExcel(df, r.cfg.ExportPath, exportSheet); err != nil {
			return df, fmt.Errorf("export: %w", err)
		}
		r.logger.Info("exported augmented table to " + r.cfg.ExportPath)
	}

	r.logger.Debug(fmt.Sprintf("prepared table in %v", time.Since(t1)))
	return df, nil
}

// Run prepares the table and fits spec on it.
func (r *Runner) Run(spec config.ModelSpec) (*RunResult, error) {
	df, err := r.Prepare()
	if err != nil {
		return nil, err
	}
	return r.Fit(df, spec)
}

// RunAll prepares the table once and fits every spec. A failing model does not stop the
// others; the failures are joined in the returned error.
func (r *Runner) RunAll(specs []config.ModelSpec) ([]*RunResult, error) {
	df, err := r.Prepare()
	if err != nil {
		return nil, err
	}

	var (
		results []*RunResult
		errs    []error
	)
	for _, spec := range specs {
		res, err := r.Fit(df, spec)
		if err != nil {
			r.logger.Error(fmt.Sprintf("model %s: %v", spec.Name, err))
			errs = append(errs, fmt.Errorf("model %s: %w", spec.Name, err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// Fit splits df, fits spec on the train rows and reports on the test rows.
func (r *Runner) Fit(df dataframe.DataFrame, spec config.ModelSpec) (*RunResult, error) {
	X, y, err := DesignMatrix(df, spec.Features, spec.Target)
	if err != nil {
		return nil, err
	}

	// test rows included
	if err := checkInputs(X, y, spec.Features); err != nil {
		return nil, err
	}

	n, _ := X.Dims()
	train, test := TrainTestSplit(n, r.cfg.Split.TestSize, r.cfg.Split.Seed)
	if len(test) == 0 || len(train) == 0 {
		return nil, fmt.Errorf("split of %d rows with test_size %v left %d train and %d test rows",
			n, r.cfg.Split.TestSize, len(train), len(test))
	}
	XTrain, yTrain, err := selectRows(X, y, train)
	if err != nil {
		return nil, fmt.Errorf("train rows: %w", err)
	}
	XTest, yTest, err := selectRows(X, y, test)
	if err != nil {
		return nil, fmt.Errorf("test rows: %w", err)
	}

	fit, err := FitLogit(XTrain, yTrain, spec.Features)
	if err != nil {
		return nil, err
	}
	fit.Target = spec.Target
	if !fit.Converged {
		r.logger.Warning(fmt.Sprintf("model %s did not converge in %d iterations", spec.Name, fit.Iterations))
	}

	threshold := spec.Threshold
	if threshold == 0 {
		threshold = 0.5
	}
	pred, err := fit.Predict(XTest, threshold)
	if err != nil {
		return nil, err
	}
	cm := NewConfusionMatrix(yTest, pred)

	if err := WriteReport(r.out, spec.Name, fit, cm); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	r.logger.Info(fmt.Sprintf("model %s: train %d, test %d, pseudo R2 %.4f, accuracy %.4f",
		spec.Name, len(train), len(test), fit.PseudoR2, cm.Accuracy()))

	return &RunResult{
		Spec:      spec,
		Fit:       fit,
		Confusion: cm,
		TrainRows: len(train),
		TestRows:  len(test),
	}, nil
}
