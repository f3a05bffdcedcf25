// Standard attribute keys shared by every heartml component. Keys follow a
// dotted hierarchy ("model.name", "data.samples") so records can be filtered
// by prefix.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of model or transformer.
	// Examples: "LogisticRegression", "StandardScaler", "RandomForestClassifier"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "fit_transform", "score"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is emitting the record.
	ComponentKey = "ml.component"

	// PhaseKey indicates the pipeline stage.
	PhaseKey = "ml.phase"

	// RunIDKey correlates all records of one study run.
	RunIDKey = "run.id"
)

// Data Shape and Characteristics
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ClassesKey  = "data.classes"

	// SourceKey is the path of the input table.
	SourceKey = "data.source"
)

// Performance Metrics
const (
	DurationMsKey = "perf.duration_ms"
	AccuracyKey   = "metrics.accuracy"
	IterationKey  = "training.iteration"

	// CVScoreKey is the mean cross-validation accuracy; CVStdKey its spread.
	CVScoreKey = "metrics.cv_mean"
	CVStdKey   = "metrics.cv_std"

	// FoldKey is the index of the cross-validation fold.
	FoldKey = "training.fold"
)

// Error and Warning Context
const (
	// ErrorCodeKey classifies the error that ended a run.
	// Examples: "DIMENSION_MISMATCH", "NOT_FITTED", "INVALID_INPUT"
	ErrorCodeKey = "error.code"
)

// Artifacts
const (
	// OutputPathKey is the path of a written artifact (plot, report, model).
	OutputPathKey = "output.path"
)

const (
	// Standard ML operations
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationFitTransform = "fit_transform"

	// Pipeline stages of a study run
	PhaseLoad          = "load"
	PhaseExplore       = "explore"
	PhaseSplit         = "split"
	PhasePreprocessing = "preprocessing"
	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseEvaluation    = "evaluation"
	PhaseReport        = "report"

	// Standard error codes
	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorInvalidInput      = "INVALID_INPUT"
	ErrorCancelled         = "CANCELLED"
	ErrorInternal          = "INTERNAL"
)
