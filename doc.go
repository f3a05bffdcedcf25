// Package heartml is an exploratory analysis and classification toolkit for
// tabular heart-disease data.
//
// A study loads a CSV or XLSX dataset, prints pandas-style summaries
// (head, info, describe, value counts, correlations), splits the rows with
// stratification, scales the features and trains a logistic regression and
// a random forest. Both models are evaluated on the held-out rows with
// accuracy, a classification report and a confusion matrix, and the forest's
// impurity importances rank the features.
//
// # Quick Start
//
//	cfg := config.Default()
//	cfg.DataPath = "heart.csv"
//	cfg.CVFolds = 5
//
//	res, err := study.Run(ctx, cfg, nil, study.WithOutput(os.Stdout))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Evaluation(study.ModelRandomForest).Accuracy)
//
// The same study is available from the command line:
//
//	heartml run --data heart.csv --cv-folds 5 --report
//
// # Packages
//
//   - dataset: loading, frame operations and summary statistics
//   - preprocessing: StandardScaler and MinMaxScaler
//   - sklearn/model_selection: TrainTestSplit, KFold, StratifiedKFold, CrossValScore
//   - sklearn/linear_model: LogisticRegression (L-BFGS and gradient descent)
//   - sklearn/tree: DecisionTreeClassifier (CART, Gini)
//   - sklearn/ensemble: RandomForestClassifier
//   - metrics: accuracy, confusion matrix, classification report, AUC
//   - viz: count plots, heatmaps and importance bar charts (PNG)
//   - report: console, Markdown and HTML study reports
//   - study: the end-to-end pipeline
//   - config: defaults, .env files and HEARTML_* environment variables
//   - core/model, core/parallel: estimator state, persistence and workers
//   - pkg/errors, pkg/log: structured errors, warnings and logging
//
// Labels are passed as n×1 matrices of integer-valued floats, the way
// gonum expresses a column vector.
package heartml
