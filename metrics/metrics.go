package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

const (
	MetricsNamespace = "testkit"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of executed tests by result and failure kind",
	}, []string{
		"result",
		"kind",
	})

	testAttempts = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "test_attempts",
		Help:      "Number of attempts a test needed to settle",
		Buckets:   []float64{1, 2, 3, 5, 8, 13},
	}, []string{
		"result",
	})

	testDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "test_duration_seconds",
		Help:      "Duration of the attempt that decided a test",
		Buckets:   prometheus.DefBuckets,
	}, []string{
		"result",
	})

	suiteResults = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_results",
		Help:      "Result of suite runs",
	}, []string{
		"run_id",
		"result",
	})

	suiteTests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_tests",
		Help:      "Number of leaf tests in suite runs by status",
	}, []string{
		"run_id",
		"status",
	})

	suiteDuration = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_duration_seconds",
		Help:      "Duration of suite runs",
	}, []string{
		"run_id",
	})
)

// Collectors returns every collector of the package, for registration on a
// registry such as the one served by the metrics server.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		errorsTotal,
		testsTotal,
		testAttempts,
		testDuration,
		suiteResults,
		suiteTests,
		suiteDuration,
	}
}

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordTest records the terminal outcome of a leaf test. kind is empty for passing tests.
func RecordTest(result types.TestStatus, kind types.ErrorKind, attempts int, elapsed time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordTest - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "tests_total",
			"result", result,
			"kind", kind,
			"attempts", attempts)
	}
	testsTotal.WithLabelValues(string(result), string(kind)).Inc()
	testAttempts.WithLabelValues(string(result)).Observe(float64(attempts))
	testDuration.WithLabelValues(string(result)).Observe(elapsed.Seconds())
}

// RecordSuite records the outcome of a whole suite run
func RecordSuite(runID string, result types.TestStatus, stats types.ResultStats, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordSuite - invalid result", "result", result)
		return
	}
	suiteResults.WithLabelValues(runID, string(result)).Set(1)
	suiteTests.WithLabelValues(runID, string(types.TestStatusPass)).Add(float64(stats.Passed))
	suiteTests.WithLabelValues(runID, string(types.TestStatusFail)).Add(float64(stats.Failed))
	suiteTests.WithLabelValues(runID, string(types.TestStatusSkip)).Add(float64(stats.Skipped))
	suiteDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
