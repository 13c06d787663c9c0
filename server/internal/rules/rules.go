package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/vitalstream/vitalstream/pkg/types"
)

// Normal is the result text when no rule fires.
const Normal = "Normal"

// Separator joins alert descriptions in a result text.
const Separator = "; "

// Rule is one threshold condition on a single metric.
type Rule struct {
	Metric    string
	Op        string // ">" or "<"
	Threshold float64
	Alert     string
}

// Table is the ordered rule set. Order matters: alerts appear in the result
// text in this order.
var Table = []Rule{
	{Metric: types.HeartRate, Op: ">", Threshold: 120, Alert: "High heart rate — possible arrhythmia"},
	{Metric: types.SpO2, Op: "<", Threshold: 92, Alert: "Low oxygen level — possible respiratory issue"},
	{Metric: types.Glucose, Op: ">", Threshold: 200, Alert: "High glucose — possible diabetes complication"},
	{Metric: types.Temp, Op: ">", Threshold: 38.0, Alert: "Fever — possible infection"},
}

// Result is the outcome of evaluating one reading.
type Result struct {
	Alerts []string
}

// Fired reports whether at least one rule fired.
func (r Result) Fired() bool { return len(r.Alerts) > 0 }

// Text returns "Normal" or the alerts joined with "; ".
func (r Result) Text() string {
	if !r.Fired() {
		return Normal
	}
	return strings.Join(r.Alerts, Separator)
}

// Evaluate runs every rule in Table against v. Missing metrics never fire.
func Evaluate(v types.Vitals) Result {
	var res Result
	for _, rule := range Table {
		x, ok := v.Get(rule.Metric)
		if !ok {
			continue
		}
		if compareFloat(x, rule.Op, rule.Threshold) {
			res.Alerts = append(res.Alerts, rule.Alert)
		}
	}
	return res
}

// Summary formats the notifier message for a reading that fired.
func Summary(patientID string, v types.Vitals, res Result) string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.FormatFloat(v[k], 'f', -1, 64))
	}
	return fmt.Sprintf("Critical Alert: %s | Patient: %s | Vitals: %s",
		res.Text(), patientID, strings.Join(parts, " "))
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case "<":
		return v < threshold
	default:
		return false
	}
}
