package training

import (
	"github.com/YassChaai/SmartCare-Analytics/internal/eval"
	"github.com/YassChaai/SmartCare-Analytics/internal/features"
)

// Baseline names as stored in the metrics report.
const (
	BaselineLag4      = eval.BaselinePrefix + "lag_4"
	BaselineLag7      = eval.BaselinePrefix + "lag_7"
	BaselineRollMean7 = eval.BaselinePrefix + "roll_mean_7"
	BaselineRules     = eval.BaselinePrefix + "rules"
)

// ruleFactors multiply the 7-day rolling mean in the rule-based baseline.
var ruleFactors = []string{
	features.ColMultDay,
	features.ColMultHoliday,
	features.ColMultSeason,
	features.ColMultEvent,
}

// Baselines computes the naive predictions for rows. A baseline whose
// source column is missing from the rows is omitted.
func Baselines(rows []features.Row) map[string][]float64 {
	out := make(map[string][]float64)
	if len(rows) == 0 {
		return out
	}

	copyColumn := func(name, col string) {
		if !rows[0].Has(col) {
			return
		}
		pred := make([]float64, len(rows))
		for i, r := range rows {
			pred[i] = r.Get(col)
		}
		out[name] = pred
	}
	copyColumn(BaselineLag4, features.LagColumn(4))
	copyColumn(BaselineLag7, features.LagColumn(7))
	copyColumn(BaselineRollMean7, features.RollMeanColumn(7))

	roll := features.RollMeanColumn(7)
	if !rows[0].Has(roll) {
		return out
	}
	pred := make([]float64, len(rows))
	for i, r := range rows {
		v := r.Get(roll)
		for _, f := range ruleFactors {
			if r.Has(f) {
				v *= r.Get(f)
			}
		}
		pred[i] = v
	}
	out[BaselineRules] = pred
	return out
}
