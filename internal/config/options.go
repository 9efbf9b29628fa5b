package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/samber/lo"
)

// Option is one entry of a fixed enumeration offered to the user.
type Option[T any] struct {
	Label string
	Value T
}

// Intervals are the permitted polling cadences.
var Intervals = []Option[time.Duration]{
	{Label: "30s", Value: 30 * time.Second},
	{Label: "1m", Value: time.Minute},
	{Label: "5m", Value: 5 * time.Minute},
	{Label: "30m", Value: 30 * time.Minute},
	{Label: "1hr", Value: time.Hour},
}

// Periods map a history label to the retention bound in points. The bound
// is a point count, so the covered duration depends on the interval.
var Periods = []Option[int]{
	{Label: "1hr", Value: 60},
	{Label: "6hr", Value: 360},
	{Label: "24hr", Value: 1440},
}

// ParseInterval accepts an enumerated label ("1hr") or any Go duration
// string equal to a permitted interval ("1h", "60s").
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if opt, ok := lo.Find(Intervals, func(o Option[time.Duration]) bool { return strings.EqualFold(o.Label, s) }); ok {
		return opt.Value, nil
	}
	d, err := time.ParseDuration(s)
	if err == nil && ValidInterval(d) {
		return d, nil
	}
	return 0, fmt.Errorf("unknown interval %q (want one of %s)", s, strings.Join(IntervalLabels(), ", "))
}

// ValidInterval reports whether d is one of Intervals.
func ValidInterval(d time.Duration) bool {
	return lo.ContainsBy(Intervals, func(o Option[time.Duration]) bool { return o.Value == d })
}

// IntervalLabel returns the label for d, or d.String() when it is not enumerated.
func IntervalLabel(d time.Duration) string {
	if opt, ok := lo.Find(Intervals, func(o Option[time.Duration]) bool { return o.Value == d }); ok {
		return opt.Label
	}
	return d.String()
}

// IntervalLabels lists the interval labels in order.
func IntervalLabels() []string {
	return lo.Map(Intervals, func(o Option[time.Duration], _ int) string { return o.Label })
}

// ParsePeriod resolves a period label to its retention point count.
func ParsePeriod(label string) (int, error) {
	label = strings.TrimSpace(label)
	opt, ok := lo.Find(Periods, func(o Option[int]) bool { return strings.EqualFold(o.Label, label) })
	if !ok {
		labels := lo.Map(Periods, func(o Option[int], _ int) string { return o.Label })
		return 0, fmt.Errorf("unknown period %q (want one of %s)", label, strings.Join(labels, ", "))
	}
	return opt.Value, nil
}

// intervalLabelHook lets "1hr" style labels decode into time.Duration fields.
func intervalLabelHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		if opt, ok := lo.Find(Intervals, func(o Option[time.Duration]) bool { return strings.EqualFold(o.Label, data.(string)) }); ok {
			return opt.Value, nil
		}
		return data, nil
	}
}
