package types

// MetricType is the per-(customer, metric) aggregation key. It is resolved
// 1:1 from a TelemetryEvent's EventType via the static mapping below —
// modeled as an explicit tagged variant rather than a dynamic dispatch map.
type MetricType string

const (
	MetricAPICalls           MetricType = "api_calls"
	MetricStorageGBHours     MetricType = "storage_gb_hours"
	MetricBandwidthMB        MetricType = "bandwidth_mb"
	MetricComputeHours       MetricType = "compute_hours"
	MetricStorageGBPeak      MetricType = "storage_gb_peak"
	MetricConcurrentUsersMax MetricType = "concurrent_users_max"
	MetricDefault            MetricType = "default"
)

// AggregationFunc is the closed set of per-metric aggregation functions the
// Aggregator applies when folding an event into its window.
type AggregationFunc string

const (
	AggregationSum AggregationFunc = "SUM"
	AggregationMax AggregationFunc = "MAX"
)

// Unit is the unit of measure recorded alongside an AggregatedUsage value.
type Unit string

const (
	UnitCount        Unit = "count"
	UnitGBHours      Unit = "gb_hours"
	UnitMegabytes    Unit = "megabytes"
	UnitHours        Unit = "hours"
	UnitGB           Unit = "gb"
	UnitUsers        Unit = "users"
)

// ResolveMetricType maps an event's eventType to its MetricType. Unknown
// event types fall through to MetricDefault's "default count" behavior.
func ResolveMetricType(eventType string) MetricType {
	switch mt := MetricType(eventType); mt {
	case MetricAPICalls, MetricStorageGBHours, MetricBandwidthMB, MetricComputeHours,
		MetricStorageGBPeak, MetricConcurrentUsersMax, MetricDefault:
		return mt
	default:
		return MetricDefault
	}
}

// Unit returns the unit of measure for a metric type, defaulting to count
// for any metric outside the closed enumeration (should not happen once
// ResolveMetricType has run, but keeps the lookup total).
func (m MetricType) Unit() Unit {
	switch m {
	case MetricStorageGBHours:
		return UnitGBHours
	case MetricBandwidthMB:
		return UnitMegabytes
	case MetricComputeHours:
		return UnitHours
	case MetricStorageGBPeak:
		return UnitGB
	case MetricConcurrentUsersMax:
		return UnitUsers
	default: // MetricAPICalls, MetricDefault
		return UnitCount
	}
}

// Aggregator returns the aggregation function for a metric type.
func (m MetricType) Aggregator() AggregationFunc {
	switch m {
	case MetricStorageGBPeak, MetricConcurrentUsersMax:
		return AggregationMax
	default:
		return AggregationSum
	}
}
