package types

// PracticeStatus represents the lifecycle state of a scheduled practice.
type PracticeStatus string

const (
	PracticeScheduled PracticeStatus = "scheduled"
	PracticeConfirmed PracticeStatus = "confirmed"
	PracticeCancelled PracticeStatus = "cancelled"
)

// RequestStatus represents the lifecycle state of a cancellation request.
// A request starts as pending and transitions exactly once to approved,
// rejected, or expired. All non-pending states are terminal.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
	RequestExpired  RequestStatus = "expired"
)

// IsTerminal reports whether the status permits no further transitions.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestApproved || s == RequestRejected || s == RequestExpired
}

// Severity classifies a threshold violation. Critical means the practice is
// unsafe to proceed regardless of anything else; warning is advisory.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ReasonType categorizes why a cancellation was proposed, derived from the
// strict majority of violation categories.
type ReasonType string

const (
	ReasonWeather         ReasonType = "weather"
	ReasonTrailConditions ReasonType = "trail_conditions"
	ReasonNoLead          ReasonType = "no_lead"
	ReasonDaylight        ReasonType = "daylight"
	ReasonMultipleFactors ReasonType = "multiple_factors"
)

// TrailsOpen describes how much of a venue's trail network is skiable.
type TrailsOpen string

const (
	TrailsAll     TrailsOpen = "all"
	TrailsMost    TrailsOpen = "most"
	TrailsPartial TrailsOpen = "partial"
	TrailsClosed  TrailsOpen = "closed"
	TrailsUnknown TrailsOpen = "unknown"
)

// SkiQuality is the ordered snow quality scale, best first.
type SkiQuality string

const (
	QualityExcellent SkiQuality = "excellent"
	QualityGood      SkiQuality = "good"
	QualityFair      SkiQuality = "fair"
	QualityPoor      SkiQuality = "poor"
	QualityBSkis     SkiQuality = "b_skis"
	QualityRockSkis  SkiQuality = "rock_skis"
)

// skiQualityOrder maps each quality to its rank on the ordered scale.
// Lower rank is better. Unknown values map to -1.
var skiQualityOrder = map[SkiQuality]int{
	QualityExcellent: 0,
	QualityGood:      1,
	QualityFair:      2,
	QualityPoor:      3,
	QualityBSkis:     4,
	QualityRockSkis:  5,
}

// Rank returns the position of the quality on the ordered scale, or -1 if
// the value is not a known quality.
func (q SkiQuality) Rank() int {
	if r, ok := skiQualityOrder[q]; ok {
		return r
	}
	return -1
}

// WorseThan reports whether q is strictly worse than other on the ordered
// scale. Unknown values are never considered worse (they rank as -1).
func (q SkiQuality) WorseThan(other SkiQuality) bool {
	qr, or := q.Rank(), other.Rank()
	if qr < 0 || or < 0 {
		return false
	}
	return qr > or
}

// GroomedFor describes which technique a venue's grooming supports.
type GroomedFor string

const (
	GroomedClassic GroomedFor = "classic"
	GroomedSkate   GroomedFor = "skate"
	GroomedBoth    GroomedFor = "both"
	GroomedNone    GroomedFor = "none"
)

// AlertSeverity is the severity scale used by upstream weather alerts.
type AlertSeverity string

const (
	AlertMinor    AlertSeverity = "minor"
	AlertModerate AlertSeverity = "moderate"
	AlertSevere   AlertSeverity = "severe"
	AlertExtreme  AlertSeverity = "extreme"
)

// Cancels reports whether an alert of this severity is critical on its own.
func (s AlertSeverity) Cancels() bool {
	return s == AlertSevere || s == AlertExtreme
}
