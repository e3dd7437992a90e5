package metrics

import "time"

// Fitment is the instrument set of the fitment engine.
type Fitment struct {
	reg *Registry

	Requests       *Counter
	RequestSeconds *Histogram
	Superseded     *Counter
	ImportRows     *Counter
	ImportSkipped  *Counter
	Terminals      *Gauge
}

// NewFitment registers the fitment instruments on reg. A nil reg gets a
// fresh registry.
func NewFitment(reg *Registry) *Fitment {
	if reg == nil {
		reg = New()
	}
	return &Fitment{
		reg:            reg,
		Requests:       reg.Counter("fitment_requests_total", "Recommendation requests served."),
		RequestSeconds: reg.Histogram("fitment_request_seconds", "Recommendation latency in seconds.", nil),
		Superseded:     reg.Counter("fitment_superseded_total", "Resolutions discarded because a newer selection arrived."),
		ImportRows:     reg.Counter("fitment_import_rows_total", "Rows written by import jobs."),
		ImportSkipped:  reg.Counter("fitment_import_skipped_total", "Import rows skipped as malformed."),
		Terminals:      reg.Gauge("fitment_terminal_sessions", "POS terminals with an open selection session."),
	}
}

// Registry returns the underlying registry.
func (f *Fitment) Registry() *Registry { return f.reg }

// SourceErrors returns the failure counter of one catalog or fitment source.
func (f *Fitment) SourceErrors(source string) *Counter {
	return f.reg.Counter(WithLabels("fitment_source_errors_total", "source", source), "Source queries that failed and were treated as empty.")
}

// ObserveRequest counts one request and its latency.
func (f *Fitment) ObserveRequest(start time.Time) {
	f.Requests.Inc()
	f.RequestSeconds.Since(start)
}
