package model

// QueryOutcome is the data-query specialist's report for one dispatch.
// Ordinary query failures (bad SQL, empty result set, per-call timeout) are
// carried here as Success=false; they never surface as raised faults.
type QueryOutcome struct {
	Result     string
	SQLQueries string
	Success    bool
	ErrorNote  string
}

// Merge folds the outcome into the shared state. The previous response is
// overwritten on every dispatch and never cleared implicitly.
func (o *QueryOutcome) Merge(s *RunState) {
	if o.Result != "" {
		s.TDAgentResponse = o.Result
	}
	if o.SQLQueries != "" {
		s.SQLQueries = o.SQLQueries
	}
	if !o.Success {
		s.AppendError("teradata: " + o.ErrorNote)
		if o.Result == "" {
			s.TDAgentResponse = o.ErrorNote
		}
	}
}

// PlotOutcome is the visualization specialist's report for one dispatch.
// Success means a chart artifact was confirmed on disk, not merely that
// plotting code ran.
type PlotOutcome struct {
	Description  string
	ArtifactPath string
	Success      bool
	ErrorNote    string
}

// Merge folds the outcome into the shared state. IsPlot turns true only on a
// confirmed artifact and is never unset mid-run.
func (o *PlotOutcome) Merge(s *RunState) {
	if o.Description != "" {
		s.PlotAgentResponse = o.Description
	}
	if o.Success {
		s.IsPlot = true
		s.ArtifactPath = o.ArtifactPath
		return
	}
	s.AppendError("plot: " + o.ErrorNote)
	if o.Description == "" {
		s.PlotAgentResponse = o.ErrorNote
	}
}
