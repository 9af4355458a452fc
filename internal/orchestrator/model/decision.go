package model

// Decision is the manager's routing verdict for one loop pass.
type Decision string

const (
	// DecisionQuery routes to the Teradata data-query specialist.
	DecisionQuery Decision = "teradata"
	// DecisionPlot routes to the visualization specialist.
	DecisionPlot Decision = "plot"
	// DecisionDone terminates the run with the manager's final answer.
	DecisionDone Decision = "done"
	// DecisionUnknown marks an unparseable manager output. It is retryable
	// and never treated as an implicit DecisionDone.
	DecisionUnknown Decision = "unknown"
)

func (d Decision) String() string {
	return string(d)
}

// Valid reports whether d is one of the enumerated routing values.
func (d Decision) Valid() bool {
	switch d {
	case DecisionQuery, DecisionPlot, DecisionDone, DecisionUnknown:
		return true
	}
	return false
}

// Terminal reports whether d ends the orchestration loop on its own.
func (d Decision) Terminal() bool {
	return d == DecisionDone
}
