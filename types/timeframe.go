package types

// Timeframe identifies the bar bucketing of a snapshot partition.
type Timeframe string

const (
	TimeframeD1  Timeframe = "D1"
	TimeframeH4  Timeframe = "H4"
	TimeframeH1  Timeframe = "H1"
	TimeframeM15 Timeframe = "M15"
	TimeframeM1  Timeframe = "M1"
)

var knownTimeframes = map[Timeframe]bool{
	TimeframeD1:  true,
	TimeframeH4:  true,
	TimeframeH1:  true,
	TimeframeM15: true,
	TimeframeM1:  true,
}

// Valid reports whether the timeframe is one of the supported buckets.
func (tf Timeframe) Valid() bool {
	return knownTimeframes[tf]
}
