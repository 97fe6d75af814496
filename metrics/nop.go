package metrics

import "time"

// NopCollector is used when metrics are disabled and in tests.
var NopCollector Collector = &nopCollector{}

type nopCollector struct{}

func (c *nopCollector) ApiErrorOccurred()                                     {}
func (c *nopCollector) SimulationRun()                                        {}
func (c *nopCollector) ViolationRecorded(kind string)                         {}
func (c *nopCollector) EntityBanned(role string)                              {}
func (c *nopCollector) MeasureRequestDuration(start time.Time, method string) {}
