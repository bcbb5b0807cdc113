package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImportStatsRecordAndReset(t *testing.T) {
	var s ImportStats
	s.Record(LevelDomain, false)
	s.Record(LevelNamespace, false)
	s.Record(LevelNamespace, true)
	s.Record(LevelMethod, true)
	s.Record(Level("bogus"), true)

	report := s.Report()
	assert.Equal(t, Counter{Added: 1}, report.Domain)
	assert.Equal(t, Counter{Added: 1, Updated: 1}, report.Namespace)
	assert.Equal(t, Counter{Updated: 1}, report.Method)
	assert.Equal(t, Counter{}, report.Class)

	s.Record(LevelClass, false)
	assert.Equal(t, Counter{}, report.Class, "report is a snapshot")

	s.Reset()
	assert.Equal(t, ImportStats{}, s.Report())
}
