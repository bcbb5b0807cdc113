package application

type Level string

const (
	LevelDomain    Level = "domain"
	LevelNamespace Level = "namespace"
	LevelClass     Level = "class"
	LevelInstance  Level = "instance"
	LevelMethod    Level = "method"
)

type Counter struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// ImportStats counts visited nodes per level. One value belongs to one run.
type ImportStats struct {
	Domain    Counter `json:"domain"`
	Namespace Counter `json:"namespace"`
	Class     Counter `json:"class"`
	Instance  Counter `json:"instance"`
	Method    Counter `json:"method"`
}

func (s *ImportStats) Reset() {
	*s = ImportStats{}
}

func (s *ImportStats) Record(level Level, existed bool) {
	c := s.counter(level)
	if c == nil {
		return
	}
	if existed {
		c.Updated++
	} else {
		c.Added++
	}
}

func (s *ImportStats) Report() ImportStats {
	return *s
}

func (s *ImportStats) counter(level Level) *Counter {
	switch level {
	case LevelDomain:
		return &s.Domain
	case LevelNamespace:
		return &s.Namespace
	case LevelClass:
		return &s.Class
	case LevelInstance:
		return &s.Instance
	case LevelMethod:
		return &s.Method
	}
	return nil
}
