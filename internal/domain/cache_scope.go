package domain

// ScopeKind selects which cached views an invalidation targets.
type ScopeKind string

const (
	ScopeGlobal  ScopeKind = "global"
	ScopeExam    ScopeKind = "exam"
	ScopeSubject ScopeKind = "subject"
)

// CacheScope names a set of cached views, e.g. every leaderboard of one exam.
type CacheScope struct {
	Kind ScopeKind `json:"kind"`
	Key  string    `json:"key,omitempty"`
}

func GlobalScope() CacheScope { return CacheScope{Kind: ScopeGlobal} }

func ExamScope(examID string) CacheScope { return CacheScope{Kind: ScopeExam, Key: examID} }

func SubjectScope(name string) CacheScope { return CacheScope{Kind: ScopeSubject, Key: name} }

// String renders the scope as "kind" or "kind:key"; it doubles as the tag name in caches.
func (s CacheScope) String() string {
	if s.Key == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ":" + s.Key
}
