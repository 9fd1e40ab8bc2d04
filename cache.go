package quarry

import (
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// StmtText is a compute-once holder for a rendered SQL statement string.
// The builder function runs at most once even under concurrent first use,
// and the published text is immutable afterwards. Backing stores keep one
// StmtText per statement shape (set, unset, shift, clear, iterate) so the
// text is derived from the table model exactly once per process.
type StmtText struct {
	text  atomic.Pointer[string]
	group singleflight.Group
}

// Get returns the statement text, invoking build on first use.
// A build error is returned to every concurrent caller and nothing is
// published, so a later call retries the build.
func (s *StmtText) Get(build func() (string, error)) (string, error) {
	if p := s.text.Load(); p != nil {
		return *p, nil
	}
	v, err, _ := s.group.Do("stmt", func() (any, error) {
		if p := s.text.Load(); p != nil {
			return *p, nil
		}
		text, err := build()
		if err != nil {
			return "", err
		}
		s.text.Store(&text)
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// MustGet is like Get for builders that cannot fail.
func (s *StmtText) MustGet(build func() string) string {
	text, _ := s.Get(func() (string, error) {
		return build(), nil
	})
	return text
}
