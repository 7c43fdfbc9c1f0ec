package journal

import (
	"testing"
)

// NewTestJournal opens a fresh in-memory journal closed at test cleanup.
func NewTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening test journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	return j
}
