package correlation

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewIsUniqueUUID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := New()
		u, err := uuid.Parse(id)
		if err != nil {
			t.Fatalf("%q is not a uuid: %v", id, err)
		}
		if u.Version() != 4 {
			t.Errorf("version %d, want 4", u.Version())
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestNewLabelled(t *testing.T) {
	if id := NewLabelled("feed"); !strings.HasPrefix(id, "feed:") {
		t.Errorf("got %s", id)
	}
	if _, err := uuid.Parse(NewLabelled("")); err != nil {
		t.Errorf("unlabelled id is not a uuid: %v", err)
	}
}
