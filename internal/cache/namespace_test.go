package cache

import "testing"

func TestStats_HitRate(t *testing.T) {
	tests := []struct {
		name string
		s    Stats
		want float64
	}{
		{"no lookups", Stats{}, 0},
		{"all hits", Stats{Hits: 10}, 1},
		{"half", Stats{Hits: 5, Misses: 5}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.HitRate(); got != tt.want {
				t.Errorf("HitRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeyForList(t *testing.T) {
	if got := KeyForList("agent_list", "active"); got != "agent_list:active" {
		t.Errorf("KeyForList() = %q, want %q", got, "agent_list:active")
	}
}

func TestNamespacedKey(t *testing.T) {
	if got := namespacedKey("agent_config", "abc"); got != "agent_config:abc" {
		t.Errorf("namespacedKey() = %q, want %q", got, "agent_config:abc")
	}
}
