package plan

import "testing"

func TestFind(t *testing.T) {
	plans := Defaults()

	p, ok := Find(plans, "pro")
	if !ok {
		t.Fatal("pro plan not found")
	}
	if p.RequestsPerMonth != 100000 {
		t.Errorf("pro quota = %d, want 100000", p.RequestsPerMonth)
	}

	if _, ok := Find(plans, "platinum"); ok {
		t.Error("unknown plan should not be found")
	}
	if _, ok := Find(nil, "free"); ok {
		t.Error("empty table should not resolve any plan")
	}
}

func TestQuotaFor(t *testing.T) {
	plans := Defaults()

	tests := []struct {
		id     string
		want   int64
		wantOK bool
	}{
		{"free", 100, true},
		{"starter", 10000, true},
		{"enterprise", -1, true},
		{"deleted_plan", 0, false},
	}
	for _, tt := range tests {
		got, ok := QuotaFor(plans, tt.id)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("QuotaFor(%q) = %d, %v, want %d, %v", tt.id, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestIsUnlimited(t *testing.T) {
	if IsUnlimited(Plan{RequestsPerMonth: 100}) {
		t.Error("bounded plan reported unlimited")
	}
	if !IsUnlimited(Plan{RequestsPerMonth: -1}) {
		t.Error("unlimited plan not reported")
	}
}

func TestDefaultsHaveUniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for _, p := range Defaults() {
		if seen[p.ID] {
			t.Errorf("duplicate plan id %q", p.ID)
		}
		seen[p.ID] = true
		if p.MaxKeys < 1 {
			t.Errorf("plan %q allows no keys", p.ID)
		}
	}
}
