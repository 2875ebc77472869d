package health

import (
	"context"
	"errors"
	"testing"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockChecker struct {
	err error
}

func (m *mockChecker) HealthCheck(_ context.Context) error { return m.err }

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockPinger{}, &mockChecker{}, &mockChecker{})

	report := svc.Check(context.Background())

	if report.Status != Healthy {
		t.Fatalf("status = %s, want ok", report.Status)
	}
	for _, name := range []string{"database", "embedding", "generator"} {
		if report.Checks[name] != CheckOK {
			t.Errorf("check %s = %s, want ok", name, report.Checks[name])
		}
	}
}

func TestCheck_DatabaseDownIsUnhealthy(t *testing.T) {
	svc := New(&mockPinger{err: errors.New("refused")}, &mockChecker{}, &mockChecker{})

	report := svc.Check(context.Background())

	if report.Status != Unhealthy {
		t.Fatalf("status = %s, want error", report.Status)
	}
	if report.Checks["database"] != CheckError {
		t.Errorf("database check = %s", report.Checks["database"])
	}
}

func TestCheck_ProviderDownDegrades(t *testing.T) {
	cases := []struct {
		name      string
		embedding error
		generator error
	}{
		{"embedding", errors.New("401"), nil},
		{"generator", nil, errors.New("timeout")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := New(&mockPinger{}, &mockChecker{err: tc.embedding}, &mockChecker{err: tc.generator})

			report := svc.Check(context.Background())

			if report.Status != Degraded {
				t.Fatalf("status = %s, want degraded", report.Status)
			}
			if report.Checks[tc.name] != CheckError {
				t.Errorf("check %s = %s, want error", tc.name, report.Checks[tc.name])
			}
		})
	}
}

func TestCheck_NilProvidersSkipped(t *testing.T) {
	svc := New(&mockPinger{}, nil, nil)

	report := svc.Check(context.Background())

	if report.Status != Healthy {
		t.Fatalf("status = %s, want ok", report.Status)
	}
	if len(report.Checks) != 1 {
		t.Fatalf("checks = %v, want database only", report.Checks)
	}
}
