package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an external provider is failing; the pipeline still
	// serves via its fallback paths.
	Degraded Status = "degraded"
	// Unhealthy indicates the backing store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding ProviderChecker
	generator ProviderChecker
}

// New creates a Service. embedding and generator can be nil.
func New(db DBPinger, embedding, generator ProviderChecker) *Service {
	return &Service{db: db, embedding: embedding, generator: generator}
}

// Check runs health checks against all components. A database failure is
// fatal (candidates, features, and fallbacks all live there); a provider
// failure only degrades, since expansion and reranking fail open.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	dbOK := s.db.Ping(ctx) == nil
	if dbOK {
		checks["database"] = CheckOK
	} else {
		checks["database"] = CheckError
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	if s.generator != nil {
		if err := s.generator.HealthCheck(ctx); err != nil {
			checks["generator"] = CheckError
		} else {
			checks["generator"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if !dbOK {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}
