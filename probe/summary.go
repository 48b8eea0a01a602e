package probe

import "fmt"

const (
	verdictOpen    = "provider is not blocking this network path"
	verdictBlocked = "provider is blocked or unreachable from this network path"
	verdictEmpty   = "no endpoints were probed"
)

// Summary aggregates a run. Blocked is true iff any endpoint was unreachable;
// 404s and other statuses prove the path is open even when they are not 2xx.
type Summary struct {
	AccessibleCount    int    `json:"accessible_count"`
	AuthRequiredCount  int    `json:"auth_required_count"`
	NotFoundCount      int    `json:"not_found_count"`
	UnreachableCount   int    `json:"unreachable_count"`
	ErrorCount         int    `json:"error_count"`
	TotalCount         int    `json:"total_count"`
	Blocked            bool   `json:"blocked"`
	VerdictText        string `json:"verdict"`
	RecommendationText string `json:"recommendation"`
}

func Summarize(results []Result) Summary {
	s := Summary{TotalCount: len(results)}
	for _, r := range results {
		switch r.Classification {
		case Accessible:
			s.AccessibleCount++
		case AuthRequired:
			s.AuthRequiredCount++
		case NotFound:
			s.NotFoundCount++
		case Unreachable:
			s.UnreachableCount++
		default:
			s.ErrorCount++
		}
	}

	s.Blocked = s.UnreachableCount > 0
	switch {
	case s.TotalCount == 0:
		s.VerdictText = verdictEmpty
		s.RecommendationText = "configure at least one endpoint to probe"
	case s.Blocked:
		s.VerdictText = verdictBlocked
		s.RecommendationText = fmt.Sprintf(
			"%d of %d endpoints timed out or refused the connection; check network egress rules (firewall, proxy, DNS) for the provider's hosts",
			s.UnreachableCount, s.TotalCount)
	case s.AuthRequiredCount > 0:
		s.VerdictText = verdictOpen
		s.RecommendationText = "some endpoints require authentication; supply a valid personal token or complete the OAuth authorization"
	case s.ErrorCount > 0:
		s.VerdictText = verdictOpen
		s.RecommendationText = "some endpoints answered with unexpected statuses; see the per endpoint detail"
	default:
		s.VerdictText = verdictOpen
		s.RecommendationText = "no action needed"
	}
	return s
}
