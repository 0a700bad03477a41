package dependencies

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hochfrequenz/project-tracker/internal/domain"
)

// ReferenceAnalyzer proposes dependencies from the references workstreams
// already declare, without calling any external service.
type ReferenceAnalyzer struct{}

// Analyze returns one proposal per declared dependency. References are
// resolved to workstream names by id, then by name ignoring case;
// references that match no workstream are passed through unchanged.
func (ReferenceAnalyzer) Analyze(_ context.Context, workstreams []*domain.Workstream, _ []*domain.Task) ([]domain.DependencyProposal, decimal.Decimal, error) {
	byID := make(map[string]string)
	for _, ws := range workstreams {
		if ws.ID != "" {
			byID[ws.ID] = ws.Key()
		}
	}

	var proposals []domain.DependencyProposal
	for _, ws := range workstreams {
		for _, ref := range ws.Dependencies {
			ref = strings.TrimSpace(ref)
			if ref == "" {
				continue
			}
			from := ref
			if name, ok := byID[ref]; ok {
				from = name
			} else {
				for _, other := range workstreams {
					if strings.EqualFold(other.Key(), ref) {
						from = other.Key()
						break
					}
				}
			}
			proposals = append(proposals, domain.DependencyProposal{
				From:   from,
				To:     ws.Key(),
				Reason: "declared by workstream",
			})
		}
	}
	return proposals, decimal.Zero, nil
}
