package subscription

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/subsync/pkg/license"
)

// PlanMap resolves provider-specific plan/price identifiers to the generic
// SKU set. Each provider carries its own table, loaded from configuration at
// startup.
type PlanMap map[string]license.SKU

// Resolve maps a provider plan identifier to its SKU. Unknown identifiers
// are a fatal validation error so misconfigured plans surface immediately
// instead of being silently dropped.
func (m PlanMap) Resolve(planID string) (license.SKU, error) {
	if planID == "" {
		return "", errors.Join(ErrValidation, errors.New("empty plan identifier"))
	}
	sku, ok := m[planID]
	if !ok {
		return "", errors.Join(ErrValidation, ErrUnknownPlan, fmt.Errorf("plan %q", planID))
	}
	return sku, nil
}
