package service

import (
	messageDomain "github.com/allisson/courier/internal/message/domain"
)

// PlanQuotas splits a claim budget across tiers by weight (weighted round-robin).
// Every tier with a positive weight gets at least one slot when the budget allows,
// so a P0 flood cannot starve P4. Remainders go to the highest tiers first. Slots a
// tier cannot fill are handed to the other tiers by the caller.
func PlanQuotas(weights [messageDomain.PriorityCount]int, budget int) [messageDomain.PriorityCount]int {
	var quotas [messageDomain.PriorityCount]int
	if budget <= 0 {
		return quotas
	}

	total := 0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		quotas[0] = budget
		return quotas
	}

	assigned := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		quotas[i] = budget * w / total
		if quotas[i] == 0 {
			quotas[i] = 1
		}
		assigned += quotas[i]
	}

	// budget smaller than the tier count: lowest tiers give their slot back
	for i := messageDomain.PriorityCount - 1; assigned > budget && i >= 0; i-- {
		for quotas[i] > 0 && assigned > budget {
			quotas[i]--
			assigned--
		}
	}
	for i := 0; assigned < budget; i = (i + 1) % messageDomain.PriorityCount {
		if weights[i] > 0 {
			quotas[i]++
			assigned++
		}
	}
	return quotas
}
