package collab

import "fmt"

// WarningThresholds are the budget fractions that raise a warning.
var WarningThresholds = []float64{0.5, 0.8, 0.95}

// BudgetAlert describes a crossed budget threshold. Budgets are advisory:
// alerts are reported, nothing is stopped.
type BudgetAlert struct {
	Resource  string  `json:"resource"` // "tokens" or "cost"
	Threshold float64 `json:"threshold"`
	Used      float64 `json:"used"`
	Budget    float64 `json:"budget"`
	Exceeded  bool    `json:"exceeded"`
}

// Message renders the alert for a status event.
func (a BudgetAlert) Message() string {
	if a.Exceeded {
		return fmt.Sprintf("Budget exceeded: %s %.4g of %.4g", a.Resource, a.Used, a.Budget)
	}
	return fmt.Sprintf("Budget warning: %s at %.0f%% (%.4g of %.4g)", a.Resource, a.Threshold*100, a.Used, a.Budget)
}

// CheckBudget returns alerts crossed since the last call. Each alert fires at
// most once per state; extending a budget does not re-arm lower thresholds.
func (s *State) CheckBudget() []BudgetAlert {
	if s.BudgetAlerts == nil {
		s.BudgetAlerts = map[string]bool{}
	}
	var alerts []BudgetAlert
	alerts = append(alerts, s.check("tokens", float64(s.TokensUsed), float64(s.TokensBudget))...)
	alerts = append(alerts, s.check("cost", s.Cost, s.CostBudget)...)
	return alerts
}

func (s *State) check(resource string, used, budget float64) []BudgetAlert {
	if budget <= 0 {
		return nil
	}
	var alerts []BudgetAlert
	ratio := used / budget
	if ratio > 1 {
		key := resource + ":exceeded"
		if !s.BudgetAlerts[key] {
			s.BudgetAlerts[key] = true
			alerts = append(alerts, BudgetAlert{Resource: resource, Threshold: 1, Used: used, Budget: budget, Exceeded: true})
		}
		// Lower thresholds are implied once exceeded.
		for _, t := range WarningThresholds {
			s.BudgetAlerts[fmt.Sprintf("%s:%.2f", resource, t)] = true
		}
		return alerts
	}

	// Only the highest newly crossed threshold is reported.
	var crossed *BudgetAlert
	for _, t := range WarningThresholds {
		key := fmt.Sprintf("%s:%.2f", resource, t)
		if ratio >= t && !s.BudgetAlerts[key] {
			s.BudgetAlerts[key] = true
			crossed = &BudgetAlert{Resource: resource, Threshold: t, Used: used, Budget: budget}
		}
	}
	if crossed != nil {
		alerts = append(alerts, *crossed)
	}
	return alerts
}

// ExtendBudget raises both budgets. The exceeded alert is re-armed so a
// later overrun of the new budget is reported.
func (s *State) ExtendBudget(tokens int, cost float64) {
	s.TokensBudget = SaturatingAdd(s.TokensBudget, tokens)
	s.CostBudget += cost
	if s.BudgetAlerts != nil {
		delete(s.BudgetAlerts, "tokens:exceeded")
		delete(s.BudgetAlerts, "cost:exceeded")
	}
}
