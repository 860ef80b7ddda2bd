package orders

import (
	"bazaar/errs"
	"bazaar/models"
)

// forward is the single step strict mode permits out of each status.
var forward = map[models.Status]models.Status{
	models.StatusPending:    models.StatusProcessing,
	models.StatusProcessing: models.StatusShipped,
	models.StatusShipped:    models.StatusDelivered,
}

// CanTransition reports whether an order may move from one status to another.
// Permissive mode accepts any pair, matching how orders have always behaved;
// strict mode only allows staying put or taking the next forward step.
func CanTransition(strict bool, from, to models.Status) bool {
	if !strict || from == to {
		return true
	}
	if from == "" {
		from = models.StatusPending
	}
	return forward[from] == to
}

func checkTransition(strict bool, from, to models.Status) error {
	if !CanTransition(strict, from, to) {
		return errs.Conflictf("cannot move order from %s to %s", from, to)
	}
	return nil
}
