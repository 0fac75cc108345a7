package normalizer

import (
	"sort"

	"exchangeflow/models"
)

// Timestamped is implemented by the entities that can be windowed.
type Timestamped interface {
	models.Trade | models.Order | models.Transaction
}

func timestampOf[T Timestamped](v T) *int64 {
	switch x := any(v).(type) {
	case models.Trade:
		return x.Timestamp
	case models.Order:
		return x.Timestamp
	case models.Transaction:
		return x.Timestamp
	}
	return nil
}

// FilterBySinceLimit sorts items by timestamp, drops those older than since
// and caps the result at limit. With since set the earliest limit items are
// kept, otherwise the latest. A nil since or a non-positive limit disables
// that part of the filter. Items without a timestamp sort first and are
// dropped whenever since is set.
func FilterBySinceLimit[T Timestamped](items []T, since *int64, limit int) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if since != nil {
			ts := timestampOf(it)
			if ts == nil || *ts < *since {
				continue
			}
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := timestampOf(out[i]), timestampOf(out[j])
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return *a < *b
		}
	})
	if limit > 0 && len(out) > limit {
		if since != nil {
			out = out[:limit]
		} else {
			out = out[len(out)-limit:]
		}
	}
	return out
}

// FilterOrdersByStatus keeps orders whose status is one of statuses.
func FilterOrdersByStatus(orders []models.Order, statuses ...models.OrderStatus) []models.Order {
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		for _, s := range statuses {
			if o.Status == s {
				out = append(out, o)
				break
			}
		}
	}
	return out
}

// FilterBySymbol keeps trades or orders for symbol. An empty symbol keeps
// everything.
func FilterBySymbol[T models.Trade | models.Order](items []T, symbol string) []T {
	if symbol == "" {
		return items
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		var s string
		switch x := any(it).(type) {
		case models.Trade:
			s = x.Symbol
		case models.Order:
			s = x.Symbol
		}
		if s == symbol {
			out = append(out, it)
		}
	}
	return out
}

// FilterByCurrency keeps transactions in code. An empty code keeps
// everything.
func FilterByCurrency(txs []models.Transaction, code string) []models.Transaction {
	if code == "" {
		return txs
	}
	out := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Currency == code {
			out = append(out, tx)
		}
	}
	return out
}
