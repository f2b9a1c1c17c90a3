// Package tile holds the pure grid math for agent tile bets: the payout
// multiplier as a function of time distance, and the row/price mapping.
package tile

import "math"

// PriceStep is the fixed height of one price row in quote currency.
const PriceStep = 25.0

// Multiplier returns the payout ratio for a tile at targetCol, seen from
// currentCol. Tiles in the past or present are invalid and return 0.
//
// The multiplier grows piecewise with time distance d = targetCol - currentCol:
// 1.1 + 0.1*d up to d=3, 1.5 + 0.2*(d-3) up to d=8, then 2.5 + 0.3*(d-8).
func Multiplier(targetCol, currentCol int) float64 {
	d := targetCol - currentCol
	switch {
	case d <= 0:
		return 0
	case d <= 3:
		return 1.1 + float64(d)*0.1
	case d <= 8:
		return 1.5 + float64(d-3)*0.2
	default:
		return 2.5 + float64(d-8)*0.3
	}
}

// MultiplierBps returns the multiplier scaled by 100 and rounded to the
// nearest integer. Profit math uses this so winning payouts stay in exact
// integer arithmetic: profit = amount * bps / 100, truncating.
func MultiplierBps(targetCol, currentCol int) int64 {
	return int64(math.Round(Multiplier(targetCol, currentCol) * 100))
}

// WinProfit computes the integer profit for a winning stake at the given
// multiplier basis points. Division truncates toward zero.
func WinProfit(amount, bps int64) int64 {
	return amount * bps / 100
}

// TargetPrice maps a row index to the lower bound of its price band.
func TargetPrice(row int, basePrice float64) float64 {
	return basePrice + float64(row)*PriceStep
}

// InRange reports whether price falls inside row's band. Bands are half-open,
// lower-inclusive: [TargetPrice(row), TargetPrice(row+1)). A boundary price
// belongs to the lower row, never both.
func InRange(price float64, row int, basePrice float64) bool {
	return price >= TargetPrice(row, basePrice) && price < TargetPrice(row+1, basePrice)
}
