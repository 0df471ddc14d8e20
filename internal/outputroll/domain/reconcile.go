package domain

import "github.com/shopspring/decimal"

// Reconciliation is the outcome of weighing a roll.
type Reconciliation struct {
	NetWeight      decimal.Decimal
	Ratio          decimal.Decimal
	CorrectedMeter decimal.Decimal
}

// Reconcile derives the net weight and the corrected meter that is reported
// to the ERP. The meter-per-kilogram ratio is rounded to two places before
// it is applied, so the corrected meter can drift from nominal.
func Reconcile(nominalMeter, rawWeight, coreWeight decimal.Decimal) Reconciliation {
	net := rawWeight.Sub(coreWeight)
	if net.IsNegative() {
		net = decimal.Zero
	}
	if !net.IsPositive() {
		return Reconciliation{NetWeight: net, Ratio: decimal.Zero, CorrectedMeter: decimal.Zero}
	}
	ratio := nominalMeter.DivRound(net, 16).Round(2)
	return Reconciliation{
		NetWeight:      net,
		Ratio:          ratio,
		CorrectedMeter: ratio.Mul(net).Round(2),
	}
}
