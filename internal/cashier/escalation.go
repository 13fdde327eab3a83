package cashier

import "math"

// Risk factor names, in scoring order.
const (
	FactorAngry          = "angry_mood"
	FactorComplaint      = "open_complaint"
	FactorSpecialRequest = "special_request"
	FactorLargeCart      = "large_cart"
	FactorPaymentIssue   = "payment_issue"
	FactorVIP            = "vip"
)

// largeCartUnits is the cart size above which a customer counts as a risk.
const largeCartUnits = 20

var factorNames = []string{
	FactorAngry,
	FactorComplaint,
	FactorSpecialRequest,
	FactorLargeCart,
	FactorPaymentIssue,
	FactorVIP,
}

func riskFactors(c Customer) []bool {
	return []bool{
		c.Mood == "angry",
		c.HasComplaint,
		c.SpecialRequest,
		c.CartSize() > largeCartUnits,
		c.PaymentIssue,
		c.VIP,
	}
}

// ActiveFactors names the risk factors that hold for c.
func ActiveFactors(c Customer) []string {
	var out []string
	for i, on := range riskFactors(c) {
		if on {
			out = append(out, factorNames[i])
		}
	}
	return out
}

// EscalationScore is the fraction of risk factors that hold for c, in [0,1].
func EscalationScore(c Customer) float64 {
	return float64(len(ActiveFactors(c))) / float64(len(factorNames))
}

// ShouldEscalate reports whether c goes straight to a human. With the default
// threshold of 0.7 that takes five of the six factors.
func ShouldEscalate(c Customer, threshold float64) bool {
	return EscalationScore(c) >= threshold
}

// FactorsRequired is the smallest number of true factors that escalates at threshold.
func FactorsRequired(threshold float64) int {
	n := int(math.Ceil(threshold * float64(len(factorNames))))
	if n < 0 {
		return 0
	}
	return n
}
