/**
 * @description
 * Fee splitting: divides a gross payment amount between the recipient, the
 * gateway operator, and the protocol treasury using basis-point rates.
 */
package billing

import (
	"math/bits"

	"github.com/tributary-so/tributary/internal/domain"
)

// FeeSplit is the exact three-way division of one payment. The parts always
// sum to the gross amount; rounding remainders accrue to the recipient.
type FeeSplit struct {
	RecipientAmount uint64
	GatewayFee      uint64
	ProtocolFee     uint64
}

// SplitFees computes the gateway fee, protocol fee, and net recipient amount
// for a gross amount. Fees are floor(amount * bps / 10000), computed with a
// 128-bit intermediate so the full uint64 amount range is safe. The combined
// rate must not exceed 10000 bps.
func SplitFees(amount uint64, gatewayFeeBps, protocolFeeBps uint16) (FeeSplit, error) {
	if uint32(gatewayFeeBps)+uint32(protocolFeeBps) > domain.MaxBps {
		return FeeSplit{}, ErrFeeRateTooHigh
	}

	gatewayFee := mulBps(amount, gatewayFeeBps)
	protocolFee := mulBps(amount, protocolFeeBps)

	fees := gatewayFee + protocolFee
	if fees < gatewayFee || fees > amount {
		return FeeSplit{}, ErrArithmeticOverflow
	}

	return FeeSplit{
		RecipientAmount: amount - fees,
		GatewayFee:      gatewayFee,
		ProtocolFee:     protocolFee,
	}, nil
}

// mulBps returns floor(amount * bps / 10000) without intermediate overflow.
// The 128-bit product's high word stays below the divisor for bps <= 10000,
// so the division cannot trap.
func mulBps(amount uint64, bps uint16) uint64 {
	if bps == 0 || amount == 0 {
		return 0
	}
	hi, lo := bits.Mul64(amount, uint64(bps))
	quo, _ := bits.Div64(hi, lo, domain.MaxBps)
	return quo
}
