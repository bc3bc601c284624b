package session

import "fmt"

// Stage is a step of the conversation flow.
type Stage string

const (
	StageGreeting           Stage = "greeting"
	StageIdentityCollection Stage = "identity_collection"
	StageAddressCollection  Stage = "address_collection"
	StageActiveOrdering     Stage = "active_ordering"
	StageFinalized          Stage = "finalized"
	StageEnded              Stage = "ended"
)

var transitions = map[Stage][]Stage{
	StageGreeting:           {StageIdentityCollection, StageActiveOrdering},
	StageIdentityCollection: {StageAddressCollection},
	StageAddressCollection:  {StageActiveOrdering},
	StageActiveOrdering:     {StageFinalized},
}

// CanTransition reports whether the flow may move from one stage to another.
// Every stage except ended may move to ended.
func CanTransition(from, to Stage) bool {
	if from == StageEnded {
		return false
	}
	if to == StageEnded || from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Flag names a conversation progress marker.
type Flag string

const (
	FlagPhoneCollected    Flag = "phone_collected"
	FlagCustomerVerified  Flag = "customer_verified"
	FlagAddressConfirmed  Flag = "address_confirmed"
	FlagOrderStarted      Flag = "order_started"
	FlagOrderComplete     Flag = "order_complete"
	FlagPaymentDiscussed  Flag = "payment_discussed"
	FlagDeliveryConfirmed Flag = "delivery_confirmed"
	FlagCallEnding        Flag = "call_ending"
)

// AllFlags lists the flags in display order.
var AllFlags = []Flag{
	FlagPhoneCollected,
	FlagCustomerVerified,
	FlagAddressConfirmed,
	FlagOrderStarted,
	FlagOrderComplete,
	FlagPaymentDiscussed,
	FlagDeliveryConfirmed,
	FlagCallEnding,
}

// ParseFlag maps a flag name to a known Flag.
func ParseFlag(name string) (Flag, error) {
	for _, f := range AllFlags {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown flag %q", name)
}
