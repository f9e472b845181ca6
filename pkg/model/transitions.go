package model

var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketWaiting: {TicketCalled, TicketCancelled},
	TicketCalled:  {TicketServed, TicketTimedOut, TicketSkipped},
}

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationBooked: {ReservationInUse, ReservationCancelled, ReservationExpired},
	ReservationQueued: {ReservationInUse, ReservationCancelled, ReservationExpired},
	ReservationInUse:  {ReservationFinished, ReservationCancelled},
}

func CanTransitionTicket(from, to TicketStatus) bool {
	for _, allowed := range ticketTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func CanTransitionReservation(from, to ReservationStatus) bool {
	for _, allowed := range reservationTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ResolvedStatus maps a call outcome to the terminal ticket status it produces.
func ResolvedStatus(outcome CallOutcome) (TicketStatus, bool) {
	switch outcome {
	case OutcomeArrived:
		return TicketServed, true
	case OutcomeNoShow:
		return TicketTimedOut, true
	case OutcomeSkip:
		return TicketSkipped, true
	default:
		return "", false
	}
}
