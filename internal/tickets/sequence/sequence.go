// Package sequence hands out ticket numbers for an activity. The counter
// lives on the Activity aggregate so it is persisted in the same
// conditional write as the ticket that consumed it.
package sequence

import "campusq/pkg/model"

const First = 1

// Issue returns the next number and advances the counter.
func Issue(activity *model.Activity) int {
	if activity.NextTicketNumber < First {
		activity.NextTicketNumber = First
	}
	number := activity.NextTicketNumber
	activity.NextTicketNumber++
	return number
}

// Retract takes the single allowed step backwards: it only applies when
// number is the most recently issued one. Reports whether it stepped.
func Retract(activity *model.Activity, number int) bool {
	if number < First || number != activity.NextTicketNumber-1 {
		return false
	}
	activity.NextTicketNumber--
	return true
}

// Peek returns the number the next Issue would hand out.
func Peek(activity *model.Activity) int {
	return max(activity.NextTicketNumber, First)
}
