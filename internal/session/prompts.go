package session

import (
	"fmt"
	"strings"
)

// providerMenuPrompt builds the speak-and-gather text for provider_selection.
func providerMenuPrompt(providers []Provider) string {
	var b strings.Builder
	b.WriteString("You work with multiple providers. ")
	for i, p := range providers {
		fmt.Fprintf(&b, "Press %d for %s. ", i+1, p.Name)
	}
	return b.String()
}

// shiftListPrompt builds the speak-and-gather text for shift_list, covering
// the reserved "1" digit and pagination navigation.
func shiftListPrompt(shifts []ShiftOccurrence, hasMore bool) string {
	if len(shifts) == 0 {
		return "There are no open shifts to release at this time. Press 1 to speak to a representative, or hang up."
	}
	var b strings.Builder
	b.WriteString("Press 1 to speak to a representative. ")
	for i, sh := range shifts {
		fmt.Fprintf(&b, "Press %d for %s on %s. ", i+2, sh.PatientDisplay, sh.ScheduledAtLocal)
	}
	if hasMore {
		b.WriteString("Press 9 for more shifts. ")
	}
	return b.String()
}

// shiftOptionsPrompt builds the speak-and-gather text for shift_options.
func shiftOptionsPrompt(shift ShiftOccurrence) string {
	return fmt.Sprintf(
		"For the shift with %s on %s: press 1 to release this shift, or press 2 to speak to a representative.",
		shift.PatientDisplay, shift.ScheduledAtLocal,
	)
}
