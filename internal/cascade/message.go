package cascade

import "fmt"

// textBody builds the Text-Wave Processor's message body (§4.4). waveIndex
// is 1-indexed; the wave indicator is omitted for wave 1.
func textBody(shift ShiftSummary, waveIndex int, linkBaseURL, shiftID, workerID string) string {
	link := fmt.Sprintf("%s?shift=%s&worker=%s", linkBaseURL, shiftID, workerID)
	if waveIndex <= 1 {
		return fmt.Sprintf("JOB AVAILABLE: %s, %s. Reply or view: %s", shift.PatientDisplay, shift.ScheduledAtLocal, link)
	}
	return fmt.Sprintf("JOB AVAILABLE (Wave %d): %s, %s. Reply or view: %s", waveIndex, shift.PatientDisplay, shift.ScheduledAtLocal, link)
}

// offerAudioScriptID names the pre-synthesized offer template for a
// worker/shift pair; the voice gateway resolves this id to rendered audio
// templated with worker first name, patient first+initial, date, time,
// and suburb (§4.4).
func offerAudioScriptID(shift ShiftSummary, worker Worker) string {
	return fmt.Sprintf("shift-offer:%s:%s", shift.ID, worker.ID)
}
