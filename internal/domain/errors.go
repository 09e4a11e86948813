package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a test session has not been created or was replaced.
	ErrSessionNotFound = errors.New("test session not found")
	// ErrDataUnavailable indicates the ranked dataset could not be fetched or was malformed.
	ErrDataUnavailable = errors.New("ranked data unavailable")
	// ErrTrialInProgress is returned when a trial is started while another one is shown.
	ErrTrialInProgress = errors.New("trial already in progress")
	// ErrNoActiveTrial is returned when an answer is submitted before a trial was started.
	ErrNoActiveTrial = errors.New("no active trial")
	// ErrDuplicateSubmission is returned when an answer arrives after the trial was completed.
	ErrDuplicateSubmission = errors.New("trial already completed")
)
