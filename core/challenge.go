package core

import "time"

// PendingChallenge is the CAPTCHA an identity still has to answer.
type PendingChallenge struct {
	ID           string    `json:"id"`
	Identity     string    `json:"identity"`
	ExpectedCode string    `json:"expected_code"`
	Wallet       string    `json:"wallet"`
	IssuedAt     time.Time `json:"issued_at"`
}

// Image is a rendered artifact sent back to the requester.
type Image struct {
	ContentType string
	Data        []byte
}
