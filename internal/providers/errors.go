package providers

import "errors"

var (
	ErrEmptyToken      = errors.New("token response carried no client secret")
	ErrEmptyAnswer     = errors.New("negotiation response carried no answer")
	ErrMissingBaseURL  = errors.New("provider base URL is required")
	ErrMissingRealtime = errors.New("realtime URL is required")
)
