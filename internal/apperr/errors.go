package apperr

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrLocationNotFound    = errors.New("location not recognized")
	ErrGeocoderUnavailable = errors.New("geocoder unavailable")
	ErrLLMNotConfigured    = errors.New("llm not configured")
	ErrCoordCacheEmpty     = errors.New("coordinate cache is empty")
)
