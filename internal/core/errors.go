package core

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Failure classes. Components wrap these so callers can map them to a response.
var (
	ErrInvalidRequest = errors.New("invalid generation request")
	ErrModelLoad      = errors.New("model could not be loaded")
	ErrGeneration     = errors.New("music generation failed")
	ErrPersistence    = errors.New("audio could not be saved")
	ErrRateLimited    = errors.New("too many generation requests")
	ErrNotFound       = errors.New("audio not found")
)

// Field validation errors; each wraps ErrInvalidRequest.
var (
	ErrDescriptionEmpty   = fmt.Errorf("%w: description cannot be empty", ErrInvalidRequest)
	ErrDescriptionTooLong = fmt.Errorf("%w: description is too long", ErrInvalidRequest)
	ErrDurationRange      = fmt.Errorf("%w: duration must be between %d and %d seconds", ErrInvalidRequest, MinDuration, MaxDuration)
	ErrTopKRange          = fmt.Errorf("%w: top_k must be positive", ErrInvalidRequest)
	ErrTopPRange          = fmt.Errorf("%w: top_p must be between 0.0 and 1.0", ErrInvalidRequest)
	ErrTemperatureRange   = fmt.Errorf("%w: temperature must be > 0.0", ErrInvalidRequest)
	ErrModelEmpty         = fmt.Errorf("%w: model cannot be empty", ErrInvalidRequest)
)

// MaxDescriptionRunes bounds the prompt length accepted from users.
const MaxDescriptionRunes = 1000

// User-facing messages, one per failure class.
const (
	msgInvalidRequest = "Please enter a music description and a duration between 0 and 20 seconds."
	msgModelLoad      = "The music model is not available right now. Please try again shortly."
	msgGeneration     = "The music could not be generated. Please try again."
	msgPersistence    = "The generated music could not be saved."
	msgRateLimited    = "Too many requests. Please wait a moment before generating again."
	msgNotFound       = "The requested audio does not exist."
	msgUnknown        = "Something went wrong while generating music."
)

// UserMessage returns the message shown to users for err.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return msgInvalidRequest
	case errors.Is(err, ErrRateLimited):
		return msgRateLimited
	case errors.Is(err, ErrModelLoad):
		return msgModelLoad
	case errors.Is(err, ErrGeneration):
		return msgGeneration
	case errors.Is(err, ErrPersistence):
		return msgPersistence
	case errors.Is(err, ErrNotFound):
		return msgNotFound
	default:
		return msgUnknown
	}
}

// Validate checks a request as captured from the user.
func (r GenerationRequest) Validate() error {
	if r.Description == "" {
		return ErrDescriptionEmpty
	}

	if utf8.RuneCountInString(r.Description) > MaxDescriptionRunes {
		return fmt.Errorf("%w: %d runes, max %d", ErrDescriptionTooLong, utf8.RuneCountInString(r.Description), MaxDescriptionRunes)
	}

	if r.Duration < MinDuration || r.Duration > MaxDuration {
		return fmt.Errorf("%w: got %d", ErrDurationRange, r.Duration)
	}

	return nil
}

// Validate ensures the params contain valid and safe values.
func (p GenerationParams) Validate() error {
	if p.Model == "" {
		return ErrModelEmpty
	}

	if p.TopK <= 0 {
		return fmt.Errorf("%w: got %d", ErrTopKRange, p.TopK)
	}

	if p.TopP < 0.0 || p.TopP > 1.0 {
		return fmt.Errorf("%w: got %f", ErrTopPRange, p.TopP)
	}

	if p.Temperature <= 0.0 {
		return fmt.Errorf("%w: got %f", ErrTemperatureRange, p.Temperature)
	}

	if p.Duration < MinDuration || p.Duration > MaxDuration {
		return fmt.Errorf("%w: got %d", ErrDurationRange, p.Duration)
	}

	return nil
}
