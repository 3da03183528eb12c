package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrorKind classifies why a single extraction failed.
type ErrorKind string

const (
	KindAuthenticationFailure ErrorKind = "authentication_failure"
	KindNavigationTimeout     ErrorKind = "navigation_timeout"
	KindNoContentFound        ErrorKind = "no_content_found"
	KindDownloadNotCaptured   ErrorKind = "download_not_captured"
	KindValidationError       ErrorKind = "validation_error"
	KindUnexpected            ErrorKind = "unexpected"
)

// Stage names the part of an extraction that produced an error.
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageParse    Stage = "parse"
	StageDownload Stage = "download"
)

// ExtractionError carries a classified failure out of an extractor.
type ExtractionError struct {
	Kind      ErrorKind
	Stage     Stage
	Err       error
	Artifacts []string
}

// NewExtractionError wraps err with a kind and stage.
func NewExtractionError(kind ErrorKind, stage Stage, err error) *ExtractionError {
	return &ExtractionError{Kind: kind, Stage: stage, Err: err}
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a fresh session and a second attempt could change the outcome.
// Parse-stage and download-window failures are terminal.
func (e *ExtractionError) Retryable() bool {
	switch e.Kind {
	case KindAuthenticationFailure, KindNavigationTimeout:
		return true
	case KindNoContentFound, KindDownloadNotCaptured, KindValidationError:
		return false
	}
	return e.Stage == StageFetch
}

// Classify converts an arbitrary error into an ExtractionError.
func Classify(err error) *ExtractionError {
	if err == nil {
		return nil
	}
	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return extErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewExtractionError(KindNavigationTimeout, StageFetch, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewExtractionError(KindNavigationTimeout, StageFetch, err)
	}
	return NewExtractionError(KindUnexpected, "", err)
}

// ConfidenceMetrics annotates an article with the relevance heuristic outcome.
type ConfidenceMetrics struct {
	NameFilter     string
	NameMatch      NameMatch
	CategoryHits   map[string]int
	RelevanceScore float64
	SentimentScore float64
	WordCount      int
	Relevant       bool
}

// NameMatch describes how a filter name was found in the body text.
type NameMatch string

const (
	NameMatchNone        NameMatch = "none"
	NameMatchFull        NameMatch = "full"
	NameMatchLastName    NameMatch = "last_name"
	NameMatchInitialLast NameMatch = "initial_last"
)

// Success is the payload of a completed extraction.
type Success struct {
	Article     Article
	Image       *BinaryFile
	Files       []BinaryFile
	Metrics     *ConfidenceMetrics
	DateInRange *bool
	Method      string
}

// Failure is the payload of a failed extraction.
type Failure struct {
	Kind      ErrorKind
	Message   string
	Artifacts []string
}

// ExtractionResult holds exactly one of Success or Failure.
type ExtractionResult struct {
	URL            string
	Source         SourceID
	Attempts       int
	ProcessingTime time.Duration
	CompletedAt    time.Time
	Success        *Success
	Failure        *Failure
}

// Succeeded builds a success result.
func Succeeded(url string, source SourceID, s Success) ExtractionResult {
	return ExtractionResult{URL: url, Source: source, Success: &s}
}

// Failed builds a failure result from a classified error.
func Failed(url string, source SourceID, err error) ExtractionResult {
	extErr := Classify(err)
	if extErr == nil {
		extErr = NewExtractionError(KindUnexpected, "", errors.New("extraction failed without an error"))
	}
	return ExtractionResult{
		URL:    url,
		Source: source,
		Failure: &Failure{
			Kind:      extErr.Kind,
			Message:   extErr.Error(),
			Artifacts: extErr.Artifacts,
		},
	}
}

// OK reports whether the result is a Success.
func (r ExtractionResult) OK() bool {
	return r.Success != nil
}

// Headline returns the success headline or an empty string.
func (r ExtractionResult) Headline() string {
	if r.Success == nil {
		return ""
	}
	return r.Success.Article.Headline
}

// ErrorKind returns the failure kind or an empty string.
func (r ExtractionResult) ErrorKind() ErrorKind {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Kind
}
