// Package errors provides examples of structured error handling in tap-twilio.
package errors_test

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/ajitpratap0/tap-twilio/pkg/errors"
)

// Example demonstrates basic error creation.
func Example() {
	err := errors.New(errors.ErrorTypeUsage, "Usage: tap-twilio --config <config-file>")

	fmt.Println(err.Error())

	// Output:
	// usage: Usage: tap-twilio --config <config-file>
}

// ExampleWrap shows how a page fetch failure keeps the original cause reachable.
func ExampleWrap() {
	originalErr := io.ErrUnexpectedEOF

	err := errors.Wrap(originalErr, errors.ErrorTypeUpstreamFetch, "failed to fetch page").
		WithDetail("stream", "IncomingPhoneNumbers").
		WithDetail("page", 3)

	if errors.IsType(err, errors.ErrorTypeUpstreamFetch) {
		fmt.Println("This is an upstream fetch error")
	}

	if stderrors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("Original error was unexpected EOF")
	}

	// Output:
	// This is an upstream fetch error
	// Original error was unexpected EOF
}

// ExampleWrap_sameType shows that wrapping with the same type does not nest.
func ExampleWrap_sameType() {
	inner := errors.New(errors.ErrorTypeSink, "write failed")
	outer := errors.Wrap(inner, errors.ErrorTypeSink, "failed to write record")

	fmt.Println(outer == inner)

	// Output:
	// true
}

// Example_errorChain shows how contexts stack when types differ.
func Example_errorChain() {
	err := errors.New(errors.ErrorTypeData, "record is not serializable")
	err = errors.Wrap(err, errors.ErrorTypeInternal, "stream aborted")

	fmt.Println("Full error chain:", err)

	// Output:
	// Full error chain: internal: stream aborted: data: record is not serializable
}

// ExampleIsType demonstrates checking error types.
func ExampleIsType() {
	cfgErr := errors.New(errors.ErrorTypeInvalidConfig, "Config file must have accountSid and authToken")
	wrappedErr := errors.Wrap(cfgErr, errors.ErrorTypeInternal, "startup failed")

	fmt.Printf("Is invalid config error: %v\n", errors.IsType(cfgErr, errors.ErrorTypeInvalidConfig))
	fmt.Printf("Wrapped error is internal type: %v\n", errors.IsType(wrappedErr, errors.ErrorTypeInternal))
	fmt.Printf("Wrapped error type: %s\n", errors.TypeOf(wrappedErr))
	fmt.Printf("Plain error type: %q\n", errors.TypeOf(io.EOF))

	// Output:
	// Is invalid config error: true
	// Wrapped error is internal type: true
	// Wrapped error type: internal
	// Plain error type: ""
}

// Example_withDetails shows how details accompany an error without changing its text.
func Example_withDetails() {
	err := errors.Newf(errors.ErrorTypeUpstreamFetch, "API returned status %d", 401).
		WithDetail("code", 20003).
		WithDetail("more_info", "https://www.twilio.com/docs/errors/20003")

	fmt.Println(err.Error())
	fmt.Println(err.Details["code"])

	// Output:
	// upstream_fetch: API returned status 401
	// 20003
}
