package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"

	"google.golang.org/api/googleapi"

	"github.com/sells-group/vitals-cli/internal/model"
	"github.com/sells-group/vitals-cli/pkg/pagespeed"
)

// ErrorKind classifies why a fetch produced no result.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindMalformed ErrorKind = "malformed"
	KindTransport ErrorKind = "transport"
	KindQuota     ErrorKind = "quota"
)

// FetchError is returned when an audit call fails. Quota errors are a kind
// of transport failure.
type FetchError struct {
	Kind       ErrorKind
	URL        string
	Strategy   model.Strategy
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s %s: %s (status %d): %v", e.Strategy, e.URL, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s %s: %s: %v", e.Strategy, e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// classify maps a client error to its FetchError kind and HTTP status.
func classify(err error) (ErrorKind, int) {
	if errors.Is(err, ErrQuotaExhausted) {
		return KindQuota, 0
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, 0
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout, 0
	}

	// A connection dropped before any response is a transport failure even
	// when it surfaces as io.EOF.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindTransport, 0
	}

	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	if errors.Is(err, pagespeed.ErrEmptyResponse) ||
		errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return KindMalformed, 0
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return KindTransport, gerr.Code
	}
	return KindTransport, 0
}
