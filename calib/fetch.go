package calib

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
)

// Fetch retrieves a calibration frame from a calibration-repository URL.
// Transient failures are retried with an exponential backoff; the repository
// does not like being connection thrashed.
func Fetch(url string, kind Kind, timeout time.Duration) (*Frame, error) {
	client := &http.Client{Timeout: timeout}
	var body []byte

	op := func() error {
		resp, err := client.Get(url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("calibration repository returned %s", resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			// client errors will not improve with retries
			return backoff.Permanent(fmt.Errorf("calibration repository returned %s", resp.Status))
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}

	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     100 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         2 * time.Second,
		MaxElapsedTime:      15 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		return nil, fmt.Errorf("fetching %s from %s: %w", kind, url, err)
	}
	return ReadFrame(bytes.NewReader(body), kind)
}
