package multi

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hejijunhao/warden/internal/alert"
)

// Multi fans out alerts to several channels. Every channel receives every
// alert; one channel's failure never prevents delivery to the others.
type Multi struct {
	channels []alert.Channel
}

// New creates a Multi that fans out to the given channels.
func New(channels ...alert.Channel) *Multi {
	return &Multi{channels: channels}
}

// Len returns the number of wrapped channels.
func (m *Multi) Len() int {
	return len(m.channels)
}

func (m *Multi) Name() string {
	return "multi"
}

// Dispatch sends a to every channel concurrently and returns one Result
// per channel, in channel order. A panicking channel is reported as failed.
func (m *Multi) Dispatch(ctx context.Context, a alert.Alert) []alert.Result {
	results := make([]alert.Result, len(m.channels))
	var wg sync.WaitGroup
	for i, ch := range m.channels {
		wg.Add(1)
		go func(i int, ch alert.Channel) {
			defer wg.Done()
			results[i].Channel = ch.Name()
			defer func() {
				if r := recover(); r != nil {
					results[i].Err = fmt.Errorf("%s: panic: %v", ch.Name(), r)
				}
			}()
			results[i].Err = ch.Send(ctx, a)
		}(i, ch)
	}
	wg.Wait()
	return results
}

// Send delivers a to every channel, joining their errors.
func (m *Multi) Send(ctx context.Context, a alert.Alert) error {
	var errs []error
	for _, r := range m.Dispatch(ctx, a) {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

// Close calls Close on every wrapped channel, collecting errors.
func (m *Multi) Close() error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
