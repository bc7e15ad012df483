package services

import (
	"time"

	"experience-backend/availability"
)

const (
	defaultResponseWindow    = 48 * time.Hour
	defaultPaymentWindow     = 24 * time.Hour
	defaultAutoCompleteAfter = 7 * 24 * time.Hour
)

type options struct {
	now               func() time.Time
	responseWindow    time.Duration
	paymentWindow     time.Duration
	autoCompleteAfter time.Duration
	frontendURL       string
}

type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		now:               time.Now,
		responseWindow:    defaultResponseWindow,
		paymentWindow:     defaultPaymentWindow,
		autoCompleteAfter: defaultAutoCompleteAfter,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithResponseWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.responseWindow = d
		}
	}
}

func WithPaymentWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.paymentWindow = d
		}
	}
}

func WithAutoCompleteAfter(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.autoCompleteAfter = d
		}
	}
}

// WithFrontendURL sets where payment success/cancel pages live.
func WithFrontendURL(u string) Option {
	return func(o *options) { o.frontendURL = u }
}

// today is the current calendar date as YYYY-MM-DD in UTC.
func (o options) today() string {
	return o.now().UTC().Format(availability.DateLayout)
}
