package kafka

import "time"

type Option func(*settings)

type settings struct {
	connAttempts int
	connTimeout  time.Duration
	retryBackoff time.Duration
}

func defaultSettings() settings {
	return settings{
		connAttempts: _defaultConnAttempts,
		connTimeout:  _defaultConnTimeout,
		retryBackoff: _defaultRetryBackoff,
	}
}

func ConnAttempts(attempts int) Option {
	return func(s *settings) {
		s.connAttempts = attempts
	}
}

func ConnTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		s.connTimeout = timeout
	}
}

// RetryBackoff sets the pause before a nacked message is handled again.
func RetryBackoff(backoff time.Duration) Option {
	return func(s *settings) {
		s.retryBackoff = backoff
	}
}
