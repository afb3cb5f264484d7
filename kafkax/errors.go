package kafkax

import "github.com/pkg/errors"

// configError marks a rejected configuration: invalid Config values or
// KafkaConfig.Extra keys found by New, or a SetConf/Subscribe call that Core
// refuses before contacting the broker (SetConf after Subscribe, a second
// Subscribe, an empty topic list). A key rejected by the broker client's own
// config setter inside SetConf is returned as a wrapped error instead.
type configError struct {
	msg string
}

func (e *configError) Error() string { return e.msg }

func errConfigf(format string, args ...any) error {
	return &configError{msg: errors.Errorf(format, args...).Error()}
}

// IsConfigError reports whether err originated from bad Config/KafkaConfig
// values, as opposed to a broker-side subscribe or plugin-load failure.
func IsConfigError(err error) bool {
	var ce *configError
	return errors.As(err, &ce)
}
