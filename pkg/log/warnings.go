package log

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// NewWarningSink returns a function suitable for errors.SetZerologWarnFunc.
// Warnings that implement zerolog.LogObjectMarshaler are emitted with their
// structured fields.
func NewWarningSink(w io.Writer, color bool) func(error) {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: !color, PartsExclude: []string{zerolog.TimestampFieldName}}).
		With().Str("kind", "warning").Logger()
	return func(warning error) {
		ev := zl.Warn()
		var obj zerolog.LogObjectMarshaler
		if errors.As(warning, &obj) {
			ev = ev.EmbedObject(obj)
		}
		ev.Msg(warning.Error())
	}
}
