package sl

import (
	"log/slog"
)

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// Secret keeps the first five characters of a token-like value; short values
// are hidden completely. Never pass user credentials here.
func Secret(key, value string) slog.Attr {
	switch {
	case value == "":
		return slog.String(key, "?")
	case len(value) <= 5:
		return slog.String(key, "***")
	default:
		return slog.String(key, value[:5]+"***")
	}
}

func Module(mod string) slog.Attr {
	return slog.String("mod", mod)
}
