package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"codeberg.org/mutker/ecoguard/internal/logger"
	"github.com/urfave/negroni"
)

func requestLogger(log logger.Logger) negroni.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		start := time.Now()
		next(rw, r)

		status := 0
		if res, ok := rw.(negroni.ResponseWriter); ok {
			status = res.Status()
		}

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}

// printfLogger lets negroni's recovery middleware log through a Logger.
type printfLogger struct {
	log logger.Logger
}

func (p printfLogger) Println(v ...interface{}) {
	p.log.Error().Msg(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (p printfLogger) Printf(format string, v ...interface{}) {
	p.log.Error().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
