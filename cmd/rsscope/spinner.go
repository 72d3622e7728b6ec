package main

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/theckman/yacspin"
)

// spinnerWriter shows each line logged through it as the spinner message
type spinnerWriter struct {
	sp *yacspin.Spinner
}

func (w spinnerWriter) Write(b []byte) (int, error) {
	msg := strings.TrimSpace(string(b))
	if msg != "" {
		w.sp.Message(msg)
	}
	return len(b), nil
}

// task runs fcn behind a spinner.  While it runs, lines written to the
// standard logger become the spinner's message.  If no spinner can be
// started fcn runs with logging left alone.
func task(name string, fcn func() error) error {
	sp, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " " + name,
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
		Writer:            os.Stderr,
	})
	if err != nil || sp.Start() != nil {
		return fcn()
	}
	flags := log.Flags()
	log.SetOutput(spinnerWriter{sp})
	log.SetFlags(0)
	defer func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
	}()

	err = fcn()
	if err != nil {
		sp.StopFailMessage(err.Error())
		sp.StopFail()
		return err
	}
	sp.StopMessage("done")
	sp.Stop()
	return nil
}
