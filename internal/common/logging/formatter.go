package logging

import (
	"bytes"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// CommandLineFormatter writes the bare message of each entry, as a user would expect from a CLI.
// Warnings and errors are prefixed with their level. When ShowFields is set, the entry's fields
// follow the message as sorted key=value pairs.
type CommandLineFormatter struct {
	ShowFields bool
}

func (f *CommandLineFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b bytes.Buffer
	if entry.Level <= log.WarnLevel {
		b.WriteString(strings.ToUpper(entry.Level.String()))
		b.WriteString(": ")
	}
	b.WriteString(entry.Message)
	if f.ShowFields && len(entry.Data) > 0 {
		keys := maps.Keys(entry.Data)
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
		}
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}
