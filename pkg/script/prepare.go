// SPDX-License-Identifier: MPL-2.0

package script

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const maxLineSize = 1024 * 1024

type (
	// Processor observes a script's source during preparation. Begin is
	// called once before the first line and End once after the last.
	Processor interface {
		Begin(info *Info)
		// Process returns the replacement for line. Returning "" elides it.
		Process(line string) string
		End()
	}

	// Prepared is a script whose source has been through every Processor.
	Prepared struct {
		Info *Info
		Body string
	}
)

// Prepare reads src line by line. Each line goes through the processors in
// order, each seeing the previous one's output. Elided lines stay as empty
// lines so the body keeps its line numbers.
func Prepare(info *Info, src io.Reader, processors ...Processor) (*Prepared, error) {
	for _, p := range processors {
		p.Begin(info)
	}

	var body strings.Builder
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		for _, p := range processors {
			line = p.Process(line)
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", info.Path, err)
	}

	for _, p := range processors {
		p.End()
	}
	return &Prepared{Info: info, Body: body.String()}, nil
}
