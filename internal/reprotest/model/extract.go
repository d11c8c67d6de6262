package model

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/armadaproject/reprotest/internal/common/reproerrors"
	"github.com/armadaproject/reprotest/internal/reprotest/checksum"
)

// An Extractor reads checksums from one model output file.
type Extractor func(r io.Reader, c *checksum.Checksums) error

// Examples:
// [chksum] ht              -2390360641069121536
// [chksum] hu               6389284661071183872
var mom5Pattern = regexp.MustCompile(`^\[chksum\]\s+(.+)\s+(-?\d+)`)

// ExtractMom5 reads the [chksum] lines MOM5 writes to <model>.out. A field may have several checksums.
func ExtractMom5(r io.Reader, c *checksum.Checksums) error {
	scanner := newScanner(r)
	for scanner.Scan() {
		if m := mom5Pattern.FindStringSubmatch(scanner.Text()); m != nil {
			c.Add(strings.TrimSpace(m[1]), strings.TrimSpace(m[2]))
		}
	}
	return errors.WithStack(scanner.Err())
}

const FinalAbsoluteNorm = "Final Absolute Norm"

// Final Absolute Norm :   9.735899063190541E-003
// Only the digits after the decimal point are kept, which is how existing reference files record it.
var um7Pattern = regexp.MustCompile(`^\s*` + FinalAbsoluteNorm + `\s+:\s+\d+\.?(\d*E?-?\d*)`)

// ExtractUm7 keeps the solver's Final Absolute Norm from the last timestep in atm.fort6.pe0.
// It is sensitive to the atmosphere state, so stands in for checksums in atmosphere-only runs.
func ExtractUm7(r io.Reader, c *checksum.Checksums) error {
	scanner := newScanner(r)
	last := ""
	found := false
	for scanner.Scan() {
		if m := um7Pattern.FindStringSubmatch(scanner.Text()); m != nil {
			last = strings.TrimSpace(m[1])
			found = true
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.WithStack(err)
	}
	if !found {
		return errors.WithStack(&reproerrors.ErrNotFound{What: FinalAbsoluteNorm, Where: "UM output"})
	}
	c.Add(FinalAbsoluteNorm, last)
	return nil
}

var columnSeparator = regexp.MustCompile(` +`)

// ExtractOceanStats reads MOM6's ocean.stats, whose rows look like
//
//	0,  693135.000,     0, En 3.0745627134675957E-23, CFL  0.00000, ...
//
// The unlabelled Step, Day and Truncs columns are skipped; every labelled column adds a checksum
// under its label. The two header lines are only present for new runs.
func ExtractOceanStats(r io.Reader, c *checksum.Checksums) error {
	scanner := newScanner(r)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return errors.WithStack(err)
	}
	if len(lines) > 0 && strings.Contains(lines[0], "Step") {
		if len(lines) < 2 {
			return nil
		}
		lines = lines[2:]
	}
	for _, line := range lines {
		for _, col := range strings.Split(line, ",") {
			parts := columnSeparator.Split(strings.TrimSpace(col), -1)
			if len(parts) > 1 {
				c.Add(parts[0], parts[len(parts)-1])
			}
		}
	}
	return nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return scanner
}
