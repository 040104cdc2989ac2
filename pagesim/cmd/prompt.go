package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/sarchlab/pagesim/config"
)

// promptSizes asks for the RAM, swap and page sizes on the console.
func promptSizes(in io.Reader, out io.Writer, cfg *config.Config) error {
	scanner := bufio.NewScanner(in)

	questions := []struct {
		prompt string
		dst    *uint64
	}{
		{"Enter RAM size (MB): ", &cfg.RAMMB},
		{"Enter swap size (MB): ", &cfg.SwapMB},
		{"Enter page size (KB): ", &cfg.PageKB},
	}

	for _, q := range questions {
		fmt.Fprint(out, q.prompt)

		v, err := readSize(scanner)
		if err != nil {
			return errors.Wrapf(err, "invalid answer to %q",
				strings.TrimSuffix(q.prompt, ": "))
		}

		*q.dst = v
	}

	return nil
}

func readSize(scanner *bufio.Scanner) (uint64, error) {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, err
		}

		return 0, io.ErrUnexpectedEOF
	}

	return strconv.ParseUint(strings.TrimSpace(scanner.Text()), 10, 64)
}
