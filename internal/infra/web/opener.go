// internal/infra/web/opener.go
package web

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// CommandOpener opens windows by running a launcher such as xdg-open with
// the URL as its last argument.
type CommandOpener struct {
	name string
	args []string
	log  *logrus.Entry
}

// NewCommandOpener parses a command line like "xdg-open" or
// "chromium --app". An empty command line only logs the URL.
func NewCommandOpener(cmdline string, log *logrus.Entry) *CommandOpener {
	fields := strings.Fields(cmdline)
	o := &CommandOpener{log: log}
	if len(fields) > 0 {
		o.name, o.args = fields[0], fields[1:]
	}
	return o
}

func (o *CommandOpener) Open(ctx context.Context, url string) error {
	if o.name == "" {
		o.log.WithField("url", url).Warn("No window opener configured, open the URL manually")
		return nil
	}
	args := append(append([]string(nil), o.args...), url)
	out, err := exec.CommandContext(ctx, o.name, args...).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("window opener %s failed: %w: %s", o.name, err, strings.TrimSpace(string(out)))
		}
		return fmt.Errorf("window opener %s: %w", o.name, err)
	}
	return nil
}
