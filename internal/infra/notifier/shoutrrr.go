// internal/infra/notifier/shoutrrr.go
package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/sirupsen/logrus"

	"zvit_agent/internal/domain/push"
)

// ShoutrrrBackend forwards notifications to shoutrrr service URLs
// (ntfy://, telegram://, gotify://, ...). Sent messages cannot be retracted.
type ShoutrrrBackend struct {
	sender *router.ServiceRouter
	log    *logrus.Entry
}

func NewShoutrrrBackend(urls []string, log *logrus.Entry) (*ShoutrrrBackend, error) {
	if len(urls) == 0 {
		return nil, errors.New("no shoutrrr urls configured")
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("failed to create shoutrrr sender: %w", err)
	}
	return &ShoutrrrBackend{sender: sender, log: log}, nil
}

func (b *ShoutrrrBackend) Name() string { return "shoutrrr" }

func (b *ShoutrrrBackend) Deliver(_ context.Context, n push.Notification) error {
	params := types.Params{"title": n.Title}
	var errs []error
	for _, err := range b.sender.Send(n.Body, &params) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *ShoutrrrBackend) Retract(context.Context, string) error { return nil }
