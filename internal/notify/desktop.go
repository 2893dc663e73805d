package notify

import "github.com/gen2brain/beeep"

// BeeepDesktop sends notifications through the OS notification daemon.
type BeeepDesktop struct{}

func (BeeepDesktop) Notify(title, body string) error {
	return beeep.Notify(title, body, "")
}
